package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// User is a Strava athlete who has signed in. StravaID is the primary key.
type User struct {
	StravaID     int64
	DisplayName  string
	FirstName    string
	LastName     string
	Picture      string
	Sex          string
	City         string
	State        string
	Country      string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
}

// Name is the rider name shown on boards and lists.
func (u *User) Name() string {
	return riderName(u.FirstName, u.LastName, u.DisplayName, u.StravaID)
}

func riderName(first, last, display string, id int64) string {
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return full
	}
	if display = strings.TrimSpace(display); display != "" {
		return display
	}
	return fmt.Sprintf("User %d", id)
}

// RaceSegment is one Strava segment of a race, in race order.
type RaceSegment struct {
	SegmentID int64
	Name      string
}

// Race is a record in the races table with its ordered segments.
type Race struct {
	ID                         int64
	Name                       string
	Info                       string
	StartDate                  *time.Time
	EndDate                    *time.Time
	OrganiserID                int64
	IsPrivate                  bool
	PasswordHash               string
	HideLeaderboardUntilFinish bool
	UseSexCategories           bool
	FinishNotified             bool
	CreatedAt                  time.Time

	Segments []RaceSegment

	// Populated by joins, not columns of races.
	OrganiserName    string
	ParticipantCount int
}

// SegmentIDs returns the race's segment IDs in race order.
func (r *Race) SegmentIDs() []int64 {
	ids := make([]int64, 0, len(r.Segments))
	for _, s := range r.Segments {
		ids = append(ids, s.SegmentID)
	}
	return ids
}

// RaceParams carries the editable fields of a race. An empty PasswordHash on
// update keeps the stored one.
type RaceParams struct {
	Name                       string
	Info                       string
	StartDate                  time.Time
	EndDate                    time.Time
	PasswordHash               string
	HideLeaderboardUntilFinish bool
	UseSexCategories           bool
	Segments                   []RaceSegment
}

// Participant links a user to a race. Name, Picture and Sex come from the
// users table.
type Participant struct {
	ID                  int64
	RaceID              int64
	UserID              int64
	SubmittedRide       bool
	SubmittedActivityID sql.NullInt64
	JoinedAt            time.Time

	Name    string
	Picture string
	Sex     string

	SegmentResults []SegmentResult
}

// SegmentResult is one stored segment effort of a participant.
type SegmentResult struct {
	ID                 int64
	ParticipantID      int64
	SegmentID          int64
	SegmentName        string
	ElapsedTimeSeconds sql.NullInt64
}

// Timestamps are stored as RFC 3339 text in UTC, second precision, so that
// string comparison in SQL matches time order.
const timeLayout = time.RFC3339

func timeText(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func nullTimeText(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return timeText(*t)
}

func parseTimeText(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeValue(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
