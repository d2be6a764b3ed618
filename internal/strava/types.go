package strava

import "strings"

// Athlete is the subset of the Strava athlete profile we keep.
type Athlete struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	FirstName     string `json:"firstname"`
	LastName      string `json:"lastname"`
	Profile       string `json:"profile"`
	ProfileMedium string `json:"profile_medium"`
	Sex           string `json:"sex"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
}

// DisplayName prefers the username and falls back to the full name.
func (a Athlete) DisplayName() string {
	if a.Username != "" {
		return a.Username
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Picture returns the best available avatar URL.
func (a Athlete) Picture() string {
	if a.Profile != "" {
		return a.Profile
	}
	return a.ProfileMedium
}

// Activity is a summary entry of the athlete activity list.
type Activity struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	StartDate      string  `json:"start_date"`
	StartDateLocal string  `json:"start_date_local"`
	Distance       float64 `json:"distance"`
	ElapsedTime    int     `json:"elapsed_time"`
	Type           string  `json:"type"`
}

// IsRide reports whether the activity is a bike ride.
func (a Activity) IsRide() bool {
	return strings.EqualFold(a.Type, "Ride")
}

// DetailedActivity is an activity with its segment efforts.
type DetailedActivity struct {
	Activity
	SegmentEfforts []SegmentEffort `json:"segment_efforts"`
}

// SegmentEffort is one timed pass over a segment within an activity.
type SegmentEffort struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	ElapsedTime int          `json:"elapsed_time"`
	Segment     SegmentBrief `json:"segment"`
}

type SegmentBrief struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Segment is a Strava segment.
type Segment struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Distance     float64 `json:"distance"`
	AverageGrade float64 `json:"average_grade"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	Country      string  `json:"country"`
}
