package leaderboard

import "time"

// Race is the snapshot of a race the engine needs. It carries no persistence
// or transport concerns; callers map their own records into it.
type Race struct {
	ID          int64
	SegmentIDs  []int64 // declared order, also the leaderboard column order
	OrganiserID int64
	StartDate   *time.Time
	EndDate     *time.Time
	IsPrivate   bool

	HideLeaderboardUntilFinish bool
	UseSexCategories           bool
}

// Participant is one rider's enrolment in a race.
type Participant struct {
	ID                  int64
	UserID              int64
	Name                string
	Picture             string
	Sex                 string
	SubmittedRide       bool
	SubmittedActivityID *int64
	SegmentResults      []SegmentResult
}

// SegmentResult is a single segment effort. ElapsedTimeSeconds is nil when the
// effort was stored without a time.
type SegmentResult struct {
	SegmentID          int64
	ElapsedTimeSeconds *int
}

// Viewer identifies who is looking at the leaderboard. A zero UserID is an
// anonymous viewer.
type Viewer struct {
	UserID int64
}
