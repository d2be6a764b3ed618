package leaderboard

import "time"

// Status is the lifecycle state of a race, derived from its time window.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusOngoing    Status = "ongoing"
	StatusFinished   Status = "finished"
)

// RaceStatus derives the status of a race at the given instant. Both bounds are
// inclusive for "ongoing". A missing or zero bound yields StatusNotStarted.
func RaceStatus(now time.Time, start, end *time.Time) Status {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return StatusNotStarted
	}
	if now.Before(*start) {
		return StatusNotStarted
	}
	if !now.After(*end) {
		return StatusOngoing
	}
	return StatusFinished
}

// ParseRaceStatus is RaceStatus over ISO 8601 strings. Unparsable input yields
// StatusNotStarted.
func ParseRaceStatus(now time.Time, startISO, endISO string) Status {
	start, ok := ParseTime(startISO)
	if !ok {
		return StatusNotStarted
	}
	end, ok := ParseTime(endISO)
	if !ok {
		return StatusNotStarted
	}
	return RaceStatus(now, &start, &end)
}

// ParseTime parses an ISO 8601 timestamp. Values without a zone offset are
// taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
