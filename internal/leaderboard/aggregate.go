package leaderboard

// SegmentTime is the time recorded for one race segment. Seconds is nil when
// the rider has no timed result for it.
type SegmentTime struct {
	SegmentID int64
	Seconds   *int
}

// Aggregation is the per-rider summary of segment results against a race.
type Aggregation struct {
	// Attempted reports whether the rider submitted a ride at all.
	Attempted bool
	// Complete reports whether every race segment has a timed result.
	Complete bool
	// Total is the sum of segment times, set only when Attempted and Complete.
	Total        *int
	SegmentTimes []SegmentTime
}

// DNF reports a rider who submitted but is missing at least one segment.
func (a Aggregation) DNF() bool {
	return a.Attempted && !a.Complete
}

// Aggregate sums a participant's results over the race's segments in declared
// order. Results for segments outside segmentIDs are ignored. A race without
// segments never produces a total.
func Aggregate(p Participant, segmentIDs []int64) Aggregation {
	byID := indexResults(p.SegmentResults)

	agg := Aggregation{
		Attempted:    p.SubmittedRide,
		Complete:     len(segmentIDs) > 0,
		SegmentTimes: make([]SegmentTime, 0, len(segmentIDs)),
	}

	sum := 0
	for _, id := range segmentIDs {
		r, ok := byID[id]
		if !ok || r.ElapsedTimeSeconds == nil {
			agg.SegmentTimes = append(agg.SegmentTimes, SegmentTime{SegmentID: id})
			agg.Complete = false
			continue
		}
		secs := *r.ElapsedTimeSeconds
		sum += secs
		agg.SegmentTimes = append(agg.SegmentTimes, SegmentTime{SegmentID: id, Seconds: &secs})
	}

	if agg.Attempted && agg.Complete {
		agg.Total = &sum
	}
	return agg
}

// StrayResults returns the results that reference segments not in segmentIDs.
// Aggregate ignores them; callers may log them.
func StrayResults(p Participant, segmentIDs []int64) []SegmentResult {
	known := make(map[int64]struct{}, len(segmentIDs))
	for _, id := range segmentIDs {
		known[id] = struct{}{}
	}

	var stray []SegmentResult
	for _, r := range p.SegmentResults {
		if _, ok := known[r.SegmentID]; !ok {
			stray = append(stray, r)
		}
	}
	return stray
}

// indexResults keys results by segment ID. The first result for a segment wins.
func indexResults(results []SegmentResult) map[int64]SegmentResult {
	m := make(map[int64]SegmentResult, len(results))
	for _, r := range results {
		if _, seen := m[r.SegmentID]; seen {
			continue
		}
		m[r.SegmentID] = r
	}
	return m
}
