package strava

// MatchedEffort is the effort kept for one race segment.
type MatchedEffort struct {
	SegmentID   int64
	SegmentName string
	ElapsedTime int
}

// MatchSegmentEfforts keeps, for every race segment, the fastest effort of the
// activity on it. Efforts on other segments and efforts without a positive
// time are dropped. The result follows race segment order and has at most one
// entry per segment; segments the rider did not cover are simply absent.
func MatchSegmentEfforts(efforts []SegmentEffort, raceSegmentIDs []int64) []MatchedEffort {
	best := make(map[int64]SegmentEffort, len(raceSegmentIDs))
	wanted := make(map[int64]bool, len(raceSegmentIDs))
	for _, id := range raceSegmentIDs {
		wanted[id] = true
	}

	for _, e := range efforts {
		id := e.Segment.ID
		if !wanted[id] || e.ElapsedTime <= 0 {
			continue
		}
		if cur, ok := best[id]; !ok || e.ElapsedTime < cur.ElapsedTime {
			best[id] = e
		}
	}

	matched := make([]MatchedEffort, 0, len(best))
	for _, id := range raceSegmentIDs {
		e, ok := best[id]
		if !ok {
			continue
		}
		name := e.Segment.Name
		if name == "" {
			name = e.Name
		}
		matched = append(matched, MatchedEffort{SegmentID: id, SegmentName: name, ElapsedTime: e.ElapsedTime})
		delete(best, id)
	}
	return matched
}
