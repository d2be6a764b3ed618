package leaderboard

import (
	"sort"
	"strings"
)

// Category names a leaderboard partition.
type Category string

const (
	CategoryOverall Category = "overall"
	CategoryFemale  Category = "female"
	CategoryMale    Category = "male"
	CategoryOther   Category = "other"
)

// Title is the heading shown above a category board.
func (c Category) Title() string {
	switch c {
	case CategoryFemale:
		return "Female Leaderboard"
	case CategoryMale:
		return "Male Leaderboard"
	case CategoryOther:
		return "Other Category Leaderboard"
	default:
		return "Overall Leaderboard"
	}
}

// Categorise maps a rider's sex attribute onto a category. Anything other than
// M or F, including an empty value, lands in CategoryOther.
func Categorise(sex string) Category {
	switch strings.ToUpper(strings.TrimSpace(sex)) {
	case "M":
		return CategoryMale
	case "F":
		return CategoryFemale
	default:
		return CategoryOther
	}
}

// Entry pairs a participant with its aggregated times.
type Entry struct {
	Participant Participant
	Aggregation Aggregation
}

// RankedEntry is an Entry with its position. Rank is nil for DNF riders.
type RankedEntry struct {
	Entry
	Rank *int
}

// Rank orders entries: complete riders ascending by total, then DNF riders in
// input order. Ties keep input order. Ranks are 1-based positions within the
// complete group only.
func Rank(entries []Entry) []RankedEntry {
	complete := make([]Entry, 0, len(entries))
	var dnf []Entry
	for _, e := range entries {
		if e.Aggregation.Total != nil {
			complete = append(complete, e)
		} else {
			dnf = append(dnf, e)
		}
	}

	sort.SliceStable(complete, func(i, j int) bool {
		return *complete[i].Aggregation.Total < *complete[j].Aggregation.Total
	})

	ranked := make([]RankedEntry, 0, len(entries))
	for i, e := range complete {
		pos := i + 1
		ranked = append(ranked, RankedEntry{Entry: e, Rank: &pos})
	}
	for _, e := range dnf {
		ranked = append(ranked, RankedEntry{Entry: e})
	}
	return ranked
}

// Partition splits entries into category groups, keeping input order within
// each group. Every entry lands in exactly one group.
func Partition(entries []Entry) map[Category][]Entry {
	groups := make(map[Category][]Entry, 3)
	for _, e := range entries {
		c := Categorise(e.Participant.Sex)
		groups[c] = append(groups[c], e)
	}
	return groups
}
