// Package leaderboard derives race status and builds ranked, masked
// leaderboards from an in-memory snapshot of a race and its participants.
//
// Everything here is pure: the caller supplies the viewer and the current time
// and gets back a fresh result. Nothing is cached between calls, so one
// snapshot can serve any number of viewers.
package leaderboard

import (
	"fmt"
	"time"
)

// CellState distinguishes the three ways a time cell can render.
type CellState string

const (
	CellValue   CellState = "value"
	CellHidden  CellState = "hidden"
	CellMissing CellState = "missing"
)

const (
	displayHidden  = "Hidden"
	displayMissing = "-"
	displayDNF     = "DNF"
)

// Cell is one rendered time. Seconds is only set for CellValue.
type Cell struct {
	State   CellState `json:"state"`
	Seconds *int      `json:"seconds"`
	Display string    `json:"display"`
}

// Row is one rider on a board.
type Row struct {
	ParticipantID int64  `json:"participantId"`
	UserID        int64  `json:"userId"`
	Name          string `json:"name"`
	Picture       string `json:"picture,omitempty"`
	Sex           string `json:"sex,omitempty"`
	Rank          *int   `json:"rank"`
	DNF           bool   `json:"dnf"`
	IsViewer      bool   `json:"isViewer"`
	Total         Cell   `json:"total"`
	Segments      []Cell `json:"segments"`
}

// Board is a ranked list of rows for one category.
type Board struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Rows     []Row    `json:"rows"`
}

// Leaderboard is the complete view of a race for a single viewer.
type Leaderboard struct {
	RaceID      int64   `json:"raceId"`
	Status      Status  `json:"status"`
	Masked      bool    `json:"masked"`
	Categorised bool    `json:"categorised"`
	SegmentIDs  []int64 `json:"segmentIds"`
	Boards      []Board `json:"boards"`
}

// Build computes the leaderboard of race as seen by viewer at now. Riders who
// have not submitted a ride are left out.
func Build(race Race, participants []Participant, viewer Viewer, now time.Time) Leaderboard {
	status := RaceStatus(now, race.StartDate, race.EndDate)

	entries := make([]Entry, 0, len(participants))
	for _, p := range participants {
		if !p.SubmittedRide {
			continue
		}
		entries = append(entries, Entry{Participant: p, Aggregation: Aggregate(p, race.SegmentIDs)})
	}

	lb := Leaderboard{
		RaceID:      race.ID,
		Status:      status,
		Masked:      Masked(race, status, viewer),
		Categorised: race.UseSexCategories,
		SegmentIDs:  race.SegmentIDs,
	}

	if !race.UseSexCategories {
		lb.Boards = []Board{buildBoard(CategoryOverall, entries, race, status, viewer)}
		return lb
	}

	groups := Partition(entries)
	for _, c := range []Category{CategoryFemale, CategoryMale, CategoryOther} {
		lb.Boards = append(lb.Boards, buildBoard(c, groups[c], race, status, viewer))
	}
	return lb
}

func buildBoard(c Category, entries []Entry, race Race, status Status, viewer Viewer) Board {
	ranked := Rank(entries)
	rows := make([]Row, 0, len(ranked))
	for _, re := range ranked {
		rows = append(rows, buildRow(re, race, status, viewer))
	}
	return Board{Category: c, Title: c.Title(), Rows: rows}
}

func buildRow(re RankedEntry, race Race, status Status, viewer Viewer) Row {
	p := re.Participant
	isViewer := viewer.UserID != 0 && viewer.UserID == p.UserID
	isOrganiser := viewer.UserID != 0 && viewer.UserID == race.OrganiserID
	visible := CanViewTimes(race.HideLeaderboardUntilFinish, status, isOrganiser, isViewer)

	row := Row{
		ParticipantID: p.ID,
		UserID:        p.UserID,
		Name:          p.Name,
		Picture:       p.Picture,
		Sex:           p.Sex,
		Rank:          re.Rank,
		DNF:           re.Aggregation.DNF(),
		IsViewer:      isViewer,
		Segments:      make([]Cell, 0, len(re.Aggregation.SegmentTimes)),
	}

	for _, st := range re.Aggregation.SegmentTimes {
		row.Segments = append(row.Segments, timeCell(st.Seconds, visible))
	}

	if row.DNF {
		row.Total = Cell{State: CellMissing, Display: displayDNF}
	} else {
		row.Total = timeCell(re.Aggregation.Total, visible)
	}
	return row
}

func timeCell(seconds *int, visible bool) Cell {
	switch {
	case seconds == nil:
		return Cell{State: CellMissing, Display: displayMissing}
	case !visible:
		return Cell{State: CellHidden, Display: displayHidden}
	default:
		s := *seconds
		return Cell{State: CellValue, Seconds: &s, Display: FormatDuration(s)}
	}
}

// FormatDuration renders seconds as minutes and zero-padded seconds, e.g. "8m 05s".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm %02ds", seconds/60, seconds%60)
}
