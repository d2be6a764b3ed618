package leaderboard_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matesrace/matesrace/internal/leaderboard"
)

const (
	organiserID = int64(1)
	riderA      = int64(10)
	riderB      = int64(20)
	outsider    = int64(99)
)

var (
	raceStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	raceEnd   = time.Date(2025, 6, 7, 23, 59, 0, 0, time.UTC)
	midRace   = raceStart.Add(72 * time.Hour)
	afterRace = raceEnd.Add(time.Hour)
)

func hiddenRace() leaderboard.Race {
	return leaderboard.Race{
		ID:                         7,
		SegmentIDs:                 []int64{101, 202},
		OrganiserID:                organiserID,
		StartDate:                  &raceStart,
		EndDate:                    &raceEnd,
		IsPrivate:                  true,
		HideLeaderboardUntilFinish: true,
	}
}

func exampleParticipants() []leaderboard.Participant {
	return []leaderboard.Participant{
		{
			ID: 1, UserID: riderB, Name: "Bea", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 310)},
		},
		{
			ID: 2, UserID: riderA, Name: "Alex", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 300), result(202, 200)},
		},
	}
}

func rowFor(t *testing.T, b leaderboard.Board, userID int64) leaderboard.Row {
	t.Helper()
	for _, r := range b.Rows {
		if r.UserID == userID {
			return r
		}
	}
	require.FailNowf(t, "row not found", "user %d", userID)
	return leaderboard.Row{}
}

func TestBuild_HiddenOngoingRace(t *testing.T) {
	race := hiddenRace()

	t.Run("outsider sees ranking but no times", func(t *testing.T) {
		lb := leaderboard.Build(race, exampleParticipants(), leaderboard.Viewer{UserID: outsider}, midRace)

		assert.Equal(t, leaderboard.StatusOngoing, lb.Status)
		assert.True(t, lb.Masked)
		require.Len(t, lb.Boards, 1)
		board := lb.Boards[0]
		assert.Equal(t, leaderboard.CategoryOverall, board.Category)
		require.Len(t, board.Rows, 2)

		a := board.Rows[0]
		assert.Equal(t, riderA, a.UserID)
		require.NotNil(t, a.Rank)
		assert.Equal(t, 1, *a.Rank)
		assert.Equal(t, leaderboard.CellHidden, a.Total.State)
		assert.Nil(t, a.Total.Seconds)
		assert.Equal(t, "Hidden", a.Total.Display)
		assert.Equal(t, "Hidden", a.Segments[0].Display)

		b := board.Rows[1]
		assert.Equal(t, riderB, b.UserID)
		assert.Nil(t, b.Rank)
		assert.True(t, b.DNF)
		assert.Equal(t, "DNF", b.Total.Display)
		assert.Equal(t, leaderboard.CellHidden, b.Segments[0].State)
		assert.Equal(t, leaderboard.CellMissing, b.Segments[1].State)
		assert.Equal(t, "-", b.Segments[1].Display)
	})

	t.Run("organiser sees every time", func(t *testing.T) {
		lb := leaderboard.Build(race, exampleParticipants(), leaderboard.Viewer{UserID: organiserID}, midRace)

		assert.False(t, lb.Masked)
		board := lb.Boards[0]
		a := rowFor(t, board, riderA)
		assert.Equal(t, "8m 20s", a.Total.Display)
		require.NotNil(t, a.Total.Seconds)
		assert.Equal(t, 500, *a.Total.Seconds)
		assert.Equal(t, "5m 00s", a.Segments[0].Display)
		assert.Equal(t, "3m 20s", a.Segments[1].Display)

		b := rowFor(t, board, riderB)
		assert.Equal(t, "5m 10s", b.Segments[0].Display)
	})

	t.Run("rider sees only their own times", func(t *testing.T) {
		lb := leaderboard.Build(race, exampleParticipants(), leaderboard.Viewer{UserID: riderA}, midRace)

		assert.True(t, lb.Masked)
		board := lb.Boards[0]
		a := rowFor(t, board, riderA)
		assert.True(t, a.IsViewer)
		assert.Equal(t, "8m 20s", a.Total.Display)

		b := rowFor(t, board, riderB)
		assert.False(t, b.IsViewer)
		assert.Equal(t, leaderboard.CellHidden, b.Segments[0].State)
	})

	t.Run("anonymous viewer is masked", func(t *testing.T) {
		lb := leaderboard.Build(race, exampleParticipants(), leaderboard.Viewer{}, midRace)

		assert.True(t, lb.Masked)
		for _, r := range lb.Boards[0].Rows {
			assert.False(t, r.IsViewer)
		}
	})
}

func TestBuild_Visibility(t *testing.T) {
	tests := map[string]struct {
		hide   bool
		now    time.Time
		viewer int64
		masked bool
	}{
		"hidden and ongoing masks outsider":      {hide: true, now: midRace, viewer: outsider, masked: true},
		"hidden and ongoing unmasks organiser":   {hide: true, now: midRace, viewer: organiserID, masked: false},
		"hidden and not started masks outsider":  {hide: true, now: raceStart.Add(-time.Hour), viewer: outsider, masked: true},
		"hidden and finished unmasks everyone":   {hide: true, now: afterRace, viewer: outsider, masked: false},
		"not hidden unmasks everyone":            {hide: false, now: midRace, viewer: outsider, masked: false},
		"not hidden and not started is unmasked": {hide: false, now: raceStart.Add(-time.Hour), viewer: outsider, masked: false},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			race := hiddenRace()
			race.HideLeaderboardUntilFinish = tt.hide

			lb := leaderboard.Build(race, exampleParticipants(), leaderboard.Viewer{UserID: tt.viewer}, tt.now)

			assert.Equal(t, tt.masked, lb.Masked)
			a := rowFor(t, lb.Boards[0], riderA)
			if tt.masked {
				assert.Equal(t, leaderboard.CellHidden, a.Total.State)
			} else {
				assert.Equal(t, leaderboard.CellValue, a.Total.State)
			}
		})
	}
}

func TestBuild_SkipsUnsubmittedRiders(t *testing.T) {
	participants := append(exampleParticipants(), leaderboard.Participant{
		ID: 3, UserID: 30, Name: "Cam",
	})

	lb := leaderboard.Build(hiddenRace(), participants, leaderboard.Viewer{UserID: organiserID}, midRace)

	assert.Len(t, lb.Boards[0].Rows, 2)
}

func TestBuild_RankingAndTies(t *testing.T) {
	race := hiddenRace()
	race.HideLeaderboardUntilFinish = false
	participants := []leaderboard.Participant{
		{ID: 1, UserID: 1, Name: "dnf-first", SubmittedRide: true},
		{ID: 2, UserID: 2, Name: "slow", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 400), result(202, 400)}},
		{ID: 3, UserID: 3, Name: "tie-a", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 100), result(202, 200)}},
		{ID: 4, UserID: 4, Name: "tie-b", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 200), result(202, 100)}},
		{ID: 5, UserID: 5, Name: "dnf-second", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(202, 10)}},
	}

	lb := leaderboard.Build(race, participants, leaderboard.Viewer{}, midRace)

	rows := lb.Boards[0].Rows
	require.Len(t, rows, 5)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"tie-a", "tie-b", "slow", "dnf-first", "dnf-second"}, names)
	assert.Equal(t, 1, *rows[0].Rank)
	assert.Equal(t, 2, *rows[1].Rank)
	assert.Equal(t, 3, *rows[2].Rank)
	assert.Nil(t, rows[3].Rank)
	assert.Nil(t, rows[4].Rank)
}

func TestBuild_SexCategories(t *testing.T) {
	race := hiddenRace()
	race.UseSexCategories = true
	race.HideLeaderboardUntilFinish = false

	participants := []leaderboard.Participant{
		{ID: 1, UserID: 1, Sex: "M", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 500), result(202, 500)}},
		{ID: 2, UserID: 2, Sex: "F", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 300), result(202, 300)}},
		{ID: 3, UserID: 3, Sex: "", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 100), result(202, 100)}},
		{ID: 4, UserID: 4, Sex: "m", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 50), result(202, 50)}},
		{ID: 5, UserID: 5, Sex: "X", SubmittedRide: true},
	}

	lb := leaderboard.Build(race, participants, leaderboard.Viewer{}, midRace)

	assert.True(t, lb.Categorised)
	require.Len(t, lb.Boards, 3)
	assert.Equal(t, leaderboard.CategoryFemale, lb.Boards[0].Category)
	assert.Equal(t, "Female Leaderboard", lb.Boards[0].Title)
	assert.Equal(t, leaderboard.CategoryMale, lb.Boards[1].Category)
	assert.Equal(t, leaderboard.CategoryOther, lb.Boards[2].Category)

	female, male, other := lb.Boards[0].Rows, lb.Boards[1].Rows, lb.Boards[2].Rows
	require.Len(t, female, 1)
	require.Len(t, male, 2)
	require.Len(t, other, 2)

	// ranks restart in every category
	assert.Equal(t, int64(4), male[0].UserID)
	assert.Equal(t, 1, *male[0].Rank)
	assert.Equal(t, 2, *male[1].Rank)
	assert.Equal(t, 1, *female[0].Rank)
	assert.Equal(t, 1, *other[0].Rank)
	assert.Nil(t, other[1].Rank)

	seen := map[int64]int{}
	for _, b := range lb.Boards {
		for _, r := range b.Rows {
			seen[r.ParticipantID]++
		}
	}
	assert.Len(t, seen, len(participants))
	for id, n := range seen {
		assert.Equalf(t, 1, n, "participant %d appears on %d boards", id, n)
	}
}

func TestBuild_EmptyCategoriesStillRendered(t *testing.T) {
	race := hiddenRace()
	race.UseSexCategories = true

	lb := leaderboard.Build(race, nil, leaderboard.Viewer{}, midRace)

	require.Len(t, lb.Boards, 3)
	for _, b := range lb.Boards {
		assert.NotNil(t, b.Rows)
		assert.Empty(t, b.Rows)
	}
}

func TestBuild_EmptyOtherBoardIsNotBackfilled(t *testing.T) {
	race := hiddenRace()
	race.UseSexCategories = true
	race.HideLeaderboardUntilFinish = false

	participants := []leaderboard.Participant{
		{ID: 1, UserID: riderA, Sex: "M", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 400), result(202, 400)}},
		{ID: 2, UserID: riderB, Sex: "F", SubmittedRide: true,
			SegmentResults: []leaderboard.SegmentResult{result(101, 300), result(202, 300)}},
	}

	lb := leaderboard.Build(race, participants, leaderboard.Viewer{}, midRace)

	require.Len(t, lb.Boards, 3)
	other := lb.Boards[2]
	assert.Equal(t, leaderboard.CategoryOther, other.Category)
	assert.Equal(t, "Other Category Leaderboard", other.Title)
	assert.Empty(t, other.Rows)
	assert.Len(t, lb.Boards[0].Rows, 1)
	assert.Len(t, lb.Boards[1].Rows, 1)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	participants := exampleParticipants()
	before := participants[1].SegmentResults[0]

	lb := leaderboard.Build(hiddenRace(), participants, leaderboard.Viewer{UserID: organiserID}, midRace)
	*lb.Boards[0].Rows[0].Segments[0].Seconds = 1

	assert.Equal(t, 300, *before.ElapsedTimeSeconds)
	assert.Equal(t, 300, *participants[1].SegmentResults[0].ElapsedTimeSeconds)
}

func TestCategorise(t *testing.T) {
	assert.Equal(t, leaderboard.CategoryMale, leaderboard.Categorise("M"))
	assert.Equal(t, leaderboard.CategoryMale, leaderboard.Categorise(" m "))
	assert.Equal(t, leaderboard.CategoryFemale, leaderboard.Categorise("f"))
	assert.Equal(t, leaderboard.CategoryOther, leaderboard.Categorise(""))
	assert.Equal(t, leaderboard.CategoryOther, leaderboard.Categorise("X"))
}

func TestCanViewTimes(t *testing.T) {
	statuses := []leaderboard.Status{
		leaderboard.StatusNotStarted, leaderboard.StatusOngoing, leaderboard.StatusFinished,
	}
	for _, hide := range []bool{true, false} {
		for _, status := range statuses {
			for _, organiser := range []bool{true, false} {
				for _, self := range []bool{true, false} {
					want := organiser || self || !hide || status == leaderboard.StatusFinished
					assert.Equalf(t, want, leaderboard.CanViewTimes(hide, status, organiser, self),
						"hide=%v status=%s organiser=%v self=%v", hide, status, organiser, self)
				}
			}
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{
		0:    "0m 00s",
		5:    "0m 05s",
		59:   "0m 59s",
		60:   "1m 00s",
		485:  "8m 05s",
		3725: "62m 05s",
		-3:   "0m 00s",
	}
	for in, want := range tests {
		assert.Equal(t, want, leaderboard.FormatDuration(in), "seconds=%d", in)
	}
}
