package database_test

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matesrace/matesrace/internal/database"
)

func newTestService(t *testing.T) *database.Service {
	t.Helper()
	svc, err := database.NewService(filepath.Join(t.TempDir(), "main.db"))
	require.NoError(t, err)
	require.NoError(t, svc.InitSchema())
	t.Cleanup(svc.Close)
	return svc
}

func seedUser(t *testing.T, svc *database.Service, id int64, first, sex string) *database.User {
	t.Helper()
	u, err := svc.UpsertUser(svc.DB(), &database.User{
		StravaID:     id,
		FirstName:    first,
		LastName:     "Rider",
		Sex:          sex,
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return u
}

func raceParams(start, end time.Time, segments ...int64) database.RaceParams {
	p := database.RaceParams{
		Name:         "Sunday Hills",
		Info:         "three climbs",
		StartDate:    start,
		EndDate:      end,
		PasswordHash: "hash",
	}
	for _, id := range segments {
		p.Segments = append(p.Segments, database.RaceSegment{SegmentID: id, Name: "Climb"})
	}
	return p
}

func createRace(t *testing.T, svc *database.Service, organiser int64, p database.RaceParams) *database.Race {
	t.Helper()
	var race *database.Race
	err := svc.WriteTx(func(tx *sql.Tx) error {
		var err error
		race, err = svc.CreateRace(tx, organiser, p)
		return err
	})
	require.NoError(t, err)
	return race
}

func TestInitSchema_Idempotent(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.InitSchema())
}

func TestUpsertUser(t *testing.T) {
	svc := newTestService(t)

	first := seedUser(t, svc, 42, "Ada", "F")
	assert.Equal(t, "Ada Rider", first.Name())
	assert.Equal(t, "F", first.Sex)
	assert.False(t, first.CreatedAt.IsZero())

	updated, err := svc.UpsertUser(svc.DB(), &database.User{
		StravaID:    42,
		DisplayName: "ada_climbs",
		Sex:         "F",
		AccessToken: "new-access",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada_climbs", updated.Name())
	assert.Equal(t, "new-access", updated.AccessToken)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)
}

func TestUserName_Fallbacks(t *testing.T) {
	u := &database.User{StravaID: 7}
	assert.Equal(t, "User 7", u.Name())

	u.DisplayName = "  spinner "
	assert.Equal(t, "spinner", u.Name())

	u.LastName = "Merckx"
	assert.Equal(t, "Merckx", u.Name())
}

func TestUpdateUserTokens(t *testing.T) {
	svc := newTestService(t)
	seedUser(t, svc, 1, "Ada", "F")

	expiry := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.UpdateUserTokens(svc.DB(), 1, "a2", "r2", expiry))

	u, err := svc.GetUserByID(svc.DB(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a2", u.AccessToken)
	assert.Equal(t, "r2", u.RefreshToken)
	assert.True(t, expiry.Equal(u.TokenExpiry))

	err = svc.UpdateUserTokens(svc.DB(), 999, "a", "r", expiry)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = svc.GetUserByID(svc.DB(), 999)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRaceLifecycle(t *testing.T) {
	svc := newTestService(t)
	seedUser(t, svc, 1, "Olga", "F")
	seedUser(t, svc, 2, "Max", "M")

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)
	race := createRace(t, svc, 1, raceParams(start, end, 300, 100, 200))

	assert.Equal(t, "Sunday Hills", race.Name)
	assert.True(t, race.IsPrivate)
	assert.Equal(t, "Olga Rider", race.OrganiserName)
	assert.Equal(t, []int64{300, 100, 200}, race.SegmentIDs())
	require.NotNil(t, race.StartDate)
	assert.True(t, start.Equal(*race.StartDate))
	assert.True(t, end.Equal(*race.EndDate))

	t.Run("listing", func(t *testing.T) {
		all, err := svc.ListRaces(svc.DB())
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, []int64{300, 100, 200}, all[0].SegmentIDs())

		organising, err := svc.GetRacesByOrganiser(svc.DB(), 1)
		require.NoError(t, err)
		assert.Len(t, organising, 1)

		participating, err := svc.GetRacesByParticipant(svc.DB(), 2)
		require.NoError(t, err)
		assert.Empty(t, participating)
	})

	t.Run("update replaces segments and keeps password when empty", func(t *testing.T) {
		p := raceParams(start, end.Add(time.Hour), 100, 400)
		p.Name = "Renamed"
		p.PasswordHash = ""
		p.UseSexCategories = true

		var updated *database.Race
		err := svc.WriteTx(func(tx *sql.Tx) error {
			var err error
			updated, err = svc.UpdateRace(tx, race.ID, p)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, "hash", updated.PasswordHash)
		assert.True(t, updated.UseSexCategories)
		assert.Equal(t, []int64{100, 400}, updated.SegmentIDs())
	})

	t.Run("update of missing race", func(t *testing.T) {
		_, err := svc.UpdateRace(svc.DB(), 9999, raceParams(start, end, 1))
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestParticipantsAndResults(t *testing.T) {
	svc := newTestService(t)
	seedUser(t, svc, 1, "Olga", "F")
	seedUser(t, svc, 2, "Max", "M")
	seedUser(t, svc, 3, "Kim", "")

	start := time.Now().Add(-time.Hour)
	race := createRace(t, svc, 1, raceParams(start, start.Add(48*time.Hour), 11, 22))

	maxR, err := svc.AddParticipant(svc.DB(), race.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Max Rider", maxR.Name)
	assert.False(t, maxR.SubmittedRide)
	assert.Empty(t, maxR.SegmentResults)

	_, err = svc.AddParticipant(svc.DB(), race.ID, 2)
	assert.Error(t, err, "joining twice must fail")

	kim, err := svc.AddParticipant(svc.DB(), race.ID, 3)
	require.NoError(t, err)

	count, err := svc.CountParticipants(svc.DB(), race.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Run("replace results keeps race segments only", func(t *testing.T) {
		results := []database.SegmentResult{
			{SegmentID: 11, SegmentName: "A", ElapsedTimeSeconds: sql.NullInt64{Int64: 300, Valid: true}},
			{SegmentID: 99, SegmentName: "not in race", ElapsedTimeSeconds: sql.NullInt64{Int64: 5, Valid: true}},
			{SegmentID: 22, SegmentName: "B", ElapsedTimeSeconds: sql.NullInt64{Int64: 200, Valid: true}},
		}
		var stored int
		err := svc.WriteTx(func(tx *sql.Tx) error {
			var err error
			stored, err = svc.ReplaceSegmentResults(tx, maxR.ID, 777, results)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 2, stored)

		got, err := svc.GetParticipantByRaceAndUser(svc.DB(), race.ID, 2)
		require.NoError(t, err)
		assert.True(t, got.SubmittedRide)
		assert.Equal(t, int64(777), got.SubmittedActivityID.Int64)
		require.Len(t, got.SegmentResults, 2)
		assert.Equal(t, int64(11), got.SegmentResults[0].SegmentID)
		assert.Equal(t, int64(300), got.SegmentResults[0].ElapsedTimeSeconds.Int64)
	})

	t.Run("resubmission replaces previous results", func(t *testing.T) {
		results := []database.SegmentResult{
			{SegmentID: 22, SegmentName: "B", ElapsedTimeSeconds: sql.NullInt64{Int64: 150, Valid: true}},
		}
		_, err := svc.ReplaceSegmentResults(svc.DB(), maxR.ID, 778, results)
		require.NoError(t, err)

		got, err := svc.GetParticipantByID(svc.DB(), maxR.ID)
		require.NoError(t, err)
		require.Len(t, got.SegmentResults, 1)
		assert.Equal(t, int64(22), got.SegmentResults[0].SegmentID)
		assert.Equal(t, int64(778), got.SubmittedActivityID.Int64)
	})

	t.Run("race participants", func(t *testing.T) {
		all, err := svc.GetParticipantsByRaceID(svc.DB(), race.ID)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, maxR.ID, all[0].ID)
		assert.Len(t, all[0].SegmentResults, 1)
		assert.Equal(t, kim.ID, all[1].ID)
		assert.Empty(t, all[1].SegmentResults)

		members, err := svc.GetRaceMemberIDs(svc.DB(), race.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 2, 3}, members)

		joined, err := svc.GetRacesByParticipant(svc.DB(), 3)
		require.NoError(t, err)
		require.Len(t, joined, 1)
		assert.Equal(t, 2, joined[0].ParticipantCount)
	})

	t.Run("delete participant from another race", func(t *testing.T) {
		err := svc.DeleteParticipant(svc.DB(), race.ID+1, kim.ID)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("delete participant", func(t *testing.T) {
		require.NoError(t, svc.DeleteParticipant(svc.DB(), race.ID, kim.ID))
		_, err := svc.GetParticipantByID(svc.DB(), kim.ID)
		assert.True(t, errors.Is(err, sql.ErrNoRows))
	})

	t.Run("delete race cascades", func(t *testing.T) {
		require.NoError(t, svc.DeleteRace(svc.DB(), race.ID))

		_, err := svc.GetRaceByID(svc.DB(), race.ID)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		_, err = svc.GetParticipantByID(svc.DB(), maxR.ID)
		assert.ErrorIs(t, err, sql.ErrNoRows)

		var n int
		require.NoError(t, svc.DB().QueryRow(`SELECT COUNT(*) FROM participant_segment_results`).Scan(&n))
		assert.Zero(t, n)

		assert.ErrorIs(t, svc.DeleteRace(svc.DB(), race.ID), database.ErrNotFound)
	})
}

func TestUpdateRace_DropsResultsForRemovedSegments(t *testing.T) {
	svc := newTestService(t)
	seedUser(t, svc, 1, "Olga", "F")
	seedUser(t, svc, 2, "Max", "M")

	start := time.Now().Add(-time.Hour)
	end := start.Add(48 * time.Hour)
	race := createRace(t, svc, 1, raceParams(start, end, 11, 22))
	p, err := svc.AddParticipant(svc.DB(), race.ID, 2)
	require.NoError(t, err)
	_, err = svc.ReplaceSegmentResults(svc.DB(), p.ID, 1, []database.SegmentResult{
		{SegmentID: 11, ElapsedTimeSeconds: sql.NullInt64{Int64: 10, Valid: true}},
		{SegmentID: 22, ElapsedTimeSeconds: sql.NullInt64{Int64: 20, Valid: true}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateRace(svc.DB(), race.ID, raceParams(start, end, 22, 33))
	require.NoError(t, err)

	got, err := svc.GetParticipantByID(svc.DB(), p.ID)
	require.NoError(t, err)
	require.Len(t, got.SegmentResults, 1)
	assert.Equal(t, int64(22), got.SegmentResults[0].SegmentID)
}

func TestFinishNotification(t *testing.T) {
	svc := newTestService(t)
	seedUser(t, svc, 1, "Olga", "F")

	now := time.Now()
	finished := createRace(t, svc, 1, raceParams(now.Add(-48*time.Hour), now.Add(-time.Hour), 1))
	createRace(t, svc, 1, raceParams(now.Add(-time.Hour), now.Add(time.Hour), 1))

	due, err := svc.GetFinishedUnnotifiedRaces(svc.DB(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, finished.ID, due[0].ID)

	require.NoError(t, svc.MarkRaceFinishNotified(svc.DB(), finished.ID))

	due, err = svc.GetFinishedUnnotifiedRaces(svc.DB(), now)
	require.NoError(t, err)
	assert.Empty(t, due)

	assert.ErrorIs(t, svc.MarkRaceFinishNotified(svc.DB(), 12345), database.ErrNotFound)
}
