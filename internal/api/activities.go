package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/leaderboard"
	"github.com/matesrace/matesrace/internal/metrics"
	"github.com/matesrace/matesrace/internal/strava"
)

// stravaError maps a failed Strava call onto a response.
func (s *Server) stravaError(w http.ResponseWriter, err error, what string) {
	switch {
	case strava.IsUnauthorized(err):
		s.errorJSON(w, errors.New("strava authorization expired, please sign in again"), http.StatusUnauthorized)
	case strava.IsNotFound(err):
		s.errorJSON(w, fmt.Errorf("%s not found on strava", what), http.StatusNotFound)
	default:
		log.Printf("ERROR: strava request for %s failed: %v", what, err)
		s.errorJSON(w, fmt.Errorf("failed to fetch %s from strava", what), http.StatusBadGateway)
	}
}

// handleListStravaActivities lists the caller's rides inside the race window.
func (s *Server) handleListStravaActivities(w http.ResponseWriter, r *http.Request) {
	race := raceFromContext(r)
	if race.StartDate == nil || race.EndDate == nil {
		s.errorJSON(w, errors.New("race has no start or end date"), http.StatusBadRequest)
		return
	}

	user, status, err := s.currentUser(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}

	activities, err := s.stravaClientFor(r.Context(), user).ListActivities(r.Context(), *race.StartDate, *race.EndDate)
	if err != nil {
		s.stravaError(w, err, "activities")
		return
	}

	list := make([]ActivityResponse, 0, len(activities))
	for _, a := range activities {
		list = append(list, ActivityResponse{
			ID:             a.ID,
			Name:           a.Name,
			StartDateLocal: a.StartDateLocal,
			Distance:       a.Distance,
			ElapsedTime:    a.ElapsedTime,
			Type:           a.Type,
		})
	}
	s.writeJSON(w, http.StatusOK, envelope{"activities": list})
}

type submitActivityPayload struct {
	ActivityID int64 `json:"activityId"`
}

// handleSubmitActivity records the segment efforts of one of the caller's
// rides as their race result, replacing any earlier submission.
func (s *Server) handleSubmitActivity(w http.ResponseWriter, r *http.Request) {
	race := raceFromContext(r)
	participant := participantFromContext(r)

	outcome := metrics.OutcomeRejected
	defer func() {
		metrics.ActivitySubmissions.WithLabelValues(outcome).Inc()
	}()

	var payload submitActivityPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	if payload.ActivityID <= 0 {
		s.errorJSON(w, errors.New("activityId is required"), http.StatusBadRequest)
		return
	}

	if status := leaderboard.RaceStatus(s.now(), race.StartDate, race.EndDate); status != leaderboard.StatusOngoing {
		s.errorJSON(w, fmt.Errorf("rides can only be submitted while the race is ongoing (race is %s)", status), http.StatusConflict)
		return
	}

	user, status, err := s.currentUser(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}

	activity, err := s.stravaClientFor(r.Context(), user).GetActivity(r.Context(), payload.ActivityID)
	if err != nil {
		outcome = metrics.OutcomeError
		s.stravaError(w, err, "activity")
		return
	}
	if !activity.IsRide() {
		s.errorJSON(w, errors.New("only rides can be submitted"), http.StatusBadRequest)
		return
	}
	if started, ok := leaderboard.ParseTime(activity.StartDate); ok &&
		(started.Before(*race.StartDate) || started.After(*race.EndDate)) {
		s.errorJSON(w, errors.New("activity did not start within the race window"), http.StatusBadRequest)
		return
	}

	matched := strava.MatchSegmentEfforts(activity.SegmentEfforts, race.SegmentIDs())
	results := make([]database.SegmentResult, 0, len(matched))
	for _, m := range matched {
		results = append(results, database.SegmentResult{
			SegmentID:          m.SegmentID,
			SegmentName:        m.SegmentName,
			ElapsedTimeSeconds: sql.NullInt64{Int64: int64(m.ElapsedTime), Valid: true},
		})
	}

	var stored int
	err = s.db.WriteTx(func(tx *sql.Tx) error {
		var replaceErr error
		stored, replaceErr = s.db.ReplaceSegmentResults(tx, participant.ID, activity.ID, results)
		return replaceErr
	})
	if err != nil {
		outcome = metrics.OutcomeError
		log.Printf("ERROR: failed to store results of activity %d for participant %d: %v", activity.ID, participant.ID, err)
		s.errorJSON(w, errors.New("failed to save activity results"), http.StatusInternalServerError)
		return
	}
	outcome = metrics.OutcomeOK

	log.Printf("INFO: participant %d submitted activity %d to race %d (%d of %d segments)",
		participant.ID, activity.ID, race.ID, stored, len(race.Segments))
	s.notifyLeaderboardUpdated(race)

	s.writeJSON(w, http.StatusOK, envelope{
		"activityId":      activity.ID,
		"matchedSegments": stored,
		"totalSegments":   len(race.Segments),
	})
}
