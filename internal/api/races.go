package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/matesrace/matesrace/internal/auth"
	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/leaderboard"
)

var errPasswordHash = errors.New("could not hash password")

const (
	maxRaceNameLength = 100
	maxRaceInfoLength = 2000
)

// racePayload is the body of race create and update requests. Dates are
// ISO 8601; a missing zone means UTC.
type racePayload struct {
	Name                       string  `json:"name"`
	Description                string  `json:"description"`
	StartDate                  string  `json:"startDate"`
	EndDate                    string  `json:"endDate"`
	SegmentIDs                 []int64 `json:"segmentIds"`
	Password                   string  `json:"password"`
	HideLeaderboardUntilFinish bool    `json:"hideLeaderboardUntilFinish"`
	UseSexCategories           bool    `json:"useSexCategories"`
}

// validate checks the payload and turns it into params without segment
// names or password hash. On update an empty password keeps the old one.
func (p *racePayload) validate(requirePassword bool) (database.RaceParams, error) {
	var params database.RaceParams

	name := strings.TrimSpace(p.Name)
	if name == "" {
		return params, errors.New("race name is required")
	}
	if len([]rune(name)) > maxRaceNameLength {
		return params, fmt.Errorf("race name must be at most %d characters", maxRaceNameLength)
	}
	info := strings.TrimSpace(p.Description)
	if len([]rune(info)) > maxRaceInfoLength {
		return params, fmt.Errorf("description must be at most %d characters", maxRaceInfoLength)
	}

	start, ok := leaderboard.ParseTime(p.StartDate)
	if !ok {
		return params, errors.New("startDate must be an ISO 8601 date and time")
	}
	end, ok := leaderboard.ParseTime(p.EndDate)
	if !ok {
		return params, errors.New("endDate must be an ISO 8601 date and time")
	}
	if !end.After(start) {
		return params, errors.New("endDate must be after startDate")
	}

	if len(p.SegmentIDs) == 0 {
		return params, errors.New("at least one segment is required")
	}
	seen := make(map[int64]bool, len(p.SegmentIDs))
	segments := make([]database.RaceSegment, 0, len(p.SegmentIDs))
	for _, id := range p.SegmentIDs {
		if id <= 0 {
			return params, fmt.Errorf("invalid segment id %d", id)
		}
		if seen[id] {
			return params, fmt.Errorf("segment %d is listed more than once", id)
		}
		seen[id] = true
		segments = append(segments, database.RaceSegment{SegmentID: id})
	}

	if p.Password != "" || requirePassword {
		if err := auth.ValidatePassword(p.Password); err != nil {
			return params, err
		}
	}

	params = database.RaceParams{
		Name:                       name,
		Info:                       info,
		StartDate:                  start,
		EndDate:                    end,
		HideLeaderboardUntilFinish: p.HideLeaderboardUntilFinish,
		UseSexCategories:           p.UseSexCategories,
		Segments:                   segments,
	}
	return params, nil
}

// readRaceParams decodes and validates a race body, hashes the password and
// resolves segment names as the organiser.
func (s *Server) readRaceParams(w http.ResponseWriter, r *http.Request, organiser *database.User, requirePassword bool) (database.RaceParams, error) {
	var payload racePayload
	if err := s.readJSON(w, r, &payload); err != nil {
		return database.RaceParams{}, err
	}

	params, err := payload.validate(requirePassword)
	if err != nil {
		return params, err
	}

	if payload.Password != "" {
		params.PasswordHash, err = auth.HashPassword(payload.Password)
		if err != nil {
			return params, fmt.Errorf("%w: %v", errPasswordHash, err)
		}
	}

	client := s.stravaClientFor(r.Context(), organiser)
	names := s.segments.Names(r.Context(), client.GetSegment, segmentIDs(params.Segments))
	for i := range params.Segments {
		params.Segments[i].Name = names[params.Segments[i].SegmentID]
	}
	return params, nil
}

func segmentIDs(segments []database.RaceSegment) []int64 {
	ids := make([]int64, 0, len(segments))
	for _, seg := range segments {
		ids = append(ids, seg.SegmentID)
	}
	return ids
}

// raceParamsError reports payload errors as 400 and hashing failures as 500.
func (s *Server) raceParamsError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPasswordHash) {
		s.errorJSON(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}
	s.errorJSON(w, err, http.StatusBadRequest)
}

func (s *Server) handleListRaces(w http.ResponseWriter, r *http.Request) {
	races, err := s.db.ListRaces(s.db.DB())
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"races": toRaceResponseList(races, s.now())})
}

func (s *Server) handleListParticipatingRaces(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	races, err := s.db.GetRacesByParticipant(s.db.DB(), userID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"races": toRaceResponseList(races, s.now())})
}

func (s *Server) handleListOrganisingRaces(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	races, err := s.db.GetRacesByOrganiser(s.db.DB(), userID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"races": toRaceResponseList(races, s.now())})
}

// handleCreateRace creates a private race owned by the caller.
func (s *Server) handleCreateRace(w http.ResponseWriter, r *http.Request) {
	user, status, err := s.currentUser(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}

	params, err := s.readRaceParams(w, r, user, true)
	if err != nil {
		s.raceParamsError(w, err)
		return
	}

	var race *database.Race
	err = s.db.WriteTx(func(tx *sql.Tx) error {
		var createErr error
		race, createErr = s.db.CreateRace(tx, user.StravaID, params)
		return createErr
	})
	if err != nil {
		log.Printf("ERROR: failed to create race for athlete %d: %v", user.StravaID, err)
		s.errorJSON(w, errors.New("failed to create race"), http.StatusInternalServerError)
		return
	}

	log.Printf("INFO: athlete %d created race %d", user.StravaID, race.ID)
	s.writeJSON(w, http.StatusCreated, envelope{"race": toRaceResponse(race, s.now())})
}

// handleGetRace returns the race with its participants. Segment times the
// caller may not see are marked hidden.
func (s *Server) handleGetRace(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	race := raceFromContext(r)

	participants, err := s.db.GetParticipantsByRaceID(s.db.DB(), race.ID)
	if err != nil {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"race": toRaceDetailResponse(race, participants, userID, s.now())})
}

// handleUpdateRace edits a race that has not finished yet.
func (s *Server) handleUpdateRace(w http.ResponseWriter, r *http.Request) {
	race := raceFromContext(r)
	if leaderboard.RaceStatus(s.now(), race.StartDate, race.EndDate) == leaderboard.StatusFinished {
		s.errorJSON(w, errors.New("a finished race cannot be edited"), http.StatusConflict)
		return
	}

	user, status, err := s.currentUser(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}

	params, err := s.readRaceParams(w, r, user, false)
	if err != nil {
		s.raceParamsError(w, err)
		return
	}

	var updated *database.Race
	err = s.db.WriteTx(func(tx *sql.Tx) error {
		var updateErr error
		updated, updateErr = s.db.UpdateRace(tx, race.ID, params)
		return updateErr
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("race not found"), http.StatusNotFound)
			return
		}
		log.Printf("ERROR: failed to update race %d: %v", race.ID, err)
		s.errorJSON(w, errors.New("failed to update race"), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"race": toRaceResponse(updated, s.now())})
}

// handleDeleteRace removes a race together with its participants and results.
func (s *Server) handleDeleteRace(w http.ResponseWriter, r *http.Request) {
	race := raceFromContext(r)

	err := s.db.WriteTx(func(tx *sql.Tx) error {
		return s.db.DeleteRace(tx, race.ID)
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("race not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, errors.New("failed to delete race"), http.StatusInternalServerError)
		return
	}

	log.Printf("INFO: race %d deleted by its organiser", race.ID)
	s.writeJSON(w, http.StatusOK, envelope{"message": "race deleted successfully"})
}
