package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/matesrace/matesrace/internal/auth"
	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/realtime"
)

type joinRacePayload struct {
	Password string `json:"password"`
}

// handleJoinRace enrols the caller in a race after checking its password.
func (s *Server) handleJoinRace(w http.ResponseWriter, r *http.Request) {
	race := raceFromContext(r)

	user, status, err := s.currentUser(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}

	var payload joinRacePayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	_, err = s.db.GetParticipantByRaceAndUser(s.db.DB(), race.ID, user.StravaID)
	if err == nil {
		s.errorJSON(w, errors.New("you are already a participant in this race"), http.StatusConflict)
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}

	if race.IsPrivate && !auth.CheckPassword(payload.Password, race.PasswordHash) {
		log.Printf("WARN: athlete %d gave a wrong password for race %d", user.StravaID, race.ID)
		s.errorJSON(w, errors.New("incorrect password for private race"), http.StatusForbidden)
		return
	}

	var participant *database.Participant
	err = s.db.WriteTx(func(tx *sql.Tx) error {
		var addErr error
		participant, addErr = s.db.AddParticipant(tx, race.ID, user.StravaID)
		return addErr
	})
	if err != nil {
		log.Printf("ERROR: athlete %d could not join race %d: %v", user.StravaID, race.ID, err)
		s.errorJSON(w, errors.New("could not join race"), http.StatusInternalServerError)
		return
	}

	log.Printf("INFO: athlete %d joined race %d", user.StravaID, race.ID)

	if race.OrganiserID != user.StravaID {
		s.broker.NotifyUser(race.OrganiserID, realtime.Message{
			Type: realtime.TypeParticipantJoined,
			Payload: realtime.ParticipantPayload{
				RacePayload: realtime.RacePayload{RaceID: race.ID, RaceName: race.Name},
				UserID:      user.StravaID,
				Name:        user.Name(),
			},
		})
	}

	s.writeJSON(w, http.StatusCreated, envelope{"participant": toParticipantResponse(participant, true)})
}

// handleRemoveParticipant lets the organiser remove a rider and their results.
func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	race := raceFromContext(r)

	participantID, err := parseIDParam(r, "participantID")
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	participant, err := s.db.GetParticipantByID(s.db.DB(), participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.errorJSON(w, errors.New("participant not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, err, http.StatusInternalServerError)
		return
	}
	if participant.RaceID != race.ID {
		s.errorJSON(w, errors.New("participant does not belong to this race"), http.StatusBadRequest)
		return
	}

	err = s.db.WriteTx(func(tx *sql.Tx) error {
		return s.db.DeleteParticipant(tx, race.ID, participantID)
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.errorJSON(w, errors.New("participant not found"), http.StatusNotFound)
			return
		}
		s.errorJSON(w, errors.New("failed to remove participant"), http.StatusInternalServerError)
		return
	}

	log.Printf("INFO: participant %d removed from race %d", participantID, race.ID)
	s.notifyLeaderboardUpdated(race, participant.UserID)

	s.writeJSON(w, http.StatusOK, envelope{"message": "participant removed successfully"})
}

// notifyLeaderboardUpdated tells every member of the race, plus extra users,
// that the leaderboard changed.
func (s *Server) notifyLeaderboardUpdated(race *database.Race, extra ...int64) {
	members, err := s.db.GetRaceMemberIDs(s.db.DB(), race.ID)
	if err != nil {
		log.Printf("WARN: could not load members of race %d: %v", race.ID, err)
		return
	}
	s.broker.NotifyUsers(append(members, extra...), realtime.Message{
		Type:    realtime.TypeLeaderboardUpdated,
		Payload: realtime.RacePayload{RaceID: race.ID, RaceName: race.Name},
	})
}
