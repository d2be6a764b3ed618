package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/matesrace/matesrace/internal/leaderboard"
	"github.com/matesrace/matesrace/internal/metrics"
)

// handleGetLeaderboard builds the race leaderboard as the caller sees it.
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
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

	snapshot := toLeaderboardRace(race)
	riders := toLeaderboardParticipants(participants)
	for _, p := range riders {
		if stray := leaderboard.StrayResults(p, snapshot.SegmentIDs); len(stray) > 0 {
			log.Printf("WARN: participant %d of race %d has %d results for segments outside the race", p.ID, race.ID, len(stray))
		}
	}

	board := leaderboard.Build(snapshot, riders, leaderboard.Viewer{UserID: userID}, s.now())
	metrics.LeaderboardBuilds.WithLabelValues(strconv.FormatBool(board.Masked)).Inc()

	s.writeJSON(w, http.StatusOK, envelope{"leaderboard": board})
}
