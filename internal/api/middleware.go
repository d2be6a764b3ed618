package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matesrace/matesrace/internal/database"
)

type contextKey string

const (
	userContextKey        = contextKey("userID")
	raceContextKey        = contextKey("race")
	participantContextKey = contextKey("participant")
)

// authMiddleware accepts a bearer token from the Authorization header or,
// for event streams that cannot set headers, from the token query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		headerParts := strings.Split(r.Header.Get("Authorization"), " ")
		if len(headerParts) == 2 && strings.ToLower(headerParts[0]) == "bearer" {
			tokenString = headerParts[1]
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			s.errorJSON(w, errors.New("authorization token is required"), http.StatusUnauthorized)
			return
		}

		claims, err := s.tokens.Validate(tokenString)
		if err != nil {
			s.errorJSON(w, errors.New("invalid or expired token"), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims.AthleteID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getUserIDFromContext returns the athlete ID set by authMiddleware.
func (s *Server) getUserIDFromContext(r *http.Request) (int64, error) {
	userID, ok := r.Context().Value(userContextKey).(int64)
	if !ok {
		return 0, errors.New("could not retrieve user ID from context")
	}
	return userID, nil
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// raceMiddleware loads the race named by {raceID} into the request context.
func (s *Server) raceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raceID, err := parseIDParam(r, "raceID")
		if err != nil {
			s.errorJSON(w, err, http.StatusBadRequest)
			return
		}

		race, err := s.db.GetRaceByID(s.db.DB(), raceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.errorJSON(w, errors.New("race not found"), http.StatusNotFound)
				return
			}
			s.errorJSON(w, err, http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), raceContextKey, race)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func raceFromContext(r *http.Request) *database.Race {
	race, _ := r.Context().Value(raceContextKey).(*database.Race)
	return race
}

// requireOrganiser rejects callers who did not create the race.
func (s *Server) requireOrganiser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.getUserIDFromContext(r)
		if err != nil {
			s.errorJSON(w, err, http.StatusInternalServerError)
			return
		}
		if raceFromContext(r).OrganiserID != userID {
			s.errorJSON(w, errors.New("only the race organiser can do this"), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireParticipant rejects callers who have not joined the race and puts
// their participant record into the context.
func (s *Server) requireParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.getUserIDFromContext(r)
		if err != nil {
			s.errorJSON(w, err, http.StatusInternalServerError)
			return
		}

		p, err := s.db.GetParticipantByRaceAndUser(s.db.DB(), raceFromContext(r).ID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.errorJSON(w, errors.New("you are not a participant in this race"), http.StatusForbidden)
				return
			}
			s.errorJSON(w, err, http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), participantContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func participantFromContext(r *http.Request) *database.Participant {
	p, _ := r.Context().Value(participantContextKey).(*database.Participant)
	return p
}
