package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matesrace/matesrace/internal/auth"
	"github.com/matesrace/matesrace/internal/config"
	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/realtime"
	"github.com/matesrace/matesrace/internal/strava"
)

const maxBodyBytes = 1 << 20

// Server holds everything the HTTP handlers depend on: configuration, the
// database service, the realtime broker and the Strava integration. Handlers
// are methods on Server so they reach these without package-level state.
type Server struct {
	config   *config.Config
	db       *database.Service
	broker   *realtime.Broker
	strava   *strava.Service
	segments *strava.SegmentCache
	tokens   *auth.TokenIssuer

	// now is the clock used for race status; tests pin it.
	now func() time.Time
}

// NewServer wires the given dependencies into a Server. The token issuer is
// built from the JWT settings in cfg, and the clock defaults to time.Now.
func NewServer(cfg *config.Config, db *database.Service, broker *realtime.Broker, stravaSvc *strava.Service, segments *strava.SegmentCache) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		broker:   broker,
		strava:   stravaSvc,
		segments: segments,
		tokens:   auth.NewTokenIssuer(cfg.JwtSecret, cfg.JwtTTL),
		now:      time.Now,
	}
}

// envelope wraps responses, e.g. `envelope{"race": race}`.
type envelope map[string]interface{}

// writeJSON marshals data as indented JSON and writes it with the given
// status. Optional headers are copied onto the response before the status is
// written.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}, headers ...http.Header) {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		// Plain text here, the JSON error shape cannot be trusted to marshal either.
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// errorJSON writes `{"error": "..."}` with the given status, 500 by default.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status ...int) {
	statusCode := http.StatusInternalServerError
	if len(status) > 0 {
		statusCode = status[0]
	}
	s.writeJSON(w, statusCode, envelope{"error": err.Error()})
}

// readJSON decodes a single JSON object from the body into dst, rejecting
// unknown fields and trailing data.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("bad request: body must not be larger than %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("bad request: body must not be empty")
		default:
			return fmt.Errorf("bad request: could not decode JSON: %w", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("bad request: body must only contain a single JSON object")
	}
	return nil
}
