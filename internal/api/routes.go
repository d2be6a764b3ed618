package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/matesrace/matesrace/internal/metrics"
)

// RegisterRoutes mounts the REST API under /api/v1 and metrics at /metrics.
func (s *Server) RegisterRoutes(r *chi.Mux) {
	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // request log lines
	r.Use(middleware.Recoverer) // panics become 500s

	// Prometheus scrapes outside the versioned API and without CORS.
	r.Handle("/metrics", metrics.Handler())

	// --- REST API with CORS ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", s.config.FrontendURL},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300, // seconds a preflight may be cached
		}))

		// Strava login
		r.Get("/auth/strava/login", s.handleStravaLogin)
		r.Get("/auth/strava/callback", s.handleStravaCallback)

		// --- Authenticated routes ---
		// Everything below requires a valid JWT, from the Authorization header
		// or, for EventSource clients, the token query parameter.
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/notifications/stream", s.handleSSE)

			r.Get("/users/me", s.handleGetMyProfile)

			r.Get("/races", s.handleListRaces)
			r.Get("/races/participating", s.handleListParticipatingRaces)
			r.Get("/races/organising", s.handleListOrganisingRaces)
			r.Post("/races", s.handleCreateRace)

			// Per-race routes. raceMiddleware loads the race or answers 404.
			r.Route("/races/{raceID}", func(r chi.Router) {
				r.Use(s.raceMiddleware)

				r.Get("/", s.handleGetRace)
				r.With(s.requireOrganiser).Put("/", s.handleUpdateRace)
				r.With(s.requireOrganiser).Delete("/", s.handleDeleteRace)

				r.Post("/join", s.handleJoinRace)
				r.With(s.requireOrganiser).Delete("/participants/{participantID}", s.handleRemoveParticipant)

				r.With(s.requireParticipant).Get("/strava-activities", s.handleListStravaActivities)
				r.With(s.requireParticipant).Post("/submit-activity", s.handleSubmitActivity)

				r.Get("/leaderboard", s.handleGetLeaderboard)
			})
		})
	})
}
