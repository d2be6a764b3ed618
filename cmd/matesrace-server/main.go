package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/matesrace/matesrace/internal/api"
	"github.com/matesrace/matesrace/internal/config"
	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/realtime"
	"github.com/matesrace/matesrace/internal/scheduler"
	"github.com/matesrace/matesrace/internal/strava"
)

const shutdownTimeout = 5 * time.Second

// main is the entry point for the MatesRace backend server.
func main() {
	// --- 1. Load Configuration ---
	// A .env file is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found, using environment variables from the system.")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("FATAL: Failed to load application configuration: %v", err)
	}

	// --- 2. Ensure Required Directories Exist ---
	for _, dir := range []string{cfg.DbPath, cfg.CachePath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create directory %s: %v", dir, err)
		}
	}
	log.Println("INFO: Application directories verified.")

	// --- 3. Storage ---
	dbService, err := database.NewService(filepath.Join(cfg.DbPath, "main.db"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database service: %v", err)
	}
	defer dbService.Close()

	if err := dbService.InitSchema(); err != nil {
		log.Fatalf("FATAL: Failed to initialize database schema: %v", err)
	}
	log.Println("INFO: Database schema verified.")

	segmentCache, err := strava.OpenSegmentCache(filepath.Join(cfg.CachePath, "segments.db"))
	if err != nil {
		log.Fatalf("FATAL: Failed to open segment cache: %v", err)
	}
	defer segmentCache.Close()

	// --- 4. Services ---
	broker := realtime.NewBroker()

	stravaService := strava.NewService(strava.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RedirectURL:  cfg.StravaRedirectURL,
		APIURL:       cfg.StravaAPIURL,
	})

	finishChecker, err := scheduler.New(cfg.FinishCheckCron, dbService, broker)
	if err != nil {
		log.Fatalf("FATAL: Failed to set up race finish check: %v", err)
	}

	// --- 5. API Server and Routes ---
	serverAPI := api.NewServer(cfg, dbService, broker, stravaService, segmentCache)
	router := chi.NewRouter()
	serverAPI.RegisterRoutes(router)
	log.Println("INFO: API routes registered.")

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	// --- 6. Run until interrupted ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finishChecker.Start()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Printf("INFO: MatesRace server starting on %s", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Println("INFO: Shutting down.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Open event streams never finish on their own.
		broker.Close()
		select {
		case <-finishChecker.Stop().Done():
		case <-shutdownCtx.Done():
			log.Println("WARN: race finish check still running at shutdown")
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		log.Printf("ERROR: Server stopped with error: %v", err)
		return
	}
	log.Println("INFO: Server stopped.")
}
