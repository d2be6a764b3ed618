package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for the application, read from the
// environment (optionally seeded from a .env file by main).
type Config struct {
	// --- Server & Paths ---
	ServerAddr  string
	DataPath    string
	DbPath      string
	CachePath   string
	FrontendURL string

	// --- Security ---
	JwtSecret string
	JwtTTL    time.Duration

	// --- Strava OAuth 2.0 & API ---
	StravaClientID     string
	StravaClientSecret string
	StravaRedirectURL  string
	StravaAPIURL       string

	// --- Background jobs ---
	FinishCheckCron string

	// --- Parsed & Derived Fields ---
	ParsedFrontendURL *url.URL
}

// New loads the configuration from environment variables, applies defaults
// and fails fast when a required value is missing or malformed.
func New() (*Config, error) {
	cfg := &Config{
		ServerAddr:         os.Getenv("SERVER_ADDR"),
		DataPath:           os.Getenv("DATA_PATH"),
		JwtSecret:          os.Getenv("JWT_SECRET"),
		FrontendURL:        os.Getenv("FRONTEND_URL"),
		StravaClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		StravaClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
		StravaRedirectURL:  os.Getenv("STRAVA_REDIRECT_URL"),
		StravaAPIURL:       os.Getenv("STRAVA_API_URL"),
		FinishCheckCron:    os.Getenv("FINISH_CHECK_CRON"),
	}

	// --- Defaults ---
	if cfg.DataPath == "" {
		cfg.DataPath = "./data"
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.StravaAPIURL == "" {
		cfg.StravaAPIURL = "https://www.strava.com/api/v3"
	}
	if cfg.FinishCheckCron == "" {
		cfg.FinishCheckCron = "@every 1m"
	}

	cfg.JwtTTL = 24 * time.Hour
	if v := os.Getenv("JWT_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("FATAL: invalid JWT_TTL %q", v)
		}
		cfg.JwtTTL = ttl
	}

	// --- Required values ---
	if cfg.JwtSecret == "" {
		return nil, errors.New("FATAL: JWT_SECRET environment variable is not set")
	}
	if cfg.FrontendURL == "" {
		return nil, errors.New("FATAL: FRONTEND_URL environment variable is not set")
	}
	if cfg.StravaClientID == "" || cfg.StravaClientSecret == "" {
		return nil, errors.New("FATAL: Strava OAuth credentials are not set")
	}

	// --- Derived ---
	parsedURL, err := url.Parse(cfg.FrontendURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.New("FATAL: Invalid FRONTEND_URL format")
	}
	cfg.ParsedFrontendURL = parsedURL

	if cfg.StravaRedirectURL == "" {
		cfg.StravaRedirectURL = "http://localhost" + cfg.ServerAddr + "/api/v1/auth/strava/callback"
	}

	cfg.DbPath = filepath.Join(cfg.DataPath, "databases")
	cfg.CachePath = filepath.Join(cfg.DataPath, "cache")

	return cfg, nil
}
