package strava

import (
	"context"
	"log"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL = "https://www.strava.com/oauth/token"
	DefaultAPIURL   = "https://www.strava.com/api/v3"

	// Strava takes a comma-separated scope list in a single parameter.
	scope = "read,activity:read_all"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Optional overrides, mainly for tests.
	AuthURL    string
	TokenURL   string
	APIURL     string
	HTTPClient *http.Client
}

// Service builds OAuth flows and per-athlete API clients.
type Service struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

func NewService(cfg Config) *Service {
	authURL := firstNonEmpty(cfg.AuthURL, DefaultAuthURL)
	tokenURL := firstNonEmpty(cfg.TokenURL, DefaultTokenURL)

	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     firstNonEmpty(cfg.APIURL, DefaultAPIURL),
		httpClient: cfg.HTTPClient,
	}
}

// AuthCodeURL is the Strava consent page URL for the given CSRF state.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Exchange trades an authorization code for a token. Strava includes the
// athlete in the token response; see AthleteIDFromToken.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauth.Exchange(s.oauthContext(ctx), code)
}

// AthleteIDFromToken reads the athlete ID from the token response extras.
func AthleteIDFromToken(tok *oauth2.Token) (int64, bool) {
	athlete, ok := tok.Extra("athlete").(map[string]interface{})
	if !ok {
		return 0, false
	}
	id, ok := athlete["id"].(float64)
	if !ok || id <= 0 {
		return 0, false
	}
	return int64(id), true
}

func (s *Service) oauthContext(ctx context.Context) context.Context {
	if s.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	return ctx
}

// TokenSaver persists a token after it was refreshed.
type TokenSaver func(tok *oauth2.Token) error

// savingTokenSource calls save whenever the wrapped source hands out a new
// access token. A failed save is logged; the fresh token is still used.
type savingTokenSource struct {
	mu      sync.Mutex
	src     oauth2.TokenSource
	current string
	save    TokenSaver
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.current {
		s.current = tok.AccessToken
		if s.save != nil {
			if err := s.save(tok); err != nil {
				log.Printf("WARN: could not persist refreshed Strava token: %v", err)
			}
		}
	}
	return tok, nil
}

// Client returns an API client acting as the athlete owning tok. Expired
// tokens are refreshed on demand and handed to save.
func (s *Service) Client(ctx context.Context, tok *oauth2.Token, save TokenSaver) *Client {
	octx := s.oauthContext(ctx)
	ts := &savingTokenSource{
		src:     s.oauth.TokenSource(octx, tok),
		current: tok.AccessToken,
		save:    save,
	}
	return &Client{
		baseURL: s.apiURL,
		http:    oauth2.NewClient(octx, ts),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
