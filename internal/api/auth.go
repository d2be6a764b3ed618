package api

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/matesrace/matesrace/internal/database"
	"github.com/matesrace/matesrace/internal/strava"
)

const stateCookieName = "oauthstate"

// generateStateOauthCookie creates a random state string and sets it as an
// HttpOnly cookie to guard the OAuth round trip against CSRF.
func generateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

// handleStravaLogin redirects the user to Strava's consent page.
func (s *Server) handleStravaLogin(w http.ResponseWriter, r *http.Request) {
	state := generateStateOauthCookie(w)
	http.Redirect(w, r, s.strava.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// handleStravaCallback is where Strava sends the user back after consent.
func (s *Server) handleStravaCallback(w http.ResponseWriter, r *http.Request) {
	// 1. Validate the state cookie.
	oauthState, err := r.Cookie(stateCookieName)
	if err != nil || oauthState.Value == "" || r.FormValue("state") != oauthState.Value {
		s.errorJSON(w, errors.New("invalid oauth state"), http.StatusUnauthorized)
		return
	}

	if errParam := r.FormValue("error"); errParam != "" {
		s.errorJSON(w, fmt.Errorf("strava authorization denied: %s", errParam), http.StatusUnauthorized)
		return
	}

	// 2. Exchange the code. Strava puts the athlete into the token response.
	token, err := s.strava.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to exchange code for token: %w", err), http.StatusBadGateway)
		return
	}
	athleteID, ok := strava.AthleteIDFromToken(token)
	if !ok {
		s.errorJSON(w, errors.New("strava token response did not include an athlete"), http.StatusBadGateway)
		return
	}

	// 3. Fetch the full profile.
	client := s.strava.Client(r.Context(), token, nil)
	athlete, err := client.GetAthlete(r.Context())
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to get athlete profile: %w", err), http.StatusBadGateway)
		return
	}
	if athlete.ID != 0 && athlete.ID != athleteID {
		s.errorJSON(w, errors.New("strava athlete mismatch"), http.StatusBadGateway)
		return
	}

	// 4. Upsert the user together with their Strava tokens.
	var user *database.User
	err = s.db.WriteTx(func(tx *sql.Tx) error {
		var upsertErr error
		user, upsertErr = s.db.UpsertUser(tx, &database.User{
			StravaID:     athleteID,
			DisplayName:  athlete.DisplayName(),
			FirstName:    athlete.FirstName,
			LastName:     athlete.LastName,
			Picture:      athlete.Picture(),
			Sex:          athlete.Sex,
			City:         athlete.City,
			State:        athlete.State,
			Country:      athlete.Country,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			TokenExpiry:  token.Expiry,
		})
		return upsertErr
	})
	if err != nil {
		log.Printf("ERROR: failed to save Strava athlete %d: %v", athleteID, err)
		s.errorJSON(w, errors.New("failed to save user"), http.StatusInternalServerError)
		return
	}

	// 5. Issue our own session token.
	appToken, err := s.tokens.Issue(user.StravaID)
	if err != nil {
		s.errorJSON(w, errors.New("could not generate token"), http.StatusInternalServerError)
		return
	}

	log.Printf("INFO: athlete %d signed in", user.StravaID)

	// 6. Hand the token to the frontend.
	redirectURL := fmt.Sprintf("%s/auth/callback?token=%s", s.config.FrontendURL, url.QueryEscape(appToken))
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}

// stravaClientFor returns a Strava client acting as user. Refreshed tokens
// are written back to the users table.
func (s *Server) stravaClientFor(ctx context.Context, user *database.User) *strava.Client {
	tok := &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		Expiry:       user.TokenExpiry,
		TokenType:    "Bearer",
	}
	return s.strava.Client(ctx, tok, func(fresh *oauth2.Token) error {
		return s.db.WriteTx(func(tx *sql.Tx) error {
			return s.db.UpdateUserTokens(tx, user.StravaID, fresh.AccessToken, fresh.RefreshToken, fresh.Expiry)
		})
	})
}

// currentUser loads the authenticated user's record.
func (s *Server) currentUser(r *http.Request) (*database.User, int, error) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	user, err := s.db.GetUserByID(s.db.DB(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, http.StatusUnauthorized, errors.New("user not found")
		}
		return nil, http.StatusInternalServerError, err
	}
	return user, http.StatusOK, nil
}
