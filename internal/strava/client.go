package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/matesrace/matesrace/internal/metrics"
)

const activitiesPerPage = 50

// APIError is a non-2xx answer from the Strava API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava: %d %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err means the athlete has to sign in again:
// either the API rejected the token or refreshing it failed.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	var retrieveErr *oauth2.RetrieveError
	return errors.As(err, &retrieveErr)
}

// IsNotFound reports whether the requested object does not exist or is not
// visible to the athlete.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the Strava v3 API on behalf of one athlete.
type Client struct {
	baseURL string
	http    *http.Client
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out interface{}) (err error) {
	defer func() {
		metrics.StravaRequests.WithLabelValues(endpoint, metrics.Outcome(err)).Inc()
	}()

	u := strings.TrimRight(c.baseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("strava %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("strava %s: decode response: %w", endpoint, err)
	}
	return nil
}

// GetAthlete returns the authenticated athlete's profile.
func (c *Client) GetAthlete(ctx context.Context) (*Athlete, error) {
	var a Athlete
	if err := c.get(ctx, "athlete", "/athlete", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActivities returns the athlete's rides that started between after and
// before, at most one page of 50. Entries that are not rides or lack an ID,
// name or start date are skipped.
func (c *Client) ListActivities(ctx context.Context, after, before time.Time) ([]Activity, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after.Unix(), 10))
	q.Set("before", strconv.FormatInt(before.Unix(), 10))
	q.Set("per_page", strconv.Itoa(activitiesPerPage))

	var raw []json.RawMessage
	if err := c.get(ctx, "activities", "/athlete/activities", q, &raw); err != nil {
		return nil, err
	}

	rides := make([]Activity, 0, len(raw))
	for _, entry := range raw {
		var a Activity
		if err := json.Unmarshal(entry, &a); err != nil {
			log.Printf("WARN: skipping malformed Strava activity: %v", err)
			continue
		}
		if a.ID == 0 || a.Name == "" || a.StartDateLocal == "" || a.Type == "" {
			log.Printf("WARN: skipping Strava activity with missing fields: %s", entry)
			continue
		}
		if !a.IsRide() {
			continue
		}
		rides = append(rides, a)
	}
	return rides, nil
}

// GetActivity returns a single activity with its segment efforts.
func (c *Client) GetActivity(ctx context.Context, id int64) (*DetailedActivity, error) {
	var a DetailedActivity
	path := "/activities/" + strconv.FormatInt(id, 10)
	if err := c.get(ctx, "activity", path, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetSegment returns a segment by ID.
func (c *Client) GetSegment(ctx context.Context, id int64) (*Segment, error) {
	var s Segment
	path := "/segments/" + strconv.FormatInt(id, 10)
	if err := c.get(ctx, "segment", path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
