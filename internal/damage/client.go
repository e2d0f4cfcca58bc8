// Package damage is the authenticated client for creating and listing damage
// requests, plus the pure presenter that prepares records for display.
package damage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hti6/hti6-mobile/internal/api"
)

// Record is the server-owned damage request entity. The client only creates
// and reads it, never mutates.
type Record struct {
	ID        string    `json:"id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	PhotoURL  string    `json:"photo_url"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenSource provides the bearer token and the forced-logout hook. The
// session manager satisfies it; tests substitute fakes.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate() error
}

// Client calls the damage-request endpoints. Every call snapshots the token
// once at request start, so a logout racing a successful request stays
// benign.
type Client struct {
	session TokenSource
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// NewClient creates a damage-request client. timeout bounds every call; on
// expiry the in-flight request is cancelled.
func NewClient(session TokenSource, baseURL string, timeout time.Duration) *Client {
	return &Client{
		session: session,
		client:  &http.Client{},
		baseURL: baseURL,
		timeout: timeout,
	}
}

type createRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PhotoURL  string  `json:"photo_url"`
}

type createResponse struct {
	Result *Record `json:"result"`
}

type listResponse struct {
	Result []Record `json:"result"`
}

// Create submits a new damage request.
func (c *Client) Create(ctx context.Context, latitude, longitude float64, photoURL string) (Record, error) {
	payload := createRequest{Latitude: latitude, Longitude: longitude, PhotoURL: photoURL}
	body, err := c.do(ctx, http.MethodPost, "/user/damage_requests", payload)
	if err != nil {
		return Record{}, fmt.Errorf("create damage request: %w", err)
	}

	// The record may arrive bare or wrapped in the result envelope.
	var env createResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Result != nil {
		return *env.Result, nil
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, fmt.Errorf("create damage request: decode response: %w", err)
	}
	return rec, nil
}

// List fetches the user's damage requests in server order; the client
// imposes no reordering.
func (c *Client) List(ctx context.Context) ([]Record, error) {
	body, err := c.do(ctx, http.MethodGet, "/user/damage_requests", nil)
	if err != nil {
		return nil, fmt.Errorf("list damage requests: %w", err)
	}

	var env listResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("list damage requests: decode response: %w", err)
	}
	return env.Result, nil
}

// do executes one authenticated call. A missing token fails locally before
// any network I/O. A 401 response clears the session as a side effect and
// surfaces as a session-expired error.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, &api.Error{Kind: api.ErrUnauthenticated}
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, api.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, api.ClassifyTransport(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return data, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if err := c.session.Invalidate(); err != nil {
			return nil, fmt.Errorf("invalidate session: %w", err)
		}
	}
	return nil, api.ClassifyStatus(resp.StatusCode, data)
}
