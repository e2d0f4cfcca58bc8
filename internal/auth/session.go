// Package auth owns the session lifecycle: login, logout, token retrieval
// and the "am I authenticated" check that gates every API call.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hti6/hti6-mobile/internal/api"
	"github.com/hti6/hti6-mobile/internal/store"
	"github.com/hti6/hti6-mobile/internal/utils"
)

// Session holds the in-memory token and profile cache on top of the
// credential store. It is the only shared mutable state in the client, so all
// cache access goes through the mutex; network calls never happen while it is
// held. Consumers snapshot the token once per request via Token.
type Session struct {
	store   *store.Store
	client  *http.Client
	baseURL string
	timeout time.Duration
	log     *utils.Logger

	mu     sync.Mutex
	token  string
	user   *store.User
	loaded bool
}

// New creates a session manager talking to the auth endpoints under baseURL.
func New(st *store.Store, baseURL string, timeout time.Duration, log *utils.Logger) *Session {
	return &Session{
		store:   st,
		client:  &http.Client{},
		baseURL: baseURL,
		timeout: timeout,
		log:     log,
	}
}

type loginResponse struct {
	Result struct {
		Token string `json:"token"`
	} `json:"result"`
}

type userResponse struct {
	Result store.User `json:"result"`
}

// Login posts the credentials and, on success, performs the dependent profile
// fetch. A non-2xx status yields (false, nil) and leaves the session
// untouched. A failed profile fetch rolls the session back to fully logged
// out and reports the failure.
func (s *Session) Login(ctx context.Context, login, password string) (bool, error) {
	body, err := json.Marshal(map[string]string{"login": login, "password": password})
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("login: %w", api.ClassifyTransport(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return false, fmt.Errorf("login: decode response: %w", err)
	}

	if err := s.setToken(data.Result.Token); err != nil {
		return false, fmt.Errorf("login: %w", err)
	}

	// Token alone is provisional: the session counts as logged in only once
	// the profile fetch confirms it.
	if err := s.loadUser(ctx); err != nil {
		s.Invalidate()
		return false, fmt.Errorf("login: %w", err)
	}
	return true, nil
}

// Logout notifies the server best-effort, then always clears local state.
// Server-side failures are logged and swallowed.
func (s *Session) Logout(ctx context.Context) error {
	token, err := s.Token(ctx)
	if err == nil && token != "" {
		if err := s.notifyLogout(ctx, token); err != nil {
			s.log.Errorf("logout notify: %v", err)
		}
	}
	return s.Invalidate()
}

func (s *Session) notifyLogout(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// IsAuthenticated reports whether a confirmed session exists. A stored token
// without a cached profile triggers one profile fetch; if that fails the
// session is fully cleared and false is returned.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	token, err := s.Token(ctx)
	if err != nil || token == "" {
		return false
	}

	s.mu.Lock()
	haveUser := s.user != nil
	s.mu.Unlock()

	if !haveUser {
		if err := s.loadUser(ctx); err != nil {
			s.log.Errorf("load user: %v", err)
			if err := s.Logout(ctx); err != nil {
				s.log.Errorf("logout: %v", err)
			}
			return false
		}
	}
	return true
}

// Token returns the current token, lazily loading persisted credentials into
// memory once per process. "" means no session.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return "", err
	}
	return s.token, nil
}

// User returns the cached profile, or nil when none exists. It never fetches:
// the cached copy lets the UI show identity before a refresh completes.
func (s *Session) User(ctx context.Context) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.user, nil
}

// RefreshUser re-fetches the profile from the server, replacing the cache.
func (s *Session) RefreshUser(ctx context.Context) error {
	return s.loadUser(ctx)
}

// Invalidate clears the in-memory cache and the credential store without
// contacting the server. The damage-request client calls it on any 401.
func (s *Session) Invalidate() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.loaded = true
	s.mu.Unlock()
	return s.store.Clear()
}

// loadLocked populates the memory cache from disk once. Callers hold mu.
func (s *Session) loadLocked() error {
	if s.loaded {
		return nil
	}
	token, err := s.store.Token()
	if err != nil {
		return err
	}
	user, err := s.store.User()
	if err != nil {
		return err
	}
	s.token = token
	s.user = user
	s.loaded = true
	return nil
}

func (s *Session) setToken(token string) error {
	if err := s.store.SaveToken(token); err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *Session) setUser(u store.User) error {
	if err := s.store.SaveUser(u); err != nil {
		return err
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	return nil
}

// loadUser fetches the profile with the current token and caches it.
func (s *Session) loadUser(ctx context.Context) error {
	token, err := s.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return &api.Error{Kind: api.ErrUnauthenticated}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/user", nil)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("load user: %w", api.ClassifyTransport(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("load user: status %d", resp.StatusCode)
	}

	var data userResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("load user: decode response: %w", err)
	}
	return s.setUser(data.Result)
}
