// Package store persists the auth token and the cached user profile across
// process restarts. Exactly two entries live under the state dir: a raw token
// file and a JSON-serialized profile. They are always cleared together.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	tokenFile = "token"
	userFile  = "user.json"
)

// User is the cached profile, opaque beyond display use.
type User struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

// Store is a file-backed credential store rooted at a single directory.
type Store struct {
	dir string
}

// New creates a credential store under dir. The directory is created lazily
// on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// SaveToken writes the raw token with owner-only permissions.
func (s *Store) SaveToken(token string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, tokenFile), []byte(token), 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Token returns the stored token, or "" when none has been saved.
func (s *Store) Token() (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SaveUser writes the profile JSON next to the token.
func (s *Store) SaveUser(u User) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, userFile), data, 0600); err != nil {
		return fmt.Errorf("write user: %w", err)
	}
	return nil
}

// User returns the cached profile, or nil when none has been saved.
func (s *Store) User() (*User, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, userFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// Clear removes both entries. Missing files are not an error, so Clear is
// safe to call from every logout path.
func (s *Store) Clear() error {
	for _, name := range []string{tokenFile, userFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}
