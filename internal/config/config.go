// Package config loads client configuration from environment variables,
// with optional .env file support for local development.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all settings for the field-reporting client.
type Config struct {
	// APIURL is the base URL of the damage-request API, without trailing slash.
	APIURL string
	// UploadURL is the photo upload endpoint (separate service, unauthenticated).
	UploadURL string
	// StateDir holds the credential files and the client log.
	StateDir string
	// LocateCmd is an external command used to obtain a GPS fix
	// (e.g. termux-location). Empty means coordinates must be given explicitly.
	LocateCmd string
	// RequestTimeout bounds every API call.
	RequestTimeout time.Duration
	// LocationTimeout bounds each fix attempt (high and balanced separately).
	LocationTimeout time.Duration
}

// Load reads the .env file if present, then the environment, falling back to
// defaults. It never fails on a missing .env: production images configure via
// real environment variables.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIURL:          trimSlash(getEnv("HTI6_API_URL", "http://nvision.su/api/v1")),
		UploadURL:       getEnv("HTI6_UPLOAD_URL", "https://api.indock.ru/upload"),
		StateDir:        getEnv("HTI6_STATE_DIR", defaultStateDir()),
		LocateCmd:       getEnv("HTI6_LOCATE_CMD", ""),
		RequestTimeout:  getDuration("HTI6_REQUEST_TIMEOUT_SECONDS", 30*time.Second),
		LocationTimeout: getDuration("HTI6_LOCATION_TIMEOUT_SECONDS", 15*time.Second),
	}
}

// getEnv returns the value of the environment variable k or def if not set.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getDuration parses an integer seconds value from the environment.
func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hti6"
	}
	return filepath.Join(home, ".hti6")
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
