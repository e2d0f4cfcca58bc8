// Package devserver is a local stand-in for the production damage-request
// API. It implements the full wire protocol (auth, profile, damage requests,
// photo upload) against in-memory state, so the client can be exercised
// end-to-end during development and in integration tests.
package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/hti6/hti6-mobile/internal/damage"
	"github.com/hti6/hti6-mobile/internal/store"
	"github.com/hti6/hti6-mobile/internal/utils"
)

// Config seeds the single dev user and the server's working state.
type Config struct {
	Login     string
	Password  string
	Name      string
	JWTSecret string
	UploadDir string
	// BaseURL is prepended to uploaded photo paths. Leave empty to derive it
	// from the incoming request.
	BaseURL string
}

// Server holds the in-memory backend state.
type Server struct {
	log       *utils.Logger
	jwtSecret []byte
	uploadDir string
	baseURL   string

	user         store.User
	passwordHash string

	mu      sync.Mutex
	records []damage.Record
}

// New creates a devserver with one seeded user.
func New(cfg Config, log *utils.Logger) (*Server, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Server{
		log:       log,
		jwtSecret: []byte(cfg.JWTSecret),
		uploadDir: cfg.UploadDir,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		user: store.User{
			ID:    uuid.New().String(),
			Login: cfg.Login,
			Name:  cfg.Name,
		},
		passwordHash: string(hash),
	}, nil
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")

	r.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/v1/auth/logout", s.requireAuth(s.handleLogout)).Methods("GET")
	r.HandleFunc("/api/v1/user", s.requireAuth(s.handleUser)).Methods("GET")
	r.HandleFunc("/api/v1/user/damage_requests", s.requireAuth(s.handleCreate)).Methods("POST")
	r.HandleFunc("/api/v1/user/damage_requests", s.requireAuth(s.handleList)).Methods("GET")

	r.HandleFunc("/upload", s.handleUpload).Methods("POST")
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Infof("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError writes the API error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var data loginRequest
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid login request.")
		return
	}

	if data.Login != s.user.Login ||
		bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(data.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials.")
		return
	}

	token, err := s.mintToken()
	if err != nil {
		s.log.Errorf("mint token: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to sign in.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  map[string]string{"token": token},
		"message": "Successfully signed in.",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Stateless tokens: nothing to revoke, the client drops its copy.
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully signed out."})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"result":  s.user,
		"message": "Successfully fetched user.",
	})
}

type createRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PhotoURL  string  `json:"photo_url"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var data createRequest
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid damage request.")
		return
	}
	if data.Latitude < -90 || data.Latitude > 90 || data.Longitude < -180 || data.Longitude > 180 {
		writeError(w, http.StatusUnprocessableEntity, "Coordinates out of range.")
		return
	}
	if data.PhotoURL == "" {
		writeError(w, http.StatusUnprocessableEntity, "photo_url is required.")
		return
	}

	s.mu.Lock()
	rec := damage.Record{
		ID:        uuid.New().String(),
		Latitude:  data.Latitude,
		Longitude: data.Longitude,
		PhotoURL:  data.PhotoURL,
		Priority:  s.assignPriority(),
		CreatedAt: time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"result":  rec,
		"message": "Successfully created damage request.",
	})
}

// assignPriority stands in for the server-side triage: it cycles through the
// buckets so the list screen shows every style. Callers hold mu.
func (s *Server) assignPriority() string {
	buckets := []string{
		damage.PriorityLow,
		damage.PriorityMedium,
		damage.PriorityHigh,
		damage.PriorityCritical,
	}
	return buckets[len(s.records)%len(buckets)]
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	records := make([]damage.Record, len(s.records))
	copy(records, s.records)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  records,
		"message": "Successfully fetched damage requests.",
	})
}

// mintToken issues a signed bearer token for the seeded user.
func (s *Server) mintToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   s.user.ID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// extractToken pulls the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// requireAuth validates the bearer token before calling next.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized.")
			return
		}
		next(w, r)
	}
}
