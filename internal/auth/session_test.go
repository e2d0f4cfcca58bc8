package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hti6/hti6-mobile/internal/store"
	"github.com/hti6/hti6-mobile/internal/utils"
)

// backend is a scriptable fake of the auth endpoints.
type backend struct {
	loginStatus  int
	token        string
	userStatus   int
	user         store.User
	userCalls    int
	logoutCalls  int
	requestCount int
}

func (b *backend) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.requestCount++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.loginStatus)
		if b.loginStatus == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]string{"token": b.token},
			})
		}
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		b.requestCount++
		b.userCalls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.userStatus)
		if b.userStatus == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{"result": b.user})
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		b.requestCount++
		b.logoutCalls++
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T, baseURL string) (*Session, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir())
	return New(st, baseURL, 5*time.Second, utils.Discard()), st
}

func TestLoginSuccess(t *testing.T) {
	b := &backend{
		loginStatus: http.StatusOK,
		token:       "tok-1",
		userStatus:  http.StatusOK,
		user:        store.User{ID: "7", Login: "ivan", Name: "Ivan"},
	}
	srv := b.server(t)
	session, st := newTestSession(t, srv.URL)

	ok, err := session.Login(context.Background(), "ivan", "secret")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if !ok {
		t.Fatal("Login() = false, want true")
	}

	token, _ := st.Token()
	if token != "tok-1" {
		t.Errorf("stored token = %q, want %q", token, "tok-1")
	}
	user, _ := st.User()
	if user == nil || user.Login != "ivan" {
		t.Errorf("stored user = %+v, want login ivan", user)
	}
}

func TestLoginWrongPasswordLeavesStoreUntouched(t *testing.T) {
	b := &backend{loginStatus: http.StatusUnauthorized}
	srv := b.server(t)
	session, st := newTestSession(t, srv.URL)

	ok, err := session.Login(context.Background(), "user", "wrong")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if ok {
		t.Fatal("Login() = true, want false")
	}

	token, _ := st.Token()
	if token != "" {
		t.Errorf("token written on failed login: %q", token)
	}
}

func TestLoginProfileFetchFailureRollsBack(t *testing.T) {
	b := &backend{
		loginStatus: http.StatusOK,
		token:       "tok-1",
		userStatus:  http.StatusInternalServerError,
	}
	srv := b.server(t)
	session, st := newTestSession(t, srv.URL)

	ok, err := session.Login(context.Background(), "ivan", "secret")
	if ok {
		t.Fatal("Login() = true, want false when profile fetch fails")
	}
	if err == nil {
		t.Fatal("Login() error = nil, want profile-fetch failure")
	}

	token, _ := st.Token()
	if token != "" {
		t.Errorf("token = %q after rollback, want empty", token)
	}
	if session.IsAuthenticated(context.Background()) {
		t.Error("IsAuthenticated() = true after rollback")
	}
}

func TestIsAuthenticatedProfileFetchFailureClearsSession(t *testing.T) {
	b := &backend{userStatus: http.StatusInternalServerError}
	srv := b.server(t)
	session, st := newTestSession(t, srv.URL)

	if err := st.SaveToken("stale-token"); err != nil {
		t.Fatalf("SaveToken() failed: %v", err)
	}

	if session.IsAuthenticated(context.Background()) {
		t.Fatal("IsAuthenticated() = true, want false when profile fetch fails")
	}

	token, err := session.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	if token != "" {
		t.Errorf("Token() = %q after failed check, want empty", token)
	}
}

func TestIsAuthenticatedUsesCachedProfile(t *testing.T) {
	b := &backend{}
	srv := b.server(t)
	session, st := newTestSession(t, srv.URL)

	if err := st.SaveToken("tok-1"); err != nil {
		t.Fatalf("SaveToken() failed: %v", err)
	}
	if err := st.SaveUser(store.User{ID: "7", Login: "ivan"}); err != nil {
		t.Fatalf("SaveUser() failed: %v", err)
	}

	if !session.IsAuthenticated(context.Background()) {
		t.Fatal("IsAuthenticated() = false with token and cached profile")
	}
	if b.requestCount != 0 {
		t.Errorf("backend saw %d requests, want 0 (cached profile)", b.requestCount)
	}
}

func TestLogoutClearsStateAndNotifiesServer(t *testing.T) {
	b := &backend{}
	srv := b.server(t)
	session, st := newTestSession(t, srv.URL)

	if err := st.SaveToken("tok-1"); err != nil {
		t.Fatalf("SaveToken() failed: %v", err)
	}

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if b.logoutCalls != 1 {
		t.Errorf("logout endpoint called %d times, want 1", b.logoutCalls)
	}

	token, _ := session.Token(context.Background())
	if token != "" {
		t.Errorf("Token() = %q after logout, want empty", token)
	}
}

func TestLogoutSurvivesUnreachableServer(t *testing.T) {
	// Point at a closed server: the notify must be swallowed.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	session, st := newTestSession(t, srv.URL)

	if err := st.SaveToken("tok-1"); err != nil {
		t.Fatalf("SaveToken() failed: %v", err)
	}

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	token, _ := session.Token(context.Background())
	if token != "" {
		t.Errorf("Token() = %q after logout, want empty", token)
	}
}
