package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hti6/hti6-mobile/internal/auth"
	"github.com/hti6/hti6-mobile/internal/capture"
	"github.com/hti6/hti6-mobile/internal/damage"
	"github.com/hti6/hti6-mobile/internal/store"
	"github.com/hti6/hti6-mobile/internal/utils"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := New(Config{
		Login:     "demo",
		Password:  "demo-pass",
		Name:      "Demo User",
		JWTSecret: "test-secret",
		UploadDir: t.TempDir(),
	}, utils.Discard())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts := newTestServer(t)

	body := bytes.NewReader([]byte(`{"login":"demo","password":"nope"}`))
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", body)
	if err != nil {
		t.Fatalf("POST login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/user", "/api/v1/user/damage_requests"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

// jpegBytes is a minimal payload the content sniffer accepts as an image.
func jpegBytes() []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0}, 64)...)
}

func TestEndToEndCaptureAndList(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	st := store.New(t.TempDir())
	session := auth.New(st, ts.URL+"/api/v1", 5*time.Second, utils.Discard())

	ok, err := session.Login(ctx, "demo", "demo-pass")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if !ok {
		t.Fatal("Login() = false, want true")
	}
	user, err := session.User(ctx)
	if err != nil || user == nil {
		t.Fatalf("User() = %+v, %v", user, err)
	}
	if user.Login != "demo" || user.Name != "Demo User" {
		t.Errorf("profile = %+v, want seeded user", user)
	}

	photo := filepath.Join(t.TempDir(), "damage.jpg")
	if err := os.WriteFile(photo, jpegBytes(), 0600); err != nil {
		t.Fatalf("write photo: %v", err)
	}

	uploader := capture.NewUploader(ts.URL+"/upload", 5*time.Second)
	photoURL, err := uploader.Upload(ctx, photo)
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if !strings.Contains(photoURL, "/uploads/") {
		t.Errorf("photo URL = %q, want /uploads/ path", photoURL)
	}

	client := damage.NewClient(session, ts.URL+"/api/v1", 5*time.Second)
	rec, err := client.Create(ctx, 55.751244, 37.618423, photoURL)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if rec.ID == "" || rec.PhotoURL != photoURL {
		t.Errorf("Create() = %+v", rec)
	}

	records, err := client.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("List() = %+v, want the created record", records)
	}

	entries := damage.Present(records)
	if entries[0].Coordinates != "55.751244° 37.618423°" {
		t.Errorf("Coordinates = %q", entries[0].Coordinates)
	}
}

func TestCreateValidatesCoordinates(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	st := store.New(t.TempDir())
	session := auth.New(st, ts.URL+"/api/v1", 5*time.Second, utils.Discard())
	if ok, err := session.Login(ctx, "demo", "demo-pass"); err != nil || !ok {
		t.Fatalf("Login() = %v, %v", ok, err)
	}

	client := damage.NewClient(session, ts.URL+"/api/v1", 5*time.Second)
	_, err := client.Create(ctx, 123.0, 37.0, "https://cdn.example/p.jpg")
	if err == nil {
		t.Fatal("Create() with out-of-range latitude succeeded")
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	ts := newTestServer(t)

	photo := filepath.Join(t.TempDir(), "notes.jpg")
	if err := os.WriteFile(photo, []byte("plain text, not an image"), 0600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	uploader := capture.NewUploader(ts.URL+"/upload", 5*time.Second)
	if _, err := uploader.Upload(context.Background(), photo); err == nil {
		t.Fatal("Upload() of non-image succeeded, want error")
	}
}

func TestPrioritiesCycleThroughBuckets(t *testing.T) {
	srv, err := New(Config{
		Login:     "demo",
		Password:  "demo-pass",
		JWTSecret: "test-secret",
		UploadDir: t.TempDir(),
	}, utils.Discard())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	token, err := srv.mintToken()
	if err != nil {
		t.Fatalf("mintToken() failed: %v", err)
	}

	want := []string{
		damage.PriorityLow, damage.PriorityMedium, damage.PriorityHigh, damage.PriorityCritical,
	}
	for i, bucket := range want {
		body := bytes.NewReader([]byte(`{"latitude":1,"longitude":2,"photo_url":"u"}`))
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/user/damage_requests", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		var env struct {
			Result damage.Record `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode create %d: %v", i, err)
		}
		resp.Body.Close()
		if env.Result.Priority != bucket {
			t.Errorf("record %d priority = %q, want %q", i, env.Result.Priority, bucket)
		}
	}
}
