package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hti6/hti6-mobile/internal/geo"
	"github.com/hti6/hti6-mobile/internal/utils"
)

// fakeCamera scripts permission and capture outcomes.
type fakeCamera struct {
	permission bool
	path       string
	cancelled  bool
	err        error
}

func (f *fakeCamera) RequestPermission(ctx context.Context) (bool, error) {
	return f.permission, nil
}

func (f *fakeCamera) Capture(ctx context.Context) (string, bool, error) {
	return f.path, f.cancelled, f.err
}

func testProvider() *geo.Provider {
	source := &geo.StaticSource{Latitude: 55.751244, Longitude: 37.618423}
	return geo.NewProvider(source, nil, time.Second, utils.Discard())
}

func writePhoto(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "damage.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0600); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	return path
}

func uploadServer(t *testing.T, url string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 1 {
			t.Errorf("got %d files under %q, want 1", len(files), "files")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if ct := files[0].Header.Get("Content-Type"); ct != "image/jpg" {
			t.Errorf("content type = %q, want image/jpg", ct)
		}
		json.NewEncoder(w).Encode([]string{url})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCaptureCameraPermissionDenied(t *testing.T) {
	camera := &fakeCamera{permission: false}
	o := NewOrchestrator(camera, testProvider(), NewUploader("http://unused", time.Second))

	_, err := o.Capture(context.Background())
	if !errors.Is(err, ErrCameraPermission) {
		t.Fatalf("Capture() = %v, want ErrCameraPermission", err)
	}
}

func TestCaptureCancelledIsNotAnError(t *testing.T) {
	camera := &fakeCamera{permission: true, cancelled: true}
	o := NewOrchestrator(camera, testProvider(), NewUploader("http://unused", time.Second))

	submission, err := o.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v, want nil on cancel", err)
	}
	if submission != nil {
		t.Fatalf("Capture() = %+v, want nil submission on cancel", submission)
	}
}

func TestCaptureHappyPath(t *testing.T) {
	photoURL := "https://cdn.example/photo_1.jpg"
	srv := uploadServer(t, photoURL)

	camera := &fakeCamera{permission: true, path: writePhoto(t)}
	o := NewOrchestrator(camera, testProvider(), NewUploader(srv.URL, time.Second))

	submission, err := o.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if submission == nil {
		t.Fatal("Capture() returned nil submission")
	}
	if submission.PhotoURL != photoURL {
		t.Errorf("PhotoURL = %q, want %q", submission.PhotoURL, photoURL)
	}
	if submission.Location.Latitude != 55.751244 || submission.Location.Longitude != 37.618423 {
		t.Errorf("Location = %+v, want static fix", submission.Location)
	}
}

func TestCapturePropagatesLocationFailure(t *testing.T) {
	unavailable := geo.NewProvider(&downSource{}, nil, time.Second, utils.Discard())
	camera := &fakeCamera{permission: true, path: "unused"}
	o := NewOrchestrator(camera, unavailable, NewUploader("http://unused", time.Second))

	_, err := o.Capture(context.Background())
	if !errors.Is(err, geo.ErrUnavailable) {
		t.Fatalf("Capture() = %v, want location failure propagated", err)
	}
}

type downSource struct{}

func (downSource) Available(ctx context.Context) (bool, error)         { return false, nil }
func (downSource) RequestPermission(ctx context.Context) (bool, error) { return true, nil }
func (downSource) Locate(ctx context.Context, a geo.Accuracy) (geo.Fix, error) {
	return geo.Fix{}, errors.New("unreachable")
}

func TestUploadRejectedByServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, time.Second)
	_, err := u.Upload(context.Background(), writePhoto(t))
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("Upload() = %v, want ErrUpload", err)
	}
}

func TestUploadReturnsFirstURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{"https://cdn.example/a.jpg", "https://cdn.example/b.jpg"})
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, time.Second)
	url, err := u.Upload(context.Background(), writePhoto(t))
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	if url != "https://cdn.example/a.jpg" {
		t.Errorf("Upload() = %q, want first element", url)
	}
}
