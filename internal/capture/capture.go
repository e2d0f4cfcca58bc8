// Package capture coordinates camera permission, location resolution and
// photo upload into a single pending submission ready for submit-or-discard.
package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hti6/hti6-mobile/internal/geo"
)

// ErrCameraPermission is returned when the user refuses camera access.
var ErrCameraPermission = errors.New("camera permission denied")

// Camera is the external capture UI. Capture reports cancelled=true when the
// user backs out without taking a photo; that is a distinct outcome, not a
// failure.
type Camera interface {
	RequestPermission(ctx context.Context) (bool, error)
	Capture(ctx context.Context) (path string, cancelled bool, err error)
}

// Submission is a fully assembled pending damage report. It is consumed
// exactly once: submitted or discarded. Nothing here tracks an
// uploaded-but-unsubmitted photo; cleanup of orphaned uploads is the server's
// problem.
type Submission struct {
	PhotoURL string
	Location geo.Fix
	Address  string
}

// Orchestrator runs the capture pipeline.
type Orchestrator struct {
	camera   Camera
	location *geo.Provider
	uploader *Uploader
}

// NewOrchestrator wires the capture pipeline.
func NewOrchestrator(camera Camera, location *geo.Provider, uploader *Uploader) *Orchestrator {
	return &Orchestrator{camera: camera, location: location, uploader: uploader}
}

// Capture runs the full sequence: camera permission, location fix, reverse
// geocode (best effort), photo acquisition, upload. A user-cancelled capture
// returns (nil, nil). Location failures propagate unchanged.
func (o *Orchestrator) Capture(ctx context.Context) (*Submission, error) {
	granted, err := o.camera.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("camera permission: %w", err)
	}
	if !granted {
		return nil, ErrCameraPermission
	}

	fix, err := o.location.Current(ctx, true)
	if err != nil {
		return nil, err
	}

	var address string
	if addr := o.location.ReverseGeocode(ctx, fix.Latitude, fix.Longitude); addr != nil {
		address = addr.Format()
	}

	path, cancelled, err := o.camera.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture photo: %w", err)
	}
	if cancelled {
		return nil, nil
	}

	photoURL, err := o.uploader.Upload(ctx, path)
	if err != nil {
		return nil, err
	}

	return &Submission{
		PhotoURL: photoURL,
		Location: fix,
		Address:  address,
	}, nil
}

// StaticCamera serves a photo path given up front (the --photo flag).
type StaticCamera struct {
	Path string
}

func (c *StaticCamera) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *StaticCamera) Capture(ctx context.Context) (string, bool, error) {
	if _, err := os.Stat(c.Path); err != nil {
		return "", false, fmt.Errorf("photo file: %w", err)
	}
	return c.Path, false, nil
}

// PromptCamera asks for a photo path interactively. An empty answer means
// the user cancelled.
type PromptCamera struct {
	In  io.Reader
	Out io.Writer
}

func (c *PromptCamera) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *PromptCamera) Capture(ctx context.Context) (string, bool, error) {
	fmt.Fprint(c.Out, "Photo file path (empty to cancel): ")
	reader := bufio.NewReader(c.In)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("read photo path: %w", err)
	}
	path := strings.TrimSpace(line)
	if path == "" {
		return "", true, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", false, fmt.Errorf("photo file: %w", err)
	}
	return path, false, nil
}
