// Package geo resolves device location: availability and permission checks,
// a GPS fix with a one-step high-to-balanced accuracy degrade, and optional
// reverse geocoding.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hti6/hti6-mobile/internal/utils"
)

var (
	// ErrUnavailable means location services are disabled on the device;
	// the user must enable them in system settings.
	ErrUnavailable = errors.New("location services are not available")
	// ErrPermissionDenied means the user refused the location permission.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrNoFix means both accuracy attempts failed.
	ErrNoFix = errors.New("could not determine location")
)

// Accuracy is the GPS fix quality class, trading latency for precision.
type Accuracy string

const (
	AccuracyHigh     Accuracy = "high"
	AccuracyBalanced Accuracy = "balanced"
)

// Fix is a single resolved position. Ephemeral: produced per capture, never
// persisted.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  Accuracy
}

// Address is a reverse-geocoded location. Any field may be empty.
type Address struct {
	Street    string
	City      string
	Region    string
	Country   string
	Formatted string
}

// Format renders a short display form, preferring "City, Street" and falling
// back to the geocoder's own formatted string.
func (a Address) Format() string {
	var parts []string
	if a.City != "" {
		parts = append(parts, a.City)
	}
	if a.Street != "" {
		parts = append(parts, a.Street)
	}
	if len(parts) == 0 {
		return a.Formatted
	}
	return strings.Join(parts, ", ")
}

// Source is the platform location backend.
type Source interface {
	Available(ctx context.Context) (bool, error)
	RequestPermission(ctx context.Context) (bool, error)
	Locate(ctx context.Context, accuracy Accuracy) (Fix, error)
}

// Geocoder resolves coordinates to an address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (*Address, error)
}

// Provider coordinates availability, permission and fix acquisition.
type Provider struct {
	source   Source
	geocoder Geocoder
	timeout  time.Duration
	log      *utils.Logger

	mu        sync.Mutex
	available *bool
}

// NewProvider creates a location provider. timeout bounds each individual
// fix attempt. geocoder may be nil, in which case ReverseGeocode always
// reports no address.
func NewProvider(source Source, geocoder Geocoder, timeout time.Duration, log *utils.Logger) *Provider {
	return &Provider{source: source, geocoder: geocoder, timeout: timeout, log: log}
}

// CheckAvailability reports whether location services are enabled. The result
// is memoized for the process lifetime after the first check and never
// re-validated, so a user disabling location mid-session is not re-detected.
func (p *Provider) CheckAvailability(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.available != nil {
		return *p.available
	}
	ok, err := p.source.Available(ctx)
	if err != nil {
		p.log.Errorf("location availability check: %v", err)
		ok = false
	}
	p.available = &ok
	return ok
}

// RequestPermission asks the platform for the location permission.
func (p *Provider) RequestPermission(ctx context.Context) bool {
	ok, err := p.source.RequestPermission(ctx)
	if err != nil {
		p.log.Errorf("location permission request: %v", err)
		return false
	}
	return ok
}

// Current resolves a fix. When highAccuracy is set a high-accuracy attempt
// runs first and a failure or timeout degrades once to a balanced attempt.
// This is a deliberate two-step sequence, not a retry loop.
func (p *Provider) Current(ctx context.Context, highAccuracy bool) (Fix, error) {
	if !p.CheckAvailability(ctx) {
		return Fix{}, ErrUnavailable
	}
	if !p.RequestPermission(ctx) {
		return Fix{}, ErrPermissionDenied
	}

	if highAccuracy {
		fix, err := p.locate(ctx, AccuracyHigh)
		if err == nil {
			return fix, nil
		}
		p.log.Warnf("high accuracy fix failed, trying balanced: %v", err)
	}

	fix, err := p.locate(ctx, AccuracyBalanced)
	if err != nil {
		return Fix{}, fmt.Errorf("%w: %v", ErrNoFix, err)
	}
	return fix, nil
}

func (p *Provider) locate(ctx context.Context, accuracy Accuracy) (Fix, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.source.Locate(ctx, accuracy)
}

// ReverseGeocode resolves an address for the coordinates. Failure is
// non-fatal: it is logged and nil is returned.
func (p *Provider) ReverseGeocode(ctx context.Context, lat, lon float64) *Address {
	if p.geocoder == nil {
		return nil
	}
	addr, err := p.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		p.log.Errorf("reverse geocode: %v", err)
		return nil
	}
	return addr
}
