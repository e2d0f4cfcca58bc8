package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ExecSource obtains fixes from an external locator command, the CLI
// stand-in for platform GPS (e.g. termux-location or gpspipe wrappers). The
// accuracy tier is passed as the command's last argument. Output must be
// either JSON with latitude/longitude fields or two whitespace-separated
// decimal degrees.
type ExecSource struct {
	Command string
}

// Available reports whether the locator command is installed.
func (s *ExecSource) Available(ctx context.Context) (bool, error) {
	fields := strings.Fields(s.Command)
	if len(fields) == 0 {
		return false, nil
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return false, nil
	}
	return true, nil
}

// RequestPermission always grants: the OS prompts, if any, are handled by the
// locator command itself.
func (s *ExecSource) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

// Locate runs the locator command and parses its output. The context bounds
// the attempt; expiry kills the command.
func (s *ExecSource) Locate(ctx context.Context, accuracy Accuracy) (Fix, error) {
	fields := strings.Fields(s.Command)
	if len(fields) == 0 {
		return Fix{}, fmt.Errorf("locate: no locator command configured")
	}
	args := append(fields[1:], string(accuracy))

	out, err := exec.CommandContext(ctx, fields[0], args...).Output()
	if err != nil {
		return Fix{}, fmt.Errorf("locate: %w", err)
	}

	lat, lon, err := parseFix(out)
	if err != nil {
		return Fix{}, fmt.Errorf("locate: %w", err)
	}
	return Fix{Latitude: lat, Longitude: lon, Accuracy: accuracy}, nil
}

func parseFix(out []byte) (float64, float64, error) {
	var pos struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(out, &pos); err == nil {
		return pos.Latitude, pos.Longitude, nil
	}

	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unparseable locator output %q", strings.TrimSpace(string(out)))
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad latitude %q", fields[0])
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad longitude %q", fields[1])
	}
	return lat, lon, nil
}

// StaticSource serves a fixed position, used when coordinates are supplied on
// the command line.
type StaticSource struct {
	Latitude  float64
	Longitude float64
}

func (s *StaticSource) Available(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *StaticSource) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (s *StaticSource) Locate(ctx context.Context, accuracy Accuracy) (Fix, error) {
	return Fix{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: accuracy}, nil
}
