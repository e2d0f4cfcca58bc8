// Package api holds the shared wire-level plumbing of the damage-request
// API: the error taxonomy, HTTP status classification and response envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Closed set of request error kinds. Callers match with errors.Is.
var (
	// ErrUnauthenticated is returned locally when no token is stored;
	// no network call is attempted.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrSessionExpired is returned on a 401 response, after the local
	// session has been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrForbidden is returned on a 403 response.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned on a 404 response.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest is returned on a 422 response.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited is returned on a 429 response.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable is returned on 500, 502 and 503 responses.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTimeout is returned when the bounded request timeout expires.
	ErrTimeout = errors.New("request timed out")
	// ErrTransport covers unreachable hosts and other transport failures.
	ErrTransport = errors.New("could not complete request")
	// ErrRequestFailed is the generic non-2xx fallback.
	ErrRequestFailed = errors.New("request failed")
)

// Error carries a taxonomy kind together with the HTTP status that produced
// it and an optional server-supplied message suitable for display.
type Error struct {
	Kind    error
	Status  int
	Message string
}

// Error returns the display message when the server supplied one, otherwise
// the kind's canned text.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// Unwrap lets errors.Is match against the taxonomy sentinels.
func (e *Error) Unwrap() error { return e.Kind }

// envelope is the minimal shape every API error body may carry.
type envelope struct {
	Message string `json:"message"`
}

// serverMessage extracts the message field from a JSON error body. A body
// that is not parseable JSON yields "", so a status-only error is synthesized
// instead of letting the parse failure escape.
func serverMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}

// ClassifyStatus maps a non-2xx response to a taxonomy error. The 401 side
// effect (forced logout) is the caller's responsibility: classification
// itself stays pure.
func ClassifyStatus(status int, body []byte) error {
	msg := serverMessage(body)

	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: ErrSessionExpired, Status: status}
	case http.StatusForbidden:
		return &Error{Kind: ErrForbidden, Status: status}
	case http.StatusNotFound:
		return &Error{Kind: ErrNotFound, Status: status}
	case http.StatusUnprocessableEntity:
		return &Error{Kind: ErrInvalidRequest, Status: status, Message: msg}
	case http.StatusTooManyRequests:
		return &Error{Kind: ErrRateLimited, Status: status}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &Error{Kind: ErrServiceUnavailable, Status: status}
	}

	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &Error{Kind: ErrRequestFailed, Status: status, Message: msg}
}

// ClassifyTransport maps a failed round-trip (no response at all) to either
// the timeout or the generic transport kind.
func ClassifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTimeout}
	}
	return &Error{Kind: ErrTransport}
}
