package adapter

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// APIError represents a non-2xx response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "adapter: api error <nil>"
	}
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	msg := strings.TrimSpace(e.Message)
	switch {
	case e.Type != "" && msg != "":
		return fmt.Sprintf("adapter: %s: api error (%s): %s: %s", e.Provider, status, e.Type, msg)
	case msg != "":
		return fmt.Sprintf("adapter: %s: api error (%s): %s", e.Provider, status, msg)
	default:
		return fmt.Sprintf("adapter: %s: api error (%s)", e.Provider, status)
	}
}

// TransientError marks a failure worth retrying: network trouble, rate
// limits, or provider 5xx. The orchestrator retries these with backoff;
// everything else fails the trial immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "adapter: transient error"
	}
	return fmt.Sprintf("adapter: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnavailableError means an adapter could not be constructed at all:
// unknown name or missing credentials. Never retried.
type UnavailableError struct {
	Name string
	Hint string
}

func (e *UnavailableError) Error() string {
	if e == nil {
		return "adapter: unavailable"
	}
	if e.Hint != "" {
		return fmt.Sprintf("adapter: %q unavailable: %s", e.Name, e.Hint)
	}
	return fmt.Sprintf("adapter: %q unavailable", e.Name)
}

func transientStatus(code int) bool {
	if code >= 500 && code <= 599 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.StatusCode)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// classify wraps transient failures so IsTransient recognizes them after
// provider-specific error types have been normalized away.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		var te *TransientError
		if errors.As(err, &te) {
			return err
		}
		return &TransientError{Err: err}
	}
	return err
}
