package fetch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailureKind classifies an attempt failure for controller feedback.
type FailureKind string

// Failure kinds recorded on attempts and aggregated on exhaustion.
const (
	FailureTransient FailureKind = "transient"
	FailureThrottle  FailureKind = "throttle"
	FailureTimeout   FailureKind = "timeout"
)

// TransientError signals a connection-level problem worth retrying on the
// next backend.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ThrottleError signals the origin is actively shedding load (HTTP 429/503).
// The adaptive controller treats it as a hard backoff signal.
type ThrottleError struct {
	StatusCode int
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("origin throttling with status %d", e.StatusCode)
}

// ValidationError signals malformed input; it is never retried and never
// reported to the adaptive controller.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fetch request: %s", e.Reason)
}

// Attempt records one try against one backend within an orchestration call.
type Attempt struct {
	Backend BackendID     `json:"backend"`
	Kind    FailureKind   `json:"kind"`
	Err     error         `json:"-"`
	Reason  string        `json:"reason"`
	Latency time.Duration `json:"latency_ms"`
}

// ExhaustedError is returned after every candidate backend failed. It
// aggregates each attempt so callers can see the full fallback history.
type ExhaustedError struct {
	URL      string
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s(%s): %s", a.Backend, a.Kind, a.Reason))
	}
	return fmt.Sprintf("all backends exhausted for %s: %s", e.URL, strings.Join(parts, "; "))
}

// IsThrottle reports whether err carries a hard throttling signal.
func IsThrottle(err error) bool {
	var te *ThrottleError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a non-retryable input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
