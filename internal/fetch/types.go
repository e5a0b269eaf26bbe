// Package fetch defines the core types shared across the fetch pipeline.
package fetch

import (
	"context"
	"net/http"
	"time"
)

// BackendID identifies one of the fixed scraping backends.
type BackendID string

// The closed set of backend identifiers. The orchestrator only ever
// dispatches to one of these three.
const (
	BackendStatic     BackendID = "static"
	BackendStructured BackendID = "structured"
	BackendBrowser    BackendID = "browser"
)

// AllBackends lists every backend in its fixed cyclic priority order.
var AllBackends = []BackendID{BackendStatic, BackendStructured, BackendBrowser}

// Complexity hints how hard a page is expected to be to extract.
type Complexity string

// Complexity values accepted on a request.
const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// Options carries the per-request knobs that influence backend selection
// and cache TTL classification.
type Options struct {
	ContentType string     `json:"content_type,omitempty"`
	RequiresJS  bool       `json:"requires_js,omitempty"`
	Complexity  Complexity `json:"complexity,omitempty"`
	Headers     http.Header `json:"headers,omitempty"`
	// ForceRefresh bypasses the cache lookup (the result is still written back).
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// Request captures everything needed to fetch a URL.
type Request struct {
	URL     string
	Options Options
}

// Result is the payload returned by a backend or served from cache.
type Result struct {
	URL        string         `json:"url"`
	Backend    BackendID      `json:"backend"`
	StatusCode int            `json:"status_code"`
	Headers    http.Header    `json:"headers,omitempty"`
	Body       []byte         `json:"body,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
	FetchedAt  time.Time      `json:"fetched_at"`
	Duration   time.Duration  `json:"duration_ms"`
	// Cached is true when the result was served from the cache without
	// touching the network.
	Cached bool `json:"cached"`
}

// Backend is implemented by each concrete scraping adapter.
type Backend interface {
	ID() BackendID
	Fetch(ctx context.Context, req Request) (Result, error)
}

// Capabilities describes what a backend can handle; the selector consults
// these flags when ranking candidates.
type Capabilities struct {
	HandlesJS    bool
	RequiresAuth bool
}

// Clock returns the current time (injectable for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
