// Package selector implements the deterministic backend-selection policy.
package selector

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tripstack/contentfetch/internal/fetch"
	"github.com/tripstack/contentfetch/internal/telemetry"
)

// Config holds the curated routing tables. Zero-value fields fall back to
// the built-in defaults.
type Config struct {
	// ContentTypeRoutes maps a request's content classification directly to
	// a backend (rule 1).
	ContentTypeRoutes map[string]fetch.BackendID
	// BrowserDomains lists sites that only render under full browser
	// automation (rule 2).
	BrowserDomains []string
	// AuthDomains lists interactive or login-walled sites (rule 3).
	AuthDomains []string
}

// DefaultContentTypeRoutes routes well-known content classes.
func DefaultContentTypeRoutes() map[string]fetch.BackendID {
	return map[string]fetch.BackendID{
		"price-monitoring": fetch.BackendStructured,
		"listing":          fetch.BackendStructured,
		"blog-content":     fetch.BackendStatic,
		"destination-info": fetch.BackendStatic,
		"news":             fetch.BackendStatic,
	}
}

// DefaultBrowserDomains are sites known to serve empty shells to plain HTTP
// clients.
func DefaultBrowserDomains() []string {
	return []string{"instagram.com", "facebook.com", "tripadvisor.com"}
}

// DefaultAuthDomains are interactive or authentication-gated sites.
func DefaultAuthDomains() []string {
	return []string{"airbnb.com", "booking.com", "linkedin.com"}
}

// Selector picks an ordered backend list for a request. Selection is
// deterministic for identical inputs; outcome reports feed observability
// only and never alter in-process decisions.
type Selector struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	outcomes map[fetch.BackendID]Stats
}

// Stats counts per-backend outcomes reported by the orchestrator.
type Stats struct {
	Successes int
	Failures  int
}

// New creates a Selector.
func New(cfg Config, logger *zap.Logger) *Selector {
	if cfg.ContentTypeRoutes == nil {
		cfg.ContentTypeRoutes = DefaultContentTypeRoutes()
	}
	if cfg.BrowserDomains == nil {
		cfg.BrowserDomains = DefaultBrowserDomains()
	}
	if cfg.AuthDomains == nil {
		cfg.AuthDomains = DefaultAuthDomains()
	}
	return &Selector{
		cfg:      cfg,
		logger:   logger,
		outcomes: make(map[fetch.BackendID]Stats),
	}
}

// Select returns the ordered candidate backends for the request. The first
// matching rule yields the top pick; the remaining backends follow in the
// fixed cyclic priority static -> structured -> browser, without repeats.
func (s *Selector) Select(rawURL string, opts fetch.Options) ([]fetch.BackendID, error) {
	domain, err := fetch.DomainKey(rawURL)
	if err != nil {
		return nil, &fetch.ValidationError{Reason: err.Error()}
	}

	pick, rule := s.pick(domain, opts)
	telemetry.ObserveSelection(string(pick), rule)
	s.logger.Debug("backend selected",
		zap.String("domain", domain),
		zap.String("backend", string(pick)),
		zap.String("rule", rule),
	)
	return fallbackChain(pick), nil
}

func (s *Selector) pick(domain string, opts fetch.Options) (fetch.BackendID, string) {
	if opts.ContentType != "" {
		if backend, ok := s.cfg.ContentTypeRoutes[strings.ToLower(opts.ContentType)]; ok {
			return backend, "content-type"
		}
	}
	if domainInSet(domain, s.cfg.BrowserDomains) {
		return fetch.BackendBrowser, "browser-required"
	}
	if domainInSet(domain, s.cfg.AuthDomains) {
		return fetch.BackendBrowser, "interactive"
	}
	if opts.RequiresJS {
		return fetch.BackendStructured, "requires-js"
	}
	if opts.Complexity == fetch.ComplexityComplex {
		return fetch.BackendStructured, "complexity"
	}
	return fetch.BackendStatic, "default"
}

// ReportOutcome records success/failure per backend for observability and
// future tuning. It intentionally has no effect on Select.
func (s *Selector) ReportOutcome(backend fetch.BackendID, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.outcomes[backend]
	if success {
		st.Successes++
	} else {
		st.Failures++
	}
	s.outcomes[backend] = st
}

// Outcomes returns a snapshot of recorded per-backend outcomes.
func (s *Selector) Outcomes() map[fetch.BackendID]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[fetch.BackendID]Stats, len(s.outcomes))
	for k, v := range s.outcomes {
		snapshot[k] = v
	}
	return snapshot
}

// fallbackChain builds [pick] + the cyclic continuation of the fixed
// priority list, duplicates removed.
func fallbackChain(pick fetch.BackendID) []fetch.BackendID {
	chain := []fetch.BackendID{pick}
	start := 0
	for i, b := range fetch.AllBackends {
		if b == pick {
			start = i
			break
		}
	}
	for i := 1; i < len(fetch.AllBackends); i++ {
		next := fetch.AllBackends[(start+i)%len(fetch.AllBackends)]
		if next != pick {
			chain = append(chain, next)
		}
	}
	return chain
}

// domainInSet reports whether domain equals or is a subdomain of any entry.
func domainInSet(domain string, set []string) bool {
	for _, entry := range set {
		entry = strings.ToLower(strings.TrimPrefix(entry, "www."))
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}
