// Package orchestrator drives the end-to-end fetch flow: cache lookup,
// admission, sequential backend fallback, feedback, and cache write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tripstack/contentfetch/internal/cache"
	"github.com/tripstack/contentfetch/internal/fetch"
	"github.com/tripstack/contentfetch/internal/telemetry"
)

// Selector ranks candidate backends for a request.
type Selector interface {
	Select(rawURL string, opts fetch.Options) ([]fetch.BackendID, error)
	ReportOutcome(backend fetch.BackendID, success bool)
}

// Controller provides admission and consumes fetch outcome feedback.
type Controller interface {
	Acquire(ctx context.Context, domain string) error
	ReportSuccess(domain string)
	ReportFailure(domain string, hardThrottle bool)
}

// Archiver optionally persists raw payloads of successful fetches.
type Archiver interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher optionally emits completion events.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// Config controls orchestration behavior.
type Config struct {
	// AttemptTimeout bounds each individual backend call.
	AttemptTimeout time.Duration
	// TimeoutIsHard controls whether a per-attempt timeout feeds back as a
	// hard throttling signal. Default is soft.
	TimeoutIsHard bool
	// ArchivePrefix prefixes blob paths when an Archiver is configured.
	ArchivePrefix string
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.ArchivePrefix == "" {
		c.ArchivePrefix = "pages"
	}
	return c
}

// Orchestrator owns the per-request state machine. All collaborators are
// injected; there is no process-global state here.
type Orchestrator struct {
	cfg        Config
	cache      cache.Store
	ttl        cache.TTLPolicy
	selector   Selector
	controller Controller
	backends   map[fetch.BackendID]fetch.Backend
	archiver   Archiver
	publisher  Publisher
	clock      fetch.Clock
	logger     *zap.Logger
}

// New constructs an Orchestrator. archiver and publisher may be nil.
func New(
	cfg Config,
	store cache.Store,
	ttl cache.TTLPolicy,
	sel Selector,
	ctrl Controller,
	backends map[fetch.BackendID]fetch.Backend,
	archiver Archiver,
	publisher Publisher,
	clock fetch.Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		cache:      store,
		ttl:        ttl,
		selector:   sel,
		controller: ctrl,
		backends:   backends,
		archiver:   archiver,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
	}
}

// Fetch runs one orchestration call. It returns a successful result
// (possibly cached), a validation error, or an aggregate exhaustion error.
func (o *Orchestrator) Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error) {
	telemetry.IncActiveFetches()
	defer telemetry.DecActiveFetches()

	key, err := cache.Key(req)
	if err != nil {
		telemetry.ObserveRequest("invalid")
		return fetch.Result{}, err
	}

	// CacheCheck: a hit short-circuits admission and backends entirely.
	if !req.Options.ForceRefresh {
		if value, ok, err := o.cache.Get(ctx, key); err == nil && ok {
			value.Cached = true
			telemetry.ObserveRequest("hit")
			return value, nil
		} else if err != nil {
			o.logger.Warn("cache lookup failed", zap.String("url", req.URL), zap.Error(err))
		}
	}

	domain, err := fetch.DomainKey(req.URL)
	if err != nil {
		telemetry.ObserveRequest("invalid")
		return fetch.Result{}, &fetch.ValidationError{Reason: err.Error()}
	}

	candidates, err := o.selector.Select(req.URL, req.Options)
	if err != nil {
		telemetry.ObserveRequest("invalid")
		return fetch.Result{}, err
	}

	attempts := make([]fetch.Attempt, 0, len(candidates))
	for _, id := range candidates {
		backend, ok := o.backends[id]
		if !ok {
			// Selector and wiring disagree; skip rather than fail the call.
			o.logger.Warn("backend not wired", zap.String("backend", string(id)))
			continue
		}

		result, attempt, err := o.attempt(ctx, backend, req, domain)
		if err == nil {
			return o.complete(ctx, key, domain, req, result)
		}
		if attempt.Backend == "" {
			// Admission failed; no backend was called and no feedback applies.
			return fetch.Result{}, err
		}
		if fetch.IsValidation(err) {
			telemetry.ObserveRequest("invalid")
			return fetch.Result{}, err
		}
		if ctx.Err() != nil {
			return fetch.Result{}, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
		}

		// ReportFailure before moving to the next candidate.
		o.controller.ReportFailure(domain, attempt.Kind == fetch.FailureThrottle ||
			(attempt.Kind == fetch.FailureTimeout && o.cfg.TimeoutIsHard))
		o.selector.ReportOutcome(attempt.Backend, false)
		telemetry.ObserveAttempt(string(attempt.Backend), string(attempt.Kind))
		attempts = append(attempts, attempt)

		o.logger.Info("backend attempt failed",
			zap.String("url", req.URL),
			zap.String("backend", string(attempt.Backend)),
			zap.String("kind", string(attempt.Kind)),
			zap.Duration("latency", attempt.Latency),
		)
	}

	telemetry.ObserveRequest("exhausted")
	return fetch.Result{}, &fetch.ExhaustedError{URL: req.URL, Attempts: attempts}
}

// attempt gains admission, then runs one backend under the per-attempt
// timeout. The admission slot is never rolled back on timeout: the request
// occupied origin capacity regardless.
func (o *Orchestrator) attempt(
	ctx context.Context,
	backend fetch.Backend,
	req fetch.Request,
	domain string,
) (fetch.Result, fetch.Attempt, error) {
	if err := o.controller.Acquire(ctx, domain); err != nil {
		return fetch.Result{}, fetch.Attempt{}, fmt.Errorf("admission for %s: %w", domain, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	start := o.clock.Now()
	result, err := backend.Fetch(attemptCtx, req)
	latency := o.clock.Now().Sub(start)
	if err == nil {
		result.Duration = latency
		return result, fetch.Attempt{}, nil
	}

	attempt := fetch.Attempt{
		Backend: backend.ID(),
		Err:     err,
		Reason:  err.Error(),
		Latency: latency,
		Kind:    classify(attemptCtx, err),
	}
	return fetch.Result{}, attempt, err
}

func classify(attemptCtx context.Context, err error) fetch.FailureKind {
	switch {
	case fetch.IsThrottle(err):
		return fetch.FailureThrottle
	case errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded:
		return fetch.FailureTimeout
	default:
		return fetch.FailureTransient
	}
}

// complete reports success, writes the cache entry, and runs the optional
// archive/publish side effects, in that order, before returning.
func (o *Orchestrator) complete(
	ctx context.Context,
	key string,
	domain string,
	req fetch.Request,
	result fetch.Result,
) (fetch.Result, error) {
	o.controller.ReportSuccess(domain)
	o.selector.ReportOutcome(result.Backend, true)
	telemetry.ObserveAttempt(string(result.Backend), "success")
	telemetry.ObserveBytes(domain, len(result.Body))

	result.FetchedAt = o.clock.Now()

	ttl := o.ttl.TTLFor(domain, req.Options.ContentType)
	if err := o.cache.Set(ctx, key, result, ttl); err != nil {
		o.logger.Warn("cache write failed", zap.String("url", req.URL), zap.Error(err))
	}

	o.archiveAndPublish(ctx, key, domain, result)

	telemetry.ObserveRequest("fetched")
	return result, nil
}

func (o *Orchestrator) archiveAndPublish(ctx context.Context, key, domain string, result fetch.Result) {
	uri := ""
	if o.archiver != nil && len(result.Body) > 0 {
		path := fmt.Sprintf("%s/%s/%s.html", o.cfg.ArchivePrefix, domain, key)
		var err error
		uri, err = o.archiver.PutObject(ctx, path, "text/html; charset=utf-8", result.Body)
		if err != nil {
			o.logger.Warn("archive write failed", zap.String("url", result.URL), zap.Error(err))
		}
	}
	if o.publisher != nil {
		event := map[string]any{
			"url":       result.URL,
			"backend":   string(result.Backend),
			"status":    result.StatusCode,
			"cache_key": key,
			"blob_uri":  uri,
			"timestamp": result.FetchedAt.Format(time.RFC3339),
		}
		if err := o.publisher.Publish(ctx, event); err != nil {
			o.logger.Warn("completion publish failed", zap.String("url", result.URL), zap.Error(err))
		}
	}
}
