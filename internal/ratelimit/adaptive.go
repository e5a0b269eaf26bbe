package ratelimit

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tripstack/contentfetch/internal/telemetry"
)

// AdaptiveConfig tunes the feedback control loop.
type AdaptiveConfig struct {
	// SuccessThreshold is the streak length that triggers a rate increase.
	SuccessThreshold int
	// SoftFailureThreshold is the streak length that triggers a soft backoff.
	SoftFailureThreshold int
	// BackoffFactor divides the rate on backoff; RecoveryFactor multiplies
	// it on recovery. Backoff is deliberately harsher than recovery.
	BackoffFactor  float64
	RecoveryFactor float64
	// GlobalRate optionally caps outbound requests across all domains
	// (requests per second); zero disables the ceiling.
	GlobalRate  float64
	GlobalBurst int
}

func (c AdaptiveConfig) withDefaults() AdaptiveConfig {
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 5
	}
	if c.SoftFailureThreshold <= 0 {
		c.SoftFailureThreshold = 3
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	if c.RecoveryFactor <= 1 {
		c.RecoveryFactor = 1.5
	}
	if c.GlobalBurst <= 0 {
		c.GlobalBurst = 1
	}
	return c
}

// feedback tracks success/failure streaks for one domain. Exactly one
// counter is ever positive.
type feedback struct {
	successes int
	failures  int
}

// Controller wraps a Limiter and adjusts per-domain rates from
// success/failure feedback (multiplicative increase, multiplicative
// decrease).
type Controller struct {
	limiter *Limiter
	cfg     AdaptiveConfig
	logger  *zap.Logger

	mu       sync.Mutex
	counters map[string]*feedback

	global *rate.Limiter
}

// NewController creates a Controller around limiter.
func NewController(limiter *Limiter, cfg AdaptiveConfig, logger *zap.Logger) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
		counters: make(map[string]*feedback),
	}
	if cfg.GlobalRate > 0 {
		c.global = rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst)
	}
	return c
}

// Acquire gains admission for domain, honoring the optional global ceiling
// before the per-domain window.
func (c *Controller) Acquire(ctx context.Context, domain string) error {
	if c.global != nil {
		if err := c.global.Wait(ctx); err != nil {
			return err
		}
	}
	return c.limiter.Acquire(ctx, domain)
}

// Rate exposes the domain's current allowed rate.
func (c *Controller) Rate(domain string) float64 {
	return c.limiter.Rate(domain)
}

func (c *Controller) feedbackFor(domain string) *feedback {
	fb, ok := c.counters[domain]
	if !ok {
		fb = &feedback{}
		c.counters[domain] = fb
	}
	return fb
}

// ReportSuccess records a successful fetch; after SuccessThreshold
// consecutive successes the domain's rate grows by RecoveryFactor.
func (c *Controller) ReportSuccess(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fb := c.feedbackFor(domain)
	fb.failures = 0
	fb.successes++
	if fb.successes < c.cfg.SuccessThreshold {
		return
	}
	fb.successes = 0

	old := c.limiter.Rate(domain)
	applied := c.limiter.UpdateRate(domain, old*c.cfg.RecoveryFactor)
	if applied != old {
		telemetry.ObserveRateAdjustment(domain, "up")
		c.logger.Debug("rate recovered",
			zap.String("domain", domain),
			zap.Float64("old_rps", old),
			zap.Float64("new_rps", applied),
		)
	}
}

// ReportFailure records a failed fetch. A hard throttling signal (HTTP
// 429/503 equivalent) immediately divides the rate by BackoffFactor*2;
// soft failures only back off after SoftFailureThreshold in a row.
func (c *Controller) ReportFailure(domain string, hardThrottle bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fb := c.feedbackFor(domain)
	fb.successes = 0

	if hardThrottle {
		fb.failures = 0
		c.backoff(domain, c.cfg.BackoffFactor*2)
		return
	}

	fb.failures++
	if fb.failures < c.cfg.SoftFailureThreshold {
		return
	}
	fb.failures = 0
	c.backoff(domain, c.cfg.BackoffFactor)
}

func (c *Controller) backoff(domain string, divisor float64) {
	old := c.limiter.Rate(domain)
	applied := c.limiter.UpdateRate(domain, old/divisor)
	if applied != old {
		telemetry.ObserveRateAdjustment(domain, "down")
		c.logger.Info("rate backed off",
			zap.String("domain", domain),
			zap.Float64("old_rps", old),
			zap.Float64("new_rps", applied),
			zap.Float64("divisor", divisor),
		)
	}
}
