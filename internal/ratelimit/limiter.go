// Package ratelimit implements sliding-window admission control keyed by
// destination domain, plus the adaptive feedback loop that tunes each
// domain's allowed rate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tripstack/contentfetch/internal/telemetry"
)

// Config holds limiter configuration.
type Config struct {
	// Window is the trailing interval over which admissions are counted.
	Window time.Duration
	// DefaultRate is the starting per-domain rate in requests per second.
	DefaultRate float64
	// MinRate and MaxRate clamp every rate adjustment.
	MinRate float64
	MaxRate float64
}

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultWindow = 5 * time.Second
	DefaultRate   = 1.0
	DefaultMin    = 0.1
	DefaultMax    = 10.0
)

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.DefaultRate <= 0 {
		c.DefaultRate = DefaultRate
	}
	if c.MinRate <= 0 {
		c.MinRate = DefaultMin
	}
	if c.MaxRate <= 0 {
		c.MaxRate = DefaultMax
	}
	return c
}

// domainState is the per-domain admission record. All fields are guarded
// by the state's own mutex so domains never contend with each other.
type domainState struct {
	mu         sync.Mutex
	admissions []time.Time
	rate       float64
}

// Limiter manages per-domain sliding-window admission.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	domains map[string]*domainState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		domains: make(map[string]*domainState),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) state(domain string) *domainState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{rate: l.cfg.DefaultRate}
		l.domains[domain] = st
	}
	return st
}

// Acquire blocks until an admission slot for domain is available or the
// context finishes. The admission timestamp is recorded atomically with the
// capacity check; callers that subsequently time out do not get the slot
// rolled back, since the request still occupied network capacity.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	st := l.state(domain)
	start := l.now()

	for {
		st.mu.Lock()
		now := l.now()
		st.admissions = prune(st.admissions, now.Add(-l.cfg.Window))

		capacity := int(l.cfg.Window.Seconds() * st.rate)
		if capacity < 1 {
			capacity = 1
		}
		if len(st.admissions) < capacity {
			st.admissions = append(st.admissions, now)
			st.mu.Unlock()
			if waited := l.now().Sub(start); waited > time.Millisecond {
				telemetry.ObserveRateLimitDelay(domain, waited)
			}
			return nil
		}

		wait := l.cfg.Window - now.Sub(st.admissions[0])
		st.mu.Unlock()

		if wait <= 0 {
			// Oldest admission just aged out; re-check immediately.
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return fmt.Errorf("admission wait for %s: %w", domain, err)
		}
	}
}

// Rate returns the current allowed rate for domain.
func (l *Limiter) Rate(domain string) float64 {
	st := l.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.rate
}

// UpdateRate atomically replaces the domain's rate, clamped to the
// configured bounds, and returns the applied value.
func (l *Limiter) UpdateRate(domain string, rate float64) float64 {
	st := l.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.rate = l.clamp(rate)
	return st.rate
}

func (l *Limiter) clamp(rate float64) float64 {
	if rate < l.cfg.MinRate {
		return l.cfg.MinRate
	}
	if rate > l.cfg.MaxRate {
		return l.cfg.MaxRate
	}
	return rate
}

// prune drops admissions at or before the cutoff. Admissions are appended
// in order, so the slice stays sorted.
func prune(admissions []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(admissions) && !admissions[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return admissions
	}
	return append(admissions[:0], admissions[idx:]...)
}
