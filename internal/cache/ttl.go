package cache

import (
	"strings"
	"time"
)

// TTLPolicy maps content classification to cache lifetime. Frequently
// updated classes (prices, news) get short TTLs; stable destination info
// keeps long ones. Per-domain overrides win over class entries.
type TTLPolicy struct {
	ClassTTLs  map[string]time.Duration
	DomainTTLs map[string]time.Duration
	Default    time.Duration
}

// DefaultTTLPolicy returns the built-in classification table.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		ClassTTLs: map[string]time.Duration{
			"price-monitoring": 15 * time.Minute,
			"news":             30 * time.Minute,
			"listing":          time.Hour,
			"blog-content":     6 * time.Hour,
			"destination-info": 24 * time.Hour,
		},
		DomainTTLs: map[string]time.Duration{},
		Default:    time.Hour,
	}
}

// TTLFor picks the TTL for a fetched result.
func (p TTLPolicy) TTLFor(domain, contentType string) time.Duration {
	if ttl, ok := p.DomainTTLs[strings.ToLower(domain)]; ok {
		return ttl
	}
	if ttl, ok := p.ClassTTLs[strings.ToLower(contentType)]; ok {
		return ttl
	}
	if p.Default > 0 {
		return p.Default
	}
	return time.Hour
}
