// Package cache provides the TTL-keyed result cache: an in-process tier
// plus an optional Postgres-backed external tier.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tripstack/contentfetch/internal/fetch"
)

// Store is the cache contract consumed by the orchestrator. Get returns
// (value, false) once an entry's TTL has elapsed.
type Store interface {
	Get(ctx context.Context, key string) (fetch.Result, bool, error)
	Set(ctx context.Context, key string, value fetch.Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// External is the contract for the authoritative external tier. Get also
// reports the entry's absolute expiry so a promotion into the memory tier
// can never outlive the original row.
type External interface {
	Get(ctx context.Context, key string) (fetch.Result, time.Time, bool, error)
	Set(ctx context.Context, key string, value fetch.Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key computes the normalized request signature. URLs differing only in
// fragment, default port, or query order share an entry; every option field
// that changes what a backend would return — including custom headers — is
// folded into the digest.
func Key(req fetch.Request) (string, error) {
	normalized, err := fetch.NormalizeURL(req.URL)
	if err != nil {
		return "", &fetch.ValidationError{Reason: err.Error()}
	}
	sig := fmt.Sprintf("%s|ct=%s|js=%t|cx=%s|h=%s",
		normalized,
		req.Options.ContentType,
		req.Options.RequiresJS,
		req.Options.Complexity,
		canonicalHeaders(req.Options.Headers),
	)
	sum := sha256.Sum256([]byte(sig))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalHeaders renders headers order-independently: canonical key form,
// keys sorted, values joined in insertion order.
func canonicalHeaders(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	merged := make(map[string][]string, len(h))
	for key, values := range h {
		ck := http.CanonicalHeaderKey(key)
		merged[ck] = append(merged[ck], values...)
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+strings.Join(merged[key], ","))
	}
	return strings.Join(pairs, "&")
}
