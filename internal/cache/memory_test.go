package cache

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tripstack/contentfetch/internal/fetch"
)

func testResult(url string) fetch.Result {
	return fetch.Result{
		URL:        url,
		Backend:    fetch.BackendStatic,
		StatusCode: 200,
		Body:       []byte("<html>ok</html>"),
	}
}

func TestMemory_GetReturnsValueBeforeTTL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", testResult("https://example.com"), time.Minute))

	now = now.Add(59 * time.Second)
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.com", got.URL)
}

func TestMemory_GetExpiresExactlyAtTTL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", testResult("https://example.com"), time.Minute))

	now = now.Add(time.Minute)
	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok, "entry must not be served once now >= expiresAt")
	require.Zero(t, m.Len(), "expired entry is dropped lazily on Get")
}

func TestMemory_DeleteRemovesEntry(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", testResult("https://example.com"), time.Minute))
	require.NoError(t, m.Delete(ctx, "k"))

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory_SweepDropsOnlyExpired(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	m := NewMemory()
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "short", testResult("https://a.com"), time.Second))
	require.NoError(t, m.Set(ctx, "long", testResult("https://b.com"), time.Hour))

	now = now.Add(time.Minute)
	m.sweep()

	require.Equal(t, 1, m.Len())
	_, ok, err := m.Get(ctx, "long")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Set(ctx, "shared", testResult("https://example.com"), time.Minute)
				_, _, _ = m.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	_, ok, err := m.Get(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKey_NormalizesEquivalentURLs(t *testing.T) {
	t.Parallel()

	a, err := Key(fetch.Request{URL: "https://Example.com:443/path?b=2&a=1#frag"})
	require.NoError(t, err)
	b, err := Key(fetch.Request{URL: "https://example.com/path?a=1&b=2"})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestKey_OptionsChangeSignature(t *testing.T) {
	t.Parallel()

	plain, err := Key(fetch.Request{URL: "https://example.com/p"})
	require.NoError(t, err)
	js, err := Key(fetch.Request{URL: "https://example.com/p", Options: fetch.Options{RequiresJS: true}})
	require.NoError(t, err)
	require.NotEqual(t, plain, js)
}

func TestKey_HeadersChangeSignature(t *testing.T) {
	t.Parallel()

	plain, err := Key(fetch.Request{URL: "https://example.com/p"})
	require.NoError(t, err)

	withLang, err := Key(fetch.Request{
		URL:     "https://example.com/p",
		Options: fetch.Options{Headers: http.Header{"Accept-Language": {"de"}}},
	})
	require.NoError(t, err)
	require.NotEqual(t, plain, withLang, "header differences must not share an entry")

	otherLang, err := Key(fetch.Request{
		URL:     "https://example.com/p",
		Options: fetch.Options{Headers: http.Header{"Accept-Language": {"en"}}},
	})
	require.NoError(t, err)
	require.NotEqual(t, withLang, otherLang)
}

func TestKey_HeaderOrderAndCasingIrrelevant(t *testing.T) {
	t.Parallel()

	a, err := Key(fetch.Request{
		URL: "https://example.com/p",
		Options: fetch.Options{Headers: http.Header{
			"Accept-Language": {"en"},
			"X-Client":        {"app"},
		}},
	})
	require.NoError(t, err)

	b, err := Key(fetch.Request{
		URL: "https://example.com/p",
		Options: fetch.Options{Headers: http.Header{
			"x-client":        {"app"},
			"accept-language": {"en"},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, a, b, "header map order and key casing must not change the key")
}

func TestKey_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := Key(fetch.Request{URL: "ftp://example.com/file"})
	require.Error(t, err)
	require.True(t, fetch.IsValidation(err))
}

func TestTTLPolicy_ClassificationTable(t *testing.T) {
	t.Parallel()

	p := DefaultTTLPolicy()
	require.Equal(t, 15*time.Minute, p.TTLFor("example.com", "price-monitoring"))
	require.Equal(t, 24*time.Hour, p.TTLFor("example.com", "destination-info"))
	require.Equal(t, time.Hour, p.TTLFor("example.com", "unknown-class"))
}

func TestTTLPolicy_DomainOverrideWins(t *testing.T) {
	t.Parallel()

	p := DefaultTTLPolicy()
	p.DomainTTLs["volatile.example.com"] = 2 * time.Minute
	require.Equal(t, 2*time.Minute, p.TTLFor("volatile.example.com", "destination-info"))
}
