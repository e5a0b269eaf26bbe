package structured

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tripstack/contentfetch/internal/fetch"
)

const listingHTML = `<!doctype html>
<html>
<head>
<title>Seaside Apartment - Lisbon</title>
<meta property="og:title" content="Seaside Apartment" />
<meta property="og:type" content="place" />
<script type="application/ld+json">
{"@type":"Offer","price":"120.00","priceCurrency":"EUR"}
</script>
<script type="application/ld+json">not valid json</script>
</head>
<body><h1>Seaside Apartment</h1></body>
</html>`

func TestExtract_PullsTitleOpenGraphAndJSONLD(t *testing.T) {
	t.Parallel()

	got, err := Extract([]byte(listingHTML))
	require.NoError(t, err)

	require.Equal(t, "Seaside Apartment - Lisbon", got["title"])

	og, ok := got["opengraph"].(map[string]string)
	require.True(t, ok)
	require.Equal(t, "Seaside Apartment", og["title"])
	require.Equal(t, "place", og["type"])

	ld, ok := got["jsonld"].([]any)
	require.True(t, ok)
	require.Len(t, ld, 1, "malformed JSON-LD blocks are skipped")
	offer, ok := ld[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "120.00", offer["price"])
}

func TestExtract_EmptyDocument(t *testing.T) {
	t.Parallel()

	got, err := Extract([]byte("<html><body></body></html>"))
	require.NoError(t, err)
	require.NotContains(t, got, "title")
	require.NotContains(t, got, "opengraph")
	require.NotContains(t, got, "jsonld")
}

func TestBackend_Fetch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "contentfetch-test/0.1", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer srv.Close()

	b := New(Config{UserAgent: "contentfetch-test/0.1", Timeout: 5 * time.Second})
	got, err := b.Fetch(context.Background(), fetch.Request{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, fetch.BackendStructured, got.Backend)
	require.Equal(t, http.StatusOK, got.StatusCode)
	require.Equal(t, "Seaside Apartment - Lisbon", got.Structured["title"])
}

func TestBackend_Fetch_ThrottleStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := New(Config{Timeout: 5 * time.Second})
	_, err := b.Fetch(context.Background(), fetch.Request{URL: srv.URL})
	require.Error(t, err)
	require.True(t, fetch.IsThrottle(err))
}

func TestBackend_Fetch_ClientErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := New(Config{Timeout: 5 * time.Second})
	_, err := b.Fetch(context.Background(), fetch.Request{URL: srv.URL})
	require.Error(t, err)
	require.False(t, fetch.IsThrottle(err))
	require.False(t, fetch.IsValidation(err))
}

func TestBackend_Fetch_InvalidURL(t *testing.T) {
	t.Parallel()

	b := New(Config{})
	_, err := b.Fetch(context.Background(), fetch.Request{URL: "http://bad url with spaces"})
	require.Error(t, err)
	require.True(t, fetch.IsValidation(err))
}

func TestBackend_Fetch_BodyCap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i < 1024; i++ {
			_, _ = w.Write([]byte("<p>padding padding padding</p>"))
		}
	}))
	defer srv.Close()

	b := New(Config{Timeout: 5 * time.Second, MaxBodyBytes: 512})
	got, err := b.Fetch(context.Background(), fetch.Request{URL: srv.URL})
	require.NoError(t, err)
	require.LessOrEqual(t, len(got.Body), 512)
}
