package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripstack/contentfetch/internal/fetch"
)

type stubFetcher struct {
	result  fetch.Result
	err     error
	lastReq fetch.Request
}

func (s *stubFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Result, error) {
	s.lastReq = req
	return s.result, s.err
}

func newTestServer(f Fetcher) *Server {
	return NewServer(f, time.Minute, zap.NewNop())
}

func doFetch(t *testing.T, srv *Server, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/fetch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleFetchSuccess(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{result: fetch.Result{
		URL:        "https://example.com/page",
		Backend:    fetch.BackendStatic,
		StatusCode: 200,
		Body:       []byte("<html>ok</html>"),
		FetchedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Duration:   250 * time.Millisecond,
	}}
	srv := newTestServer(fetcher)

	rec := doFetch(t, srv, map[string]any{
		"url":          "https://example.com/page",
		"content_type": "blog-content",
		"headers":      map[string]string{"Accept-Language": "en"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp fetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "static", resp.Backend)
	require.Equal(t, "<html>ok</html>", resp.Body)
	require.EqualValues(t, 250, resp.DurationMS)
	require.False(t, resp.Cached)

	require.Equal(t, "blog-content", fetcher.lastReq.Options.ContentType)
	require.Equal(t, "en", fetcher.lastReq.Options.Headers.Get("Accept-Language"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHandleFetchRejectsMissingURL(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubFetcher{})
	rec := doFetch(t, srv, map[string]any{"content_type": "news"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFetchRejectsBadJSON(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubFetcher{})
	req := httptest.NewRequest(http.MethodPost, "/v1/fetch", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFetchValidationError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubFetcher{err: &fetch.ValidationError{Reason: "unsupported scheme"}})
	rec := doFetch(t, srv, map[string]any{"url": "ftp://example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unsupported scheme")
}

func TestHandleFetchExhausted(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubFetcher{err: &fetch.ExhaustedError{
		URL: "https://example.com",
		Attempts: []fetch.Attempt{
			{Backend: fetch.BackendStatic, Kind: fetch.FailureTransient, Reason: "connection reset"},
			{Backend: fetch.BackendStructured, Kind: fetch.FailureThrottle, Reason: "status 429"},
		},
	}})
	rec := doFetch(t, srv, map[string]any{"url": "https://example.com"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp struct {
		Attempts []attemptDetail `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Attempts, 2)
	require.Equal(t, "throttle", resp.Attempts[1].Kind)
}

func TestHandleFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubFetcher{err: context.DeadlineExceeded})
	rec := doFetch(t, srv, map[string]any{"url": "https://example.com"})
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubFetcher{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&stubFetcher{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
