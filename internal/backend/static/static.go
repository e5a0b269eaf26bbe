// Package static implements the primary backend: plain HTTP fetching via a
// Colly collector. It is the cheapest adapter and the default first choice.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/tripstack/contentfetch/internal/fetch"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Backend implements fetch.Backend using the Colly collector.
type Backend struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// New builds a static Backend.
func New(cfg Config) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Backend{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// ID returns the backend identifier.
func (b *Backend) ID() fetch.BackendID { return fetch.BackendStatic }

// Fetch executes a single HTTP GET using Colly.
func (b *Backend) Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error) {
	var (
		result   fetch.Result
		fetchErr error
	)
	start := time.Now()

	collector := b.baseCollector.Clone()
	if b.cfg.UserAgent != "" {
		collector.UserAgent = b.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = false
	collector.SetRequestTimeout(b.cfg.Timeout)
	collector.WithTransport(b.transport)

	collector.OnRequest(func(r *colly.Request) {
		copyHeaders(req.Options.Headers, r)
	})
	collector.OnResponse(func(r *colly.Response) {
		result = fetch.Result{
			URL:        r.Request.URL.String(),
			Backend:    fetch.BackendStatic,
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = translate(r, err)
	})

	if err := b.run(ctx, collector, req.URL, &fetchErr); err != nil {
		return fetch.Result{}, err
	}
	return result, nil
}

func (b *Backend) run(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &fetch.TransientError{Err: fmt.Errorf("static fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return translate(nil, err)
		}
		return nil
	}
}

// translate maps transport-level failures onto the core error taxonomy.
func translate(resp *colly.Response, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return &fetch.ThrottleError{StatusCode: resp.StatusCode}
		}
	}
	if errors.Is(err, colly.ErrMissingURL) || errors.Is(err, colly.ErrForbiddenURL) {
		return &fetch.ValidationError{Reason: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &fetch.TransientError{Err: err}
	}
	return &fetch.TransientError{Err: fmt.Errorf("static fetch: %w", err)}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
