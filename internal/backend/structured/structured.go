// Package structured implements the extraction backend: a plain HTTP fetch
// followed by structured-data extraction (JSON-LD, OpenGraph, title). It
// handles script-heavy listing and price pages that embed their data
// server-side, without paying the full browser-automation cost.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tripstack/contentfetch/internal/fetch"
)

// Config controls the extraction client.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes caps how much of a response is read. Zero means 10 MiB.
	MaxBodyBytes int64
}

// Backend implements fetch.Backend with HTTP + goquery extraction.
type Backend struct {
	cfg    Config
	client *http.Client
}

// New builds a structured-extraction Backend.
func New(cfg Config) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &Backend{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    50,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// ID returns the backend identifier.
func (b *Backend) ID() fetch.BackendID { return fetch.BackendStructured }

// Fetch retrieves the page and extracts embedded structured data.
func (b *Backend) Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fetch.Result{}, &fetch.ValidationError{Reason: err.Error()}
	}
	if b.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", b.cfg.UserAgent)
	}
	for key, values := range req.Options.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fetch.Result{}, translate(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return fetch.Result{}, &fetch.ThrottleError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return fetch.Result{}, &fetch.TransientError{
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, b.cfg.MaxBodyBytes))
	if err != nil {
		return fetch.Result{}, translate(err)
	}

	structured, err := Extract(body)
	if err != nil {
		return fetch.Result{}, &fetch.TransientError{Err: fmt.Errorf("extract structured data: %w", err)}
	}

	return fetch.Result{
		URL:        resp.Request.URL.String(),
		Backend:    fetch.BackendStructured,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Structured: structured,
		Duration:   time.Since(start),
	}, nil
}

// Extract pulls JSON-LD blocks, OpenGraph properties, and the document
// title out of an HTML payload.
func Extract(body []byte) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := make(map[string]any)

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		out["title"] = title
	}

	og := make(map[string]string)
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		property, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if property != "" && content != "" {
			og[strings.TrimPrefix(property, "og:")] = content
		}
	})
	if len(og) > 0 {
		out["opengraph"] = og
	}

	var ld []any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var parsed any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			// Malformed blocks are common in the wild; skip them.
			return
		}
		ld = append(ld, parsed)
	})
	if len(ld) > 0 {
		out["jsonld"] = ld
	}

	return out, nil
}

func translate(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &fetch.TransientError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &fetch.TransientError{Err: err}
	}
	return &fetch.TransientError{Err: fmt.Errorf("structured fetch: %w", err)}
}
