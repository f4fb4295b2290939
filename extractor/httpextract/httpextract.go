// Package httpextract provides an extractor that calls a remote
// extraction service over HTTP.
//
// Each item's payload is POSTed to the configured endpoint and the
// response body becomes the extraction result. Response status codes
// map onto the engine's retry classification: 429 and 5xx responses
// are transient, every other non-2xx response is permanent.
//
// Usage:
//
//	ext := httpextract.New("https://api.example.com/extract",
//	    httpextract.WithHeader("Authorization", "Bearer "+token),
//	    httpextract.WithTimeout(30*time.Second),
//	)
//	sup, err := engine.New(cfg, src, ext, snk, store)
package httpextract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/item"
)

// maxResponseBytes caps how much of a response body is read, both for
// results and for error snippets.
const maxResponseBytes = 10 << 20

// Extractor POSTs item payloads to an HTTP endpoint.
type Extractor struct {
	url     string
	client  *http.Client
	headers http.Header
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithClient sets the HTTP client. Defaults to a client with a
// 30 second timeout.
func WithClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithTimeout sets the per-request timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		e.client.Timeout = d
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(e *Extractor) {
		e.headers.Add(key, value)
	}
}

// New creates an Extractor targeting the given URL.
func New(url string, opts ...Option) *Extractor {
	e := &Extractor{
		url:     url,
		client:  &http.Client{Timeout: 30 * time.Second},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract implements engine.Extractor.
func (e *Extractor) Extract(ctx context.Context, it item.Item) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(it.Payload))
	if err != nil {
		return nil, rebatch.Permanent(fmt.Errorf("httpextract: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range e.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		// Network faults and timeouts are worth retrying.
		return nil, rebatch.Transient(fmt.Errorf("httpextract: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, rebatch.Transient(fmt.Errorf("httpextract: read response: %w", err))
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyStatus maps a response status onto retry classification.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return rebatch.Transient(fmt.Errorf("httpextract: status %d: %s", status, snippet(body)))
	default:
		return rebatch.Permanent(fmt.Errorf("httpextract: status %d: %s", status, snippet(body)))
	}
}

func snippet(body []byte) string {
	const n = 256
	if len(body) > n {
		body = body[:n]
	}
	return string(body)
}
