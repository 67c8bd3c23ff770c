package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	defaultMaxBytes    = 4 << 20
)

// HTTPOption configures an [HTTPSource].
type HTTPOption func(*HTTPSource)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithTimeout bounds each request. Default: 5s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxBytes caps the accepted body size. Default: 4 MiB.
func WithMaxBytes(n int64) HTTPOption {
	return func(s *HTTPSource) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// HTTPSource fetches assets relative to a base URL, bypassing caches.
type HTTPSource struct {
	base     *url.URL
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

var _ Source = (*HTTPSource)(nil)

// NewHTTPSource returns a source resolving names against baseURL.
func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("assets: http: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("assets: http: base url %q must be http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	s := &HTTPSource{
		base:     u,
		client:   http.DefaultClient,
		timeout:  defaultHTTPTimeout,
		maxBytes: defaultMaxBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name implements [Source].
func (s *HTTPSource) Name() string { return "http" }

// Fetch implements [Source]. 404 and 410 map to [ErrNotFound]; any other
// non-2xx status is an error.
func (s *HTTPSource) Fetch(ctx context.Context, name string) (string, error) {
	ref, err := url.Parse(name)
	if err != nil {
		return "", fmt.Errorf("assets: http: parse name %q: %w", name, err)
	}
	target := s.base.ResolveReference(ref)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("assets: http: build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("assets: http: get %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", fmt.Errorf("assets: http: %s: %w", target, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("assets: http: %s: unexpected status %s", target, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("assets: http: read %s: %w", target, err)
	}
	if int64(len(body)) > s.maxBytes {
		return "", fmt.Errorf("assets: http: %s: %w", target, errTooLarge)
	}
	return string(body), nil
}

var errTooLarge = errors.New("body exceeds size limit")
