// Package edgar implements the upstream SEC EDGAR fetch client.
// EDGAR requires an identifying User-Agent header and asks clients to
// stay under 10 requests per second.
// Docs: https://www.sec.gov/os/webmaster-faq#code-support
package edgar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultSubmissionsURL is the EDGAR company submissions endpoint.
	DefaultSubmissionsURL = "https://data.sec.gov/submissions"
	// DefaultArchivesURL is the EDGAR filing archives root.
	DefaultArchivesURL = "https://www.sec.gov/Archives"

	defaultUserAgent = "nportd/1.0 contact@fundlens.dev"

	metadataTimeout = 10 * time.Second
	documentTimeout = 60 * time.Second
)

// Client is a long-lived HTTP client for EDGAR metadata and document
// retrieval. All requests carry the SEC identification headers and
// pass through a shared token-bucket limiter.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	userAgent      string
	submissionsURL string
	archivesURL    string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the identification header sent to EDGAR.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithSubmissionsURL overrides the submissions endpoint. Used by tests.
func WithSubmissionsURL(u string) Option {
	return func(c *Client) { c.submissionsURL = u }
}

// WithArchivesURL overrides the archives root. Used by tests.
func WithArchivesURL(u string) Option {
	return func(c *Client) { c.archivesURL = u }
}

// NewClient creates an EDGAR client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(10), 10),
		userAgent:      defaultUserAgent,
		submissionsURL: DefaultSubmissionsURL,
		archivesURL:    DefaultArchivesURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmissionsURL returns the configured submissions endpoint.
func (c *Client) SubmissionsURL() string { return c.submissionsURL }

// ArchivesURL returns the configured archives root.
func (c *Client) ArchivesURL() string { return c.archivesURL }

// FetchSubmissions retrieves the submissions feed for a zero-padded
// CIK. A 404 means the CIK is unknown to EDGAR.
func (c *Client) FetchSubmissions(ctx context.Context, cik string) ([]byte, error) {
	url := fmt.Sprintf("%s/CIK%s.json", c.submissionsURL, cik)

	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	resp, err := c.get(ctx, url)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrCIKNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}

// FetchDocument downloads a filing document. A 403 means EDGAR is
// blocking the client; other non-2xx statuses mean the document is not
// available at this URL (the caller may have alternates to try).
func (c *Client) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()

	resp, err := c.get(ctx, url)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrBlocked
	case resp.StatusCode != http.StatusOK:
		return nil, &DocumentUnavailableError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return c.httpClient.Do(req)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
