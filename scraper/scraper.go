// Package scraper extracts readable detail text from official alert pages to
// enrich the approval preview. Failures are soft: the preview falls back to
// the feed summary.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const defaultMaxDetailLen = 1500

// Scraper fetches alert detail pages.
type Scraper struct {
	httpClient   *http.Client
	maxDetailLen int
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.httpClient.Timeout = d
	}
}

// WithMaxDetailLength sets the maximum detail length to return.
func WithMaxDetailLength(n int) Option {
	return func(s *Scraper) {
		s.maxDetailLen = n
	}
}

// NewScraper creates a detail-page scraper.
func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		maxDetailLen: defaultMaxDetailLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchDetail extracts the readable text of the official alert page.
func (s *Scraper) FetchDetail(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "tay-weather-rss-bot/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch alert page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("parse alert page: %w", err)
	}

	detail := strings.TrimSpace(article.TextContent)
	runes := []rune(detail)
	if len(runes) > s.maxDetailLen {
		detail = strings.TrimRight(string(runes[:s.maxDetailLen]), " \n") + "…"
	}
	return detail, nil
}
