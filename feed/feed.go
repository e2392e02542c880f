// Package feed fetches and parses the upstream Atom alert feed.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"tay-weather-bot/alert"
)

const defaultUserAgent = "tay-weather-rss-bot/1.0"

// Client fetches the regional Atom alert feed.
type Client struct {
	httpClient     *http.Client
	feedURL        string
	userAgent      string
	retries        int
	sleep          func(time.Duration)
	forecastRegion string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the number of fetch attempts.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithSleep overrides the retry backoff sleep (for testing).
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithRegionRewrite replaces the upstream forecast-region wording in entry
// titles with the display area name passed to Fetch.
func WithRegionRewrite(forecastRegion string) Option {
	return func(c *Client) {
		c.forecastRegion = forecastRegion
	}
}

// NewClient creates a feed client for the given Atom URL.
func NewClient(feedURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		feedURL:    feedURL,
		userAgent:  defaultUserAgent,
		retries:    3,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Summary   string     `xml:"summary"`
	Updated   string     `xml:"updated"`
	Published string     `xml:"published"`
	Links     []atomLink `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// Fetch retrieves and parses the feed, returning alerts newest-first.
// Non-200 responses and network failures are retried with linear backoff;
// the final error is returned so callers can skip the run cleanly.
func (c *Client) Fetch(ctx context.Context, area string) ([]alert.Alert, error) {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(2*attempt) * time.Second)
		}

		alerts, err := c.fetchOnce(ctx, area)
		if err == nil {
			return alerts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("fetch feed: %w", lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, area string) ([]alert.Alert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse atom: %w", err)
	}

	alerts := make([]alert.Alert, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		a := alert.Alert{
			GUID:      entryGUID(e),
			Title:     RewriteTitle(strings.TrimSpace(e.Title), c.forecastRegion, area),
			Summary:   strings.TrimSpace(e.Summary),
			Link:      pickLink(e.Links),
			Updated:   parseAtomTime(e.Updated),
			Published: parseAtomTime(e.Published),
			Area:      area,
		}
		if a.GUID == "" {
			continue
		}
		if a.Updated.IsZero() {
			a.Updated = a.Published
		}
		alerts = append(alerts, a)
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].Updated.After(alerts[j].Updated)
	})
	return alerts, nil
}

func entryGUID(e atomEntry) string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return id
	}
	if link := pickLink(e.Links); link != "" {
		return link
	}
	return strings.TrimSpace(e.Title)
}

func pickLink(links []atomLink) string {
	for _, l := range links {
		if l.Type == "text/html" && l.Href != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	for _, l := range links {
		if l.Href != "" {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

func parseAtomTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// RewriteTitle replaces the forecast-region wording with the public display
// area name used in outgoing posts.
func RewriteTitle(title, forecastRegion, displayArea string) string {
	if title == "" || forecastRegion == "" {
		return title
	}
	t := strings.ReplaceAll(title, ", "+forecastRegion, " ("+displayArea+")")
	return strings.ReplaceAll(t, forecastRegion, displayArea)
}
