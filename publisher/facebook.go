package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v24.0"

// FacebookPlatform posts to a Facebook Page feed with a page access token.
type FacebookPlatform struct {
	httpClient *http.Client
	baseURL    string
	pageID     string
	pageToken  string
}

// FBOption configures a FacebookPlatform.
type FBOption func(*FacebookPlatform)

// WithFBBaseURL sets a custom Graph API base URL (for testing).
func WithFBBaseURL(u string) FBOption {
	return func(p *FacebookPlatform) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// NewFacebookPlatform creates the Facebook Page platform client.
func NewFacebookPlatform(pageID, pageToken string, opts ...FBOption) *FacebookPlatform {
	p := &FacebookPlatform{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultGraphBaseURL,
		pageID:     pageID,
		pageToken:  pageToken,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Platform.
func (p *FacebookPlatform) Name() string { return "facebook" }

// Publish implements Platform.
func (p *FacebookPlatform) Publish(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("message", text)
	form.Set("access_token", p.pageToken)

	endpoint := fmt.Sprintf("%s/%s/feed", p.baseURL, p.pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create fb request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to fb page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("facebook post failed: status %d", resp.StatusCode)
	}
	return nil
}
