package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultXBaseURL = "https://api.x.com"

// XPlatform posts to X using the OAuth 2.0 refresh-token flow. Each publish
// mints a short-lived access token; when X rotates the refresh token the new
// value is written to a side file so the deployment can update its secret.
type XPlatform struct {
	httpClient       *http.Client
	baseURL          string
	clientID         string
	clientSecret     string
	refreshToken     string
	rotatedTokenPath string
	userAgent        string
}

// XOption configures an XPlatform.
type XOption func(*XPlatform)

// WithXBaseURL sets a custom API base URL (for testing).
func WithXBaseURL(u string) XOption {
	return func(p *XPlatform) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithXRotatedTokenPath sets where a rotated refresh token is written.
func WithXRotatedTokenPath(path string) XOption {
	return func(p *XPlatform) {
		p.rotatedTokenPath = path
	}
}

// NewXPlatform creates the X platform client.
func NewXPlatform(clientID, clientSecret, refreshToken string, opts ...XOption) *XPlatform {
	p := &XPlatform{
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		baseURL:          defaultXBaseURL,
		clientID:         clientID,
		clientSecret:     clientSecret,
		refreshToken:     refreshToken,
		rotatedTokenPath: "x_refresh_token_rotated.txt",
		userAgent:        "tay-weather-rss-bot/1.0",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Platform.
func (p *XPlatform) Name() string { return "x" }

// Publish implements Platform. A duplicate-content rejection maps to
// ErrDuplicate.
func (p *XPlatform) Publish(ctx context.Context, text string) error {
	accessToken, err := p.refreshAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("x token refresh: %w", err)
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tweet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(string(respBody)), "duplicate") {
			return ErrDuplicate
		}
		return fmt.Errorf("x post failed: status %d", resp.StatusCode)
	}
	return nil
}

func (p *XPlatform) refreshAccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", p.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/2/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh failed: status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("no access_token in refresh response")
	}

	if payload.RefreshToken != "" && payload.RefreshToken != p.refreshToken {
		p.refreshToken = payload.RefreshToken
		p.writeRotatedToken(payload.RefreshToken)
	}
	return payload.AccessToken, nil
}

func (p *XPlatform) writeRotatedToken(token string) {
	if p.rotatedTokenPath == "" {
		return
	}
	_ = os.WriteFile(p.rotatedTokenPath, []byte(token), 0o600)
}
