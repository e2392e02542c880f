// Package alert holds the alert model plus the identity, classification and
// hashing rules shared by the dedupe engine and the approval gate.
package alert

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// Alert is one entry from the upstream alert feed.
type Alert struct {
	GUID      string
	Title     string
	Link      string
	Summary   string
	Updated   time.Time
	Published time.Time
	Area      string
}

// TokenPattern is the accepted approval-token format. Callback data and
// chat-supplied tokens are rejected unless they match.
var TokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

var spaceRe = regexp.MustCompile(`\s+`)

// Normalize lowercases, unifies dashes and collapses whitespace so area and
// kind strings compare stably across feed churn.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.ReplaceAll(s, "—", "-")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Token derives the short stable approval token for an alert identity.
func Token(guid string) string {
	sum := sha1.Sum([]byte(guid))
	return hex.EncodeToString(sum[:])[:12]
}

// GroupKey identifies the cooldown bucket for an (area, kind) pair.
func GroupKey(area, kind string) string {
	raw := Normalize(area) + "|" + kind
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TextHash is the content hash of the exact outgoing text, used to suppress
// re-announcements whose identity changed but whose text did not.
func TextHash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Kind classifies an alert into a severity kind used for cooldown and
// approval policy. All-clear detection runs first: a cancelled or ended
// alert cools down and publishes on its own schedule.
func (a *Alert) Kind() string {
	if a.IsAllClear() {
		return "allclear"
	}
	title := Normalize(a.Title)
	summary := Normalize(a.Summary)

	switch {
	case strings.Contains(title, "special weather statement") || strings.Contains(summary, "special weather statement"):
		return "statement"
	case strings.Contains(title, "warning"):
		return "warning"
	case strings.Contains(title, "watch"):
		return "watch"
	case strings.Contains(title, "advisory"):
		return "advisory"
	default:
		return "alert"
	}
}

// IsAllClear reports whether the alert announces the end of a condition.
func (a *Alert) IsAllClear() bool {
	title := Normalize(a.Title)
	summary := Normalize(a.Summary)

	if strings.Contains(title, "has ended") || strings.Contains(title, " ended") {
		return true
	}
	if strings.Contains(summary, "has ended") {
		return true
	}
	if strings.Contains(title, "cancel") {
		return true
	}
	return false
}

// Token returns the approval token for this alert.
func (a *Alert) Token() string {
	return Token(a.GUID)
}

// GroupKey returns the cooldown bucket key for this alert.
func (a *Alert) GroupKey() string {
	return GroupKey(a.Area, a.Kind())
}
