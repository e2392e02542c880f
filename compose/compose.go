// Package compose renders per-platform social text and the Telegram preview
// for an alert.
package compose

import (
	"fmt"
	"strings"

	"tay-weather-bot/alert"
)

// MaxXLen is the hard character limit for an X post.
const MaxXLen = 280

// Composer builds social text from alerts.
type Composer struct {
	moreInfoURL string
	displayArea string
}

// New creates a Composer.
func New(moreInfoURL, displayArea string) *Composer {
	return &Composer{moreInfoURL: moreInfoURL, displayArea: displayArea}
}

// Texts holds the final per-platform post text.
type Texts struct {
	X        string
	Facebook string
}

// variant template sets per kind; the remix counter indexes into these.
var alertVariants = []string{
	"⚠️ %s\n%s\nMore: %s\n#TayTownship #ONStorm",
	"⚠️ Heads up: %s\n%s\nDetails: %s\n#TayTownship",
	"%s — %s\nStay safe. More: %s\n#TayTownship #ONStorm",
}

var statementVariants = []string{
	"🌦️ %s\n%s\nMore: %s\n#TayTownship",
	"🌦️ Weather statement: %s\n%s\nDetails: %s\n#TayTownship",
}

var allClearVariants = []string{
	"✅ All clear: %s\nContinue to use caution as conditions may still be hazardous.\nDetails: %s\n#TayTownship",
	"✅ %s has ended.\nConditions may still be hazardous in places.\nDetails: %s\n#TayTownship",
}

// SocialText renders the post text for an alert, choosing an alternate
// rendering deterministically from the remix count.
func (c *Composer) SocialText(a *alert.Alert, remixCount int) string {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		title = "Weather alert"
	}
	summary := firstSentence(a.Summary, 120)
	if summary == "" {
		summary = "Take precautions and monitor conditions."
	}

	var text string
	switch a.Kind() {
	case "allclear":
		tpl := allClearVariants[remixCount%len(allClearVariants)]
		text = fmt.Sprintf(tpl, title, c.moreInfoURL)
	case "statement":
		tpl := statementVariants[remixCount%len(statementVariants)]
		text = fmt.Sprintf(tpl, title, summary, c.moreInfoURL)
	default:
		tpl := alertVariants[remixCount%len(alertVariants)]
		text = fmt.Sprintf(tpl, title, summary, c.moreInfoURL)
	}

	return ClampX(text)
}

// PlatformTexts renders the per-platform posts, applying any captured custom
// text. Custom text wins over templates; X custom text is clamped.
func (c *Composer) PlatformTexts(a *alert.Alert, remixCount int, customX, customFB *string) Texts {
	base := c.SocialText(a, remixCount)

	texts := Texts{X: base, Facebook: base}
	if customX != nil && strings.TrimSpace(*customX) != "" {
		texts.X = ClampX(strings.TrimSpace(*customX))
	}
	if customFB != nil && strings.TrimSpace(*customFB) != "" {
		texts.Facebook = strings.TrimSpace(*customFB)
	}
	return texts
}

// Preview builds the Telegram preview shown to the approver: the headline,
// the detail text and the exact posts that would go out.
func (c *Composer) Preview(a *alert.Alert, detail string, texts Texts) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("📋 %s (%s)\n", strings.TrimSpace(a.Title), c.displayArea))
	if summary := strings.TrimSpace(a.Summary); summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}
	if detail != "" {
		sb.WriteString("\n")
		sb.WriteString(detail)
		sb.WriteString("\n")
	}

	sb.WriteString("\n— X post —\n")
	sb.WriteString(texts.X)
	if texts.Facebook != texts.X {
		sb.WriteString("\n\n— Facebook post —\n")
		sb.WriteString(texts.Facebook)
	}
	return sb.String()
}

// ClampX truncates text to the X limit with a trailing ellipsis.
func ClampX(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxXLen {
		return text
	}
	return strings.TrimRight(string(runes[:MaxXLen-1]), " \n") + "…"
}

// ValidXLength reports whether text fits in an X post.
func ValidXLength(text string) bool {
	return len([]rune(text)) <= MaxXLen
}

func firstSentence(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.Index(s, sep); idx > 0 {
			s = s[:idx+1]
			break
		}
	}
	runes := []rune(s)
	if len(runes) > max {
		s = strings.TrimRight(string(runes[:max-1]), " ") + "…"
	}
	return s
}
