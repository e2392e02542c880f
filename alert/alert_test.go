package alert

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercase", "Midland - Coldwater", "midland - coldwater"},
		{"whitespace collapse", "  Tay   Township \n area ", "tay township area"},
		{"en dash", "Midland – Coldwater", "midland - coldwater"},
		{"em dash", "Midland — Coldwater", "midland - coldwater"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToken(t *testing.T) {
	tok := Token("tag:weather.gc.ca,2025:alert/12345")
	if len(tok) != 12 {
		t.Errorf("token length = %d, want 12", len(tok))
	}
	if !TokenPattern.MatchString(tok) {
		t.Errorf("token %q does not match the accepted pattern", tok)
	}

	// Stable across calls.
	if tok2 := Token("tag:weather.gc.ca,2025:alert/12345"); tok2 != tok {
		t.Errorf("token not stable: %q vs %q", tok, tok2)
	}

	// Distinct identities get distinct tokens.
	if other := Token("tag:weather.gc.ca,2025:alert/99999"); other == tok {
		t.Errorf("distinct identities produced the same token %q", tok)
	}
}

func TestGroupKey(t *testing.T) {
	k1 := GroupKey("Tay Township area", "warning")
	k2 := GroupKey("  TAY  Township area ", "warning")
	if k1 != k2 {
		t.Errorf("group key not normalization-stable: %q vs %q", k1, k2)
	}

	k3 := GroupKey("Tay Township area", "watch")
	if k1 == k3 {
		t.Error("different kinds produced the same group key")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"warning", "ORANGE WARNING - SNOW SQUALL, Midland", "warning"},
		{"watch", "Severe Thunderstorm Watch in effect", "watch"},
		{"advisory", "Fog Advisory issued", "advisory"},
		{"statement", "Special Weather Statement issued", "statement"},
		{"fallback", "Hazardous conditions expected", "alert"},
		{"ended wins over warning", "Snow squall warning has ended", "allclear"},
		{"cancelled", "CANCELLED - Freezing rain warning", "allclear"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Alert{Title: tt.title}
			if got := a.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAllClear(t *testing.T) {
	a := &Alert{Title: "Snow squall warning", Summary: "The snow squall warning has ended for the area."}
	if !a.IsAllClear() {
		t.Error("ended summary should read as all clear")
	}

	b := &Alert{Title: "Snow squall warning", Summary: "Heavy squalls continuing."}
	if b.IsAllClear() {
		t.Error("active alert should not read as all clear")
	}
}

func TestTextHash(t *testing.T) {
	h1 := TextHash("⚠️ Snow squall warning for Tay")
	h2 := TextHash("⚠️ Snow squall warning for Tay")
	if h1 != h2 {
		t.Error("text hash not stable")
	}
	if h3 := TextHash("different"); h3 == h1 {
		t.Error("distinct texts hashed identically")
	}
	if strings.ContainsAny(h1, " \n") {
		t.Errorf("hash %q contains whitespace", h1)
	}
}
