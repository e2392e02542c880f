package cooldown

import (
	"strings"
	"testing"
	"time"

	"tay-weather-bot/alert"
	"tay-weather-bot/state"
)

type fixedPolicy map[string]int

func (p fixedPolicy) CooldownFor(kind string) int {
	if m, ok := p[kind]; ok {
		return m
	}
	return 180
}

func testEngine(globalMinutes int, at time.Time) *Engine {
	p := fixedPolicy{"warning": 60, "watch": 120, "allclear": 60}
	return New(p, globalMinutes).WithNow(func() time.Time { return at })
}

func TestMayPublishFreshState(t *testing.T) {
	e := testEngine(5, time.Now())
	st := state.New()

	ok, reason := e.MayPublish(st, "guid-1", "group-1", "warning", "text")
	if !ok {
		t.Fatalf("fresh state should allow publish, got %q", reason)
	}
	if reason != "OK" {
		t.Errorf("reason = %q, want OK", reason)
	}
}

func TestMayPublishPostedGUIDAlwaysBlocks(t *testing.T) {
	st := state.New()
	st.MarkPosted("guid-1")

	// No elapsed time ever clears identity dedupe.
	for _, offset := range []time.Duration{0, time.Hour, 24 * time.Hour, 30 * 24 * time.Hour} {
		e := testEngine(5, time.Now().Add(offset))
		ok, reason := e.MayPublish(st, "guid-1", "group-1", "warning", "text")
		if ok {
			t.Fatalf("posted guid allowed again after %v", offset)
		}
		if reason != "already posted" {
			t.Errorf("reason = %q, want %q", reason, "already posted")
		}
	}
}

func TestMayPublishDuplicateTextBlocks(t *testing.T) {
	st := state.New()
	text := "⚠️ Snow squall warning for Tay Township"
	st.MarkPostedTextHash(alert.TextHash(text))

	e := testEngine(5, time.Now())
	ok, reason := e.MayPublish(st, "other-guid", "group-1", "warning", text)
	if ok {
		t.Fatal("identical text under a new identity should be blocked")
	}
	if !strings.Contains(reason, "duplicate text hash") {
		t.Errorf("reason = %q", reason)
	}

	// Different text under the new identity is fine.
	if ok, _ := e.MayPublish(st, "other-guid", "group-1", "warning", "different text"); !ok {
		t.Error("different text should pass the content check")
	}
}

func TestMayPublishGlobalCooldown(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	st := state.New()
	st.GlobalLastPostTS = base.Unix()

	e := testEngine(5, base.Add(3*time.Minute))
	ok, reason := e.MayPublish(st, "guid-2", "group-2", "warning", "text")
	if ok {
		t.Fatal("publish inside the global window should be blocked")
	}
	if !strings.Contains(reason, "global cooldown") {
		t.Errorf("reason = %q", reason)
	}

	e = testEngine(5, base.Add(6*time.Minute))
	if ok, reason := e.MayPublish(st, "guid-2", "group-2", "warning", "text"); !ok {
		t.Errorf("publish after the global window should pass, got %q", reason)
	}
}

func TestMayPublishGroupCooldown(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	group := alert.GroupKey("Tay Township area", "warning")

	st := state.New()
	e := testEngine(5, base)
	e.MarkPublished(st, "guid-1", group, "first text")

	// 30 minutes later: a different warning for the same area is blocked.
	e = testEngine(5, base.Add(30*time.Minute))
	ok, reason := e.MayPublish(st, "guid-2", group, "warning", "second text")
	if ok {
		t.Fatal("same group inside the 60m interval should be blocked")
	}
	if !strings.Contains(reason, "cooldown active for group") {
		t.Errorf("reason = %q", reason)
	}

	// 61 minutes later: the interval has elapsed.
	e = testEngine(5, base.Add(61*time.Minute))
	if ok, reason := e.MayPublish(st, "guid-2", group, "warning", "second text"); !ok {
		t.Errorf("same group after the interval should pass, got %q", reason)
	}

	// A different group is never held by this group's timer.
	other := alert.GroupKey("Midland - Coldwater", "warning")
	e = testEngine(5, base.Add(30*time.Minute))
	if ok, reason := e.MayPublish(st, "guid-3", other, "warning", "third text"); !ok {
		t.Errorf("unrelated group should pass, got %q", reason)
	}
}

func TestMayPublishUnknownKindUsesDefault(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	st := state.New()
	st.Cooldowns["group-x"] = base.Unix()

	e := testEngine(5, base.Add(170*time.Minute))
	if ok, _ := e.MayPublish(st, "guid-x", "group-x", "mystery", "text"); ok {
		t.Error("unknown kind should fall back to the default interval")
	}

	e = testEngine(5, base.Add(181*time.Minute))
	if ok, reason := e.MayPublish(st, "guid-x", "group-x", "mystery", "text"); !ok {
		t.Errorf("default interval elapsed, got %q", reason)
	}
}

func TestMarkPublished(t *testing.T) {
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	e := testEngine(5, at)
	st := state.New()

	e.MarkPublished(st, "guid-1", "group-1", "text")

	if !st.HasPosted("guid-1") {
		t.Error("guid should enter the posted set")
	}
	if !st.HasPostedTextHash(alert.TextHash("text")) {
		t.Error("text hash should enter the posted set")
	}
	if st.Cooldowns["group-1"] != at.Unix() {
		t.Errorf("group timer = %d, want %d", st.Cooldowns["group-1"], at.Unix())
	}
	if st.GlobalLastPostTS != at.Unix() {
		t.Errorf("global timer = %d, want %d", st.GlobalLastPostTS, at.Unix())
	}
}

func TestMarkPublishedEmptyTextSkipsHash(t *testing.T) {
	e := testEngine(5, time.Now())
	st := state.New()
	e.MarkPublished(st, "guid-1", "group-1", "")

	if len(st.PostedTextHashes) != 0 {
		t.Error("empty text should not produce a hash entry")
	}
}
