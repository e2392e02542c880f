package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tay-weather-bot/alert"
	"tay-weather-bot/compose"
	"tay-weather-bot/state"
	"tay-weather-bot/telegram"
)

// Ingest pulls all channel events strictly after the stored cursor and folds
// each into the state. The cursor advances to the highest update id seen even
// when an event matches nothing, so no event is ever reprocessed. Terminal
// decisions are guarded: a second approve or deny for the same token is
// acknowledged but not re-written.
func (g *Gate) Ingest(ctx context.Context, st *state.GateState) (bool, error) {
	events, err := g.ch.Updates(ctx, st.LastUpdateID)
	if err != nil {
		return false, fmt.Errorf("ingest actions: %w", err)
	}

	changed := false
	for _, ev := range events {
		if ev.UpdateID > st.LastUpdateID {
			st.LastUpdateID = ev.UpdateID
			changed = true
		}

		if ev.Callback != nil {
			if g.handleCallback(ctx, st, ev.Callback) {
				changed = true
			}
			continue
		}
		if ev.Message != nil {
			if g.handleChatMessage(ctx, st, ev.Message) {
				changed = true
			}
		}
	}

	if changed {
		if err := g.repo.Save(ctx, st); err != nil {
			return changed, fmt.Errorf("save after ingest: %w", err)
		}
	}
	return changed, nil
}

func (g *Gate) handleCallback(ctx context.Context, st *state.GateState, cb *telegram.CallbackEvent) bool {
	if cb.ChatID != 0 && !g.ch.ChatMatches(cb.ChatID) {
		g.ch.AnswerCallback(ctx, cb.ID, "Wrong chat.")
		return false
	}
	if !g.userAllowed(cb.FromUserID) {
		g.ch.AnswerCallback(ctx, cb.ID, "Not authorised.")
		return false
	}

	verb, token, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return false
	}
	verb = strings.ToLower(strings.TrimSpace(verb))
	token = strings.TrimSpace(token)
	if !alert.TokenPattern.MatchString(token) {
		g.ch.AnswerCallback(ctx, cb.ID, "Invalid token.")
		return false
	}

	switch verb {
	case "go":
		return g.recordDecision(ctx, st, cb.ID, token, state.DecisionApproved)
	case "no":
		return g.recordDecision(ctx, st, cb.ID, token, state.DecisionDenied)
	case "remix":
		st.RemixCounts[token] = st.RemixCounts[token] + 1
		g.ch.AnswerCallback(ctx, cb.ID, "Remixing 🔁")
		g.notify(ctx, "🔁 Remix requested. A new preview will follow.")
		return true
	case "custom":
		st.CustomPending = &state.CustomSession{
			Token:     token,
			Mode:      "x",
			CreatedAt: g.now().UTC(),
		}
		g.ch.AnswerCallback(ctx, cb.ID, "Custom text mode ✏️")
		g.notify(ctx, "✏️ Custom Text:\nSend the text for the X post.\n\nCommands:\n  /skip  (skip X, enter FB)\n  /done  (cancel)")
		return true
	}
	return false
}

// recordDecision writes a terminal decision unless one already exists. The
// pre-write terminal check, not the cursor, is what prevents a double-write
// from two rapid clicks carrying the same token.
func (g *Gate) recordDecision(ctx context.Context, st *state.GateState, callbackID, token, decision string) bool {
	if existing := g.DecisionFor(st, token); existing != "" {
		g.ch.AnswerCallback(ctx, callbackID, "Already decided.")
		delete(st.PendingApprovals, token)
		return true
	}

	st.ApprovalDecisions[token] = state.Decision{
		Decision:  decision,
		DecidedAt: g.now().UTC(),
	}

	if decision == state.DecisionApproved {
		g.ch.AnswerCallback(ctx, callbackID, "Approved ✅")
		g.finalize(ctx, st, token, "✅ Approved — will post.")
	} else {
		g.ch.AnswerCallback(ctx, callbackID, "Denied 🛑")
		g.finalize(ctx, st, token, "🛑 Denied — will NOT post.")
	}

	delete(st.PendingApprovals, token)
	return true
}

func (g *Gate) handleChatMessage(ctx context.Context, st *state.GateState, msg *telegram.MessageEvent) bool {
	if msg.Text == "" {
		return false
	}
	if msg.ChatID != 0 && !g.ch.ChatMatches(msg.ChatID) {
		return false
	}
	if !g.userAllowed(msg.FromUserID) {
		return false
	}

	session := st.CustomPending
	if session == nil {
		return false
	}

	token := strings.TrimSpace(session.Token)
	if !alert.TokenPattern.MatchString(token) {
		st.CustomPending = nil
		return true
	}

	text := msg.Text
	mode := strings.ToLower(strings.TrimSpace(session.Mode))
	if mode == "" {
		mode = "x"
	}

	switch {
	case strings.EqualFold(text, "/done"):
		st.CustomPending = nil
		g.notify(ctx, "✅ Custom text cancelled.")
		return true

	case strings.EqualFold(text, "/skip") && mode == "x":
		session.Mode = "fb"
		st.CustomPending = session
		g.notify(ctx, "Skipped X. Please send the Facebook custom text (or /done):")
		return true

	case strings.EqualFold(text, "/skip") && mode == "fb":
		st.CustomPending = nil
		g.notify(ctx, "✅ Facebook left as default. A new preview will follow.")
		return true
	}

	capture := st.CustomTexts[token]

	switch mode {
	case "x":
		if !compose.ValidXLength(text) {
			g.notify(ctx, fmt.Sprintf("⚠️ Too long for X (%d/%d). Try again, or /skip:", len([]rune(text)), compose.MaxXLen))
			return true
		}
		capture.X = &text
		st.CustomTexts[token] = capture
		session.Mode = "fb"
		st.CustomPending = session
		g.notify(ctx, "✅ X text saved. Now send Facebook text (or /skip to keep default, /done to cancel):")
		return true

	case "fb":
		capture.FB = &text
		st.CustomTexts[token] = capture
		st.CustomPending = nil
		g.notify(ctx, "✅ Facebook text saved. A new preview will follow.")
		return true
	}
	return false
}

func (g *Gate) userAllowed(userID int64) bool {
	if g.allowedUsers == nil {
		return true
	}
	return g.allowedUsers[userID]
}

// notify sends an informational message, swallowing channel errors.
func (g *Gate) notify(ctx context.Context, text string) {
	if _, err := g.ch.SendText(ctx, text); err != nil {
		slog.Warn("notify failed", "error", err)
	}
}
