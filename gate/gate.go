// Package gate implements the human-in-the-loop approval state machine: a
// token moves from pending to a terminal approved or denied decision through
// Telegram actions, TTL expiry or a wait-loop timeout. The gate itself is
// stateless between invocations; everything it remembers lives in the
// durable state document.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tay-weather-bot/alert"
	"tay-weather-bot/state"
	"tay-weather-bot/telegram"
)

// Channel is the narrow messaging surface the gate needs. Implemented by
// *telegram.Client; tests substitute a fake.
type Channel interface {
	SendText(ctx context.Context, text string) (telegram.MessageRef, error)
	SendControls(ctx context.Context, text, token string) (telegram.MessageRef, error)
	SendMediaGroup(ctx context.Context, imageURLs []string, caption string) error
	EditMessageText(ctx context.Context, ref telegram.MessageRef, text string) error
	ClearButtons(ctx context.Context, ref telegram.MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string)
	Updates(ctx context.Context, offset int64) ([]telegram.Event, error)
	ChatMatches(chatID int64) bool
}

// Gate runs the approval workflow over a channel and a state repository.
type Gate struct {
	repo         state.Repository
	ch           Channel
	ttl          time.Duration
	remindLead   time.Duration
	allowedUsers map[int64]bool

	now   func() time.Time
	sleep func(time.Duration)
}

// Option configures a Gate.
type Option func(*Gate)

// WithAllowedUsers restricts actions to the given Telegram user ids. An
// empty list allows everyone.
func WithAllowedUsers(ids []int64) Option {
	return func(g *Gate) {
		if len(ids) == 0 {
			return
		}
		g.allowedUsers = make(map[int64]bool, len(ids))
		for _, id := range ids {
			g.allowedUsers[id] = true
		}
	}
}

// WithRemindLead sets how long before expiry the single reminder fires.
func WithRemindLead(d time.Duration) Option {
	return func(g *Gate) {
		g.remindLead = d
	}
}

// WithClock overrides the clock and sleep functions (for testing).
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(g *Gate) {
		g.now = now
		g.sleep = sleep
	}
}

// New creates a gate with the given approval TTL.
func New(repo state.Repository, ch Channel, ttl time.Duration, opts ...Option) *Gate {
	g := &Gate{
		repo:       repo,
		ch:         ch,
		ttl:        ttl,
		remindLead: 5 * time.Minute,
		now:        time.Now,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsurePreview sends the preview and its action controls exactly once per
// token. Calls for a token that is already pending or decided are no-ops. A
// failed preview send leaves no pending record, so the token is retried on a
// later invocation.
func (g *Gate) EnsurePreview(ctx context.Context, st *state.GateState, token, previewText, kind string, imageURLs []string) error {
	if !alert.TokenPattern.MatchString(token) {
		return fmt.Errorf("invalid token format: %q", token)
	}
	if _, pending := st.PendingApprovals[token]; pending {
		return nil
	}
	if _, decided := st.ApprovalDecisions[token]; decided {
		return nil
	}

	if err := g.sendPreviewPayload(ctx, previewText, imageURLs); err != nil {
		return fmt.Errorf("send preview: %w", err)
	}

	ref, err := g.ch.SendControls(ctx, fmt.Sprintf("TOKEN: %s\nSelect an action:", token), token)
	if err != nil {
		return fmt.Errorf("send controls: %w", err)
	}

	now := g.now().UTC()
	st.PendingApprovals[token] = state.PendingApproval{
		CreatedAt:         now,
		PreviewText:       previewText,
		Kind:              kind,
		ButtonsChatID:     ref.ChatID,
		ButtonsMessageID:  ref.MessageID,
		LastPreviewSentAt: now,
	}
	return g.repo.Save(ctx, st)
}

// UpdatePreview re-sends the preview for a still-pending token after a remix
// or custom-text change. The control message and its token stay the same.
func (g *Gate) UpdatePreview(ctx context.Context, st *state.GateState, token, newPreviewText string, imageURLs []string) error {
	if !alert.TokenPattern.MatchString(token) {
		return nil
	}
	rec, ok := st.PendingApprovals[token]
	if !ok {
		return nil
	}

	if err := g.sendPreviewPayload(ctx, newPreviewText, imageURLs); err != nil {
		return fmt.Errorf("send updated preview: %w", err)
	}

	rec.PreviewText = newPreviewText
	rec.LastPreviewSentAt = g.now().UTC()
	st.PendingApprovals[token] = rec
	return g.repo.Save(ctx, st)
}

func (g *Gate) sendPreviewPayload(ctx context.Context, previewText string, imageURLs []string) error {
	if len(imageURLs) > 0 {
		err := g.ch.SendMediaGroup(ctx, imageURLs, previewText+"\n\nUse buttons below to manage.")
		if err == nil {
			return nil
		}
		slog.Warn("media preview failed, falling back to text", "error", err)
	}
	_, err := g.ch.SendText(ctx, previewText)
	return err
}

// DecisionFor returns the terminal decision for a token, or "" when none is
// recorded.
func (g *Gate) DecisionFor(st *state.GateState, token string) string {
	rec, ok := st.ApprovalDecisions[token]
	if !ok {
		return ""
	}
	switch rec.Decision {
	case state.DecisionApproved, state.DecisionDenied:
		return rec.Decision
	}
	return ""
}

// IsPending reports whether a token awaits a decision.
func (g *Gate) IsPending(st *state.GateState, token string) bool {
	_, ok := st.PendingApprovals[token]
	return ok
}

// IsExpired reports whether a pending token is older than the gate TTL.
// Missing records or zero timestamps read as not expired.
func (g *Gate) IsExpired(st *state.GateState, token string) bool {
	if !alert.TokenPattern.MatchString(token) {
		return false
	}
	rec, ok := st.PendingApprovals[token]
	if !ok || rec.CreatedAt.IsZero() {
		return false
	}
	return g.now().Sub(rec.CreatedAt) >= g.ttl
}

// RemixCountFor returns how many alternate renderings the approver asked for.
func (g *Gate) RemixCountFor(st *state.GateState, token string) int {
	return st.RemixCounts[token]
}

// CustomTextFor returns captured per-platform custom text for a token.
func (g *Gate) CustomTextFor(st *state.GateState, token string) state.CustomText {
	return st.CustomTexts[token]
}

// MarkDenied records a terminal denied decision for a token unless one is
// already recorded, and removes the pending record either way.
func (g *Gate) MarkDenied(st *state.GateState, token, reason string) {
	if _, decided := st.ApprovalDecisions[token]; !decided {
		st.ApprovalDecisions[token] = state.Decision{
			Decision:  state.DecisionDenied,
			DecidedAt: g.now().UTC(),
			Reason:    reason,
		}
	}
	delete(st.PendingApprovals, token)
}

// finalize edits the control message to show the outcome and strips its
// buttons. Channel failures here are logged and swallowed: the decision is
// already durable.
func (g *Gate) finalize(ctx context.Context, st *state.GateState, token, line string) {
	rec, ok := st.PendingApprovals[token]
	if !ok || rec.ButtonsMessageID == 0 {
		return
	}
	ref := telegram.MessageRef{ChatID: rec.ButtonsChatID, MessageID: rec.ButtonsMessageID}

	if err := g.ch.EditMessageText(ctx, ref, fmt.Sprintf("TOKEN: %s\n%s", token, line)); err != nil {
		slog.Warn("finalize edit failed", "token", token, "error", err)
	}
	if err := g.ch.ClearButtons(ctx, ref); err != nil {
		slog.Warn("finalize clear buttons failed", "token", token, "error", err)
	}
}
