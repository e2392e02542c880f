package gate

import (
	"context"
	"fmt"
	"log/slog"

	"tay-weather-bot/state"
)

// SendReminders walks pending tokens, expiring overdue ones to denied and
// sending a single reminder per token once it is within the remind lead
// window of its TTL. Safe to call on every tick.
func (g *Gate) SendReminders(ctx context.Context, st *state.GateState) (bool, error) {
	now := g.now().UTC()
	changed := false

	for token, rec := range st.PendingApprovals {
		if rec.CreatedAt.IsZero() {
			continue
		}

		hardDeadline := rec.CreatedAt.Add(g.ttl)
		remindAt := hardDeadline.Add(-g.remindLead)

		if !now.Before(hardDeadline) {
			g.finalize(ctx, st, token, "⏳ Expired — will NOT post.")
			g.MarkDenied(st, token, "expired")
			changed = true
			continue
		}

		if now.Before(remindAt) {
			continue
		}
		if _, sent := st.LastReminderAt[token]; sent {
			continue
		}

		if _, err := g.ch.SendText(ctx, fmt.Sprintf("⏳ Approval pending for TOKEN: %s\nReminder: please Approve or Deny before expiry.", token)); err != nil {
			slog.Warn("reminder send failed", "token", token, "error", err)
			continue
		}
		st.LastReminderAt[token] = now
		changed = true
	}

	if changed {
		if err := g.repo.Save(ctx, st); err != nil {
			return changed, fmt.Errorf("save after reminders: %w", err)
		}
	}
	return changed, nil
}
