package gate

import (
	"context"
	"log/slog"
	"time"

	"tay-weather-bot/alert"
	"tay-weather-bot/state"
)

// WaitForDecision blocks until a token reaches a terminal decision, its TTL
// elapses, or maxWait is spent. It reloads state from the repository every
// iteration so decisions recorded by another ingest pass are observed, and
// ingests new channel actions itself once per poll.
//
// Two deadlines apply. The hard deadline comes from the token's own TTL:
// crossing it force-writes a denied/expired decision. The soft deadline is
// the caller's maxWait: crossing it returns denied without touching state,
// leaving the token pending for a future invocation to keep waiting. A
// pending record that vanishes without a visible decision reads as denied.
func (g *Gate) WaitForDecision(ctx context.Context, token string, maxWait, pollInterval time.Duration) string {
	if !alert.TokenPattern.MatchString(token) {
		return state.DecisionDenied
	}
	if pollInterval < time.Second {
		pollInterval = time.Second
	}

	st, err := g.repo.Load(ctx)
	if err != nil {
		slog.Warn("wait: state load failed", "error", err)
		return state.DecisionDenied
	}

	rec, pending := st.PendingApprovals[token]
	if !pending {
		if d := g.DecisionFor(st, token); d != "" {
			return d
		}
		return state.DecisionDenied
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = g.now().UTC()
	}
	hardDeadline := createdAt.Add(g.ttl)
	softDeadline := g.now().Add(maxWait)

	for {
		if ctx.Err() != nil {
			return state.DecisionDenied
		}

		if _, err := g.Ingest(ctx, st); err != nil {
			slog.Warn("wait: ingest failed", "error", err)
		}

		st, err = g.repo.Load(ctx)
		if err != nil {
			slog.Warn("wait: state reload failed", "error", err)
			return state.DecisionDenied
		}

		if d := g.DecisionFor(st, token); d != "" {
			return d
		}

		if _, pending := st.PendingApprovals[token]; !pending {
			// Raced with a finalize elsewhere; fail closed.
			if d := g.DecisionFor(st, token); d != "" {
				return d
			}
			return state.DecisionDenied
		}

		now := g.now()

		if !now.Before(hardDeadline) {
			g.finalize(ctx, st, token, "⏳ Expired — will NOT post.")
			g.MarkDenied(st, token, "expired")
			if err := g.repo.Save(ctx, st); err != nil {
				slog.Warn("wait: save after expiry failed", "error", err)
			}
			return state.DecisionDenied
		}

		if !now.Before(softDeadline) {
			return state.DecisionDenied
		}

		g.sleep(pollInterval)
	}
}
