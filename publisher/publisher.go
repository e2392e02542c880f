// Package publisher dispatches approved posts to each enabled platform
// independently and records the consolidated outcome.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tay-weather-bot/alert"
	"tay-weather-bot/cooldown"
	"tay-weather-bot/state"
	"tay-weather-bot/telegram"
)

// ErrDuplicate is returned by a platform that rejected the post as duplicate
// content. The content already landed through some other path, so it counts
// as a success.
var ErrDuplicate = errors.New("duplicate content rejected by platform")

// Platform delivers one post to one social network.
type Platform interface {
	Name() string
	Publish(ctx context.Context, text string) error
}

// Result is one platform's outcome.
type Result struct {
	Platform  string
	OK        bool
	Duplicate bool
	Err       error
}

// Request identifies what to publish where.
type Request struct {
	GUID     string
	GroupKey string
	// Texts maps platform name to the exact text to post there.
	Texts map[string]string
}

// summarySender is the minimal channel surface for outcome reports.
// Satisfied by *telegram.Client.
type summarySender interface {
	SendText(ctx context.Context, text string) (telegram.MessageRef, error)
}

// Orchestrator runs the per-platform fan-out and closes the dedupe loop on
// success.
type Orchestrator struct {
	platforms []Platform
	engine    *cooldown.Engine
	repo      state.Repository
	summary   summarySender
}

// New creates an orchestrator. summary may be nil when no outcome report is
// wanted.
func New(platforms []Platform, engine *cooldown.Engine, repo state.Repository, summary summarySender) *Orchestrator {
	return &Orchestrator{
		platforms: platforms,
		engine:    engine,
		repo:      repo,
		summary:   summary,
	}
}

// Publish attempts delivery to every platform that has text in the request.
// Platform failures are isolated: one platform raising never stops its
// siblings. If at least one platform accepted, the alert is marked published
// (dedupe-safe) and a per-platform summary goes back through the channel. If
// none accepted, state is left untouched so the next scheduled run retries.
func (o *Orchestrator) Publish(ctx context.Context, st *state.GateState, req Request) ([]Result, error) {
	var results []Result
	anyOK := false

	for _, p := range o.platforms {
		text, ok := req.Texts[p.Name()]
		if !ok || text == "" {
			continue
		}

		res := Result{Platform: p.Name()}
		err := p.Publish(ctx, text)
		switch {
		case err == nil:
			res.OK = true
		case errors.Is(err, ErrDuplicate):
			res.OK = true
			res.Duplicate = true
			slog.Info("platform reported duplicate, treating as posted", "platform", p.Name())
		default:
			res.Err = err
			slog.Warn("platform publish failed", "platform", p.Name(), "error", err)
		}
		if res.OK {
			anyOK = true
		}
		results = append(results, res)
	}

	if !anyOK {
		return results, nil
	}

	// First successful text drives the cooldown timers; every successful
	// text's hash enters the dedupe set.
	marked := false
	for _, res := range results {
		if !res.OK {
			continue
		}
		text := req.Texts[res.Platform]
		if !marked {
			o.engine.MarkPublished(st, req.GUID, req.GroupKey, text)
			marked = true
		} else {
			st.MarkPostedTextHash(alert.TextHash(text))
		}
	}

	// The token's custom capture has served its purpose once the post lands.
	st.ClearCustomText(alert.Token(req.GUID))

	o.reportSummary(ctx, results)

	if err := o.repo.Save(ctx, st); err != nil {
		return results, fmt.Errorf("save after publish: %w", err)
	}
	return results, nil
}

func (o *Orchestrator) reportSummary(ctx context.Context, results []Result) {
	if o.summary == nil || len(results) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString("Publish results:\n")
	for _, res := range results {
		switch {
		case res.Duplicate:
			sb.WriteString(fmt.Sprintf("✅ %s (already posted)\n", res.Platform))
		case res.OK:
			sb.WriteString(fmt.Sprintf("✅ %s\n", res.Platform))
		default:
			sb.WriteString(fmt.Sprintf("❌ %s: %v\n", res.Platform, res.Err))
		}
	}

	if _, err := o.summary.SendText(ctx, strings.TrimRight(sb.String(), "\n")); err != nil {
		slog.Warn("outcome summary send failed", "error", err)
	}
}
