// Package cooldown decides whether an alert may be published at all: dedupe
// on identity and content, a global spacing timer and per-group
// re-announcement intervals.
package cooldown

import (
	"fmt"
	"time"

	"tay-weather-bot/alert"
	"tay-weather-bot/state"
)

// Policy supplies the interval table. Satisfied by *config.Config.
type Policy interface {
	CooldownFor(kind string) int
}

// Engine evaluates publish eligibility against the gate state.
type Engine struct {
	policy        Policy
	globalMinutes int
	now           func() time.Time
}

// New creates an engine. globalMinutes is the minimum spacing between any
// two posts regardless of group.
func New(policy Policy, globalMinutes int) *Engine {
	return &Engine{
		policy:        policy,
		globalMinutes: globalMinutes,
		now:           time.Now,
	}
}

// WithNow overrides the clock (for testing).
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// MayPublish reports whether the alert identified by guid may be published
// with the given rendered text. The checks are ordered: permanent dedupe
// first, then the content hash, then the global timer, then the per-group
// interval for the severity kind.
func (e *Engine) MayPublish(st *state.GateState, guid, groupKey, kind, text string) (bool, string) {
	if st.HasPosted(guid) {
		return false, "already posted"
	}
	if text != "" && st.HasPostedTextHash(alert.TextHash(text)) {
		return false, "duplicate text hash already posted"
	}

	now := e.now().Unix()

	if st.GlobalLastPostTS > 0 && now-st.GlobalLastPostTS < int64(e.globalMinutes)*60 {
		return false, fmt.Sprintf("global cooldown active (%dm)", e.globalMinutes)
	}

	mins := e.policy.CooldownFor(kind)
	if last, ok := st.Cooldowns[groupKey]; ok && last > 0 && now-last < int64(mins)*60 {
		return false, fmt.Sprintf("cooldown active for group (%dm)", mins)
	}

	return true, "OK"
}

// MarkPublished records a confirmed publish: the group and global timers are
// set to now and the identity and content hash enter the dedupe sets. Must
// only be called after the orchestrator reports at least one platform
// success.
func (e *Engine) MarkPublished(st *state.GateState, guid, groupKey, text string) {
	now := e.now().Unix()
	st.Cooldowns[groupKey] = now
	st.GlobalLastPostTS = now
	st.MarkPosted(guid)
	if text != "" {
		st.MarkPostedTextHash(alert.TextHash(text))
	}
}
