package state

import (
	"sort"
	"time"
)

const (
	maxSeenIDs     = 5000
	maxPostedGUIDs = 5000
	maxTextHashes  = 5000
	maxCooldowns   = 5000
	keepCooldowns  = 4000
)

// Decision values recorded for a token. Once written they are terminal.
const (
	DecisionApproved = "approved"
	DecisionDenied   = "denied"
)

// PendingApproval tracks a preview awaiting a human decision.
type PendingApproval struct {
	CreatedAt         time.Time `json:"created_at"`
	PreviewText       string    `json:"preview_text"`
	Kind              string    `json:"kind"`
	ButtonsChatID     string    `json:"buttons_chat_id"`
	ButtonsMessageID  int       `json:"buttons_message_id"`
	LastPreviewSentAt time.Time `json:"last_preview_sent_at"`
}

// Decision is a terminal approval outcome for a token.
type Decision struct {
	Decision  string    `json:"decision"`
	DecidedAt time.Time `json:"decided_at"`
	Reason    string    `json:"reason,omitempty"`
}

// CustomSession is the single in-flight custom-text capture. Mode cycles
// through the target platforms: "x" first, then "fb".
type CustomSession struct {
	Token     string    `json:"token"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomText holds captured per-platform override text. Nil means the
// platform keeps its default rendering.
type CustomText struct {
	X  *string `json:"x"`
	FB *string `json:"fb"`
}

// GateState is the whole cross-invocation memory of the bot: dedupe sets,
// cooldown timers, the approval gate records and the Telegram read cursor.
// One instance is loaded per run, mutated in place and saved back whole.
type GateState struct {
	SeenIDs          []string         `json:"seen_ids"`
	PostedGUIDs      []string         `json:"posted_guids"`
	PostedTextHashes []string         `json:"posted_text_hashes"`
	Cooldowns        map[string]int64 `json:"cooldowns"`
	GlobalLastPostTS int64            `json:"global_last_post_ts"`

	PendingApprovals  map[string]PendingApproval `json:"pending_approvals"`
	ApprovalDecisions map[string]Decision        `json:"approval_decisions"`

	LastUpdateID   int64                 `json:"telegram_last_update_id"`
	RemixCounts    map[string]int        `json:"telegram_remix_count"`
	CustomPending  *CustomSession        `json:"telegram_custom_pending"`
	CustomTexts    map[string]CustomText `json:"telegram_custom_text"`
	LastReminderAt map[string]time.Time  `json:"telegram_last_reminder_at"`
}

// New returns an empty state with all maps initialized.
func New() *GateState {
	st := &GateState{}
	st.Normalize()
	return st
}

// Normalize repairs missing fields so callers never see nil maps. Corrupt or
// partial documents are healed by defaulting rather than rejected.
func (st *GateState) Normalize() {
	if st.SeenIDs == nil {
		st.SeenIDs = []string{}
	}
	if st.PostedGUIDs == nil {
		st.PostedGUIDs = []string{}
	}
	if st.PostedTextHashes == nil {
		st.PostedTextHashes = []string{}
	}
	if st.Cooldowns == nil {
		st.Cooldowns = map[string]int64{}
	}
	if st.PendingApprovals == nil {
		st.PendingApprovals = map[string]PendingApproval{}
	}
	if st.ApprovalDecisions == nil {
		st.ApprovalDecisions = map[string]Decision{}
	}
	if st.RemixCounts == nil {
		st.RemixCounts = map[string]int{}
	}
	if st.CustomTexts == nil {
		st.CustomTexts = map[string]CustomText{}
	}
	if st.LastReminderAt == nil {
		st.LastReminderAt = map[string]time.Time{}
	}
}

// Trim applies bounded retention: dedupe slices keep the newest entries and
// the cooldown map is cut back once it outgrows its cap.
func (st *GateState) Trim() {
	st.SeenIDs = tail(st.SeenIDs, maxSeenIDs)
	st.PostedGUIDs = tail(st.PostedGUIDs, maxPostedGUIDs)
	st.PostedTextHashes = tail(st.PostedTextHashes, maxTextHashes)

	if len(st.Cooldowns) > maxCooldowns {
		type entry struct {
			key string
			ts  int64
		}
		entries := make([]entry, 0, len(st.Cooldowns))
		for k, ts := range st.Cooldowns {
			entries = append(entries, entry{k, ts})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
		trimmed := make(map[string]int64, keepCooldowns)
		for _, e := range entries[:keepCooldowns] {
			trimmed[e.key] = e.ts
		}
		st.Cooldowns = trimmed
	}
}

func tail(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return append([]string(nil), s[len(s)-n:]...)
}

// HasSeen reports whether an alert identity has been observed before.
func (st *GateState) HasSeen(id string) bool {
	return contains(st.SeenIDs, id)
}

// MarkSeen records an alert identity as observed.
func (st *GateState) MarkSeen(id string) {
	if !st.HasSeen(id) {
		st.SeenIDs = append(st.SeenIDs, id)
	}
}

// HasPosted reports whether an alert identity was successfully delivered.
func (st *GateState) HasPosted(guid string) bool {
	return contains(st.PostedGUIDs, guid)
}

// MarkPosted records a delivered alert identity.
func (st *GateState) MarkPosted(guid string) {
	if !st.HasPosted(guid) {
		st.PostedGUIDs = append(st.PostedGUIDs, guid)
	}
	st.MarkSeen(guid)
}

// HasPostedTextHash reports whether this exact outgoing text was sent before.
func (st *GateState) HasPostedTextHash(hash string) bool {
	return contains(st.PostedTextHashes, hash)
}

// MarkPostedTextHash records the content hash of delivered text.
func (st *GateState) MarkPostedTextHash(hash string) {
	if !st.HasPostedTextHash(hash) {
		st.PostedTextHashes = append(st.PostedTextHashes, hash)
	}
}

// ClearCustomText drops captured custom text for a token and closes any
// capture session still open for it.
func (st *GateState) ClearCustomText(token string) {
	delete(st.CustomTexts, token)
	if st.CustomPending != nil && st.CustomPending.Token == token {
		st.CustomPending = nil
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
