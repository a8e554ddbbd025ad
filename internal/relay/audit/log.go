// Package audit keeps a bounded in-memory record of moderation actions. Message content
// is never recorded.
package audit

import (
	"sync"
	"time"
)

// Action names a moderation outcome or operator change.
type Action string

const (
	ActionFilterBan   Action = "filter_ban"
	ActionBanRejected Action = "ban_rejected"
	ActionRateLimited Action = "rate_limited"
	ActionSecurity    Action = "security_reject"
	ActionBan         Action = "ban"
	ActionUnban       Action = "unban"
	ActionWordAdded   Action = "word_added"
	ActionWordRemoved Action = "word_removed"
	ActionVPNCheck    Action = "vpn_check"
)

// DefaultMaxEntries bounds the log when no size is given.
const DefaultMaxEntries = 1000

// Entry is one recorded action.
type Entry struct {
	Time     time.Time `json:"time"`
	Identity string    `json:"identity,omitempty"`
	Action   Action    `json:"action"`
	Detail   string    `json:"detail,omitempty"`
}

// Log stores the most recent entries, oldest first.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	counts  map[Action]int
	now     func() time.Time
}

// New creates a log holding at most maxEntries.
func New(maxEntries int) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{
		entries: make([]Entry, 0, min(maxEntries, 64)),
		maxSize: maxEntries,
		counts:  make(map[Action]int),
		now:     time.Now,
	}
}

// Record appends an entry, evicting the oldest once full.
func (l *Log) Record(identity string, action Action, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{
		Time:     l.now(),
		Identity: identity,
		Action:   action,
		Detail:   detail,
	})
	if len(l.entries) > l.maxSize {
		l.entries = l.entries[len(l.entries)-l.maxSize:]
	}
	l.counts[action]++
}

// Recent returns up to limit of the newest entries, newest first. A non-positive limit
// returns everything.
func (l *Log) Recent(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Counts returns how many times each action was recorded since start, including
// entries already evicted.
func (l *Log) Counts() map[Action]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[Action]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
