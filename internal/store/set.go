// Package store holds the relay's persisted string sets: the filtered word list and the
// ban registry.
//
// A Set is authoritative in memory. Every successful mutation schedules a full rewrite
// of its contents through a Persister; writes happen off the caller's goroutine and a
// failed write is logged, never surfaced to the mutation.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ItsCrafted/blooket-hacks/internal/identity"
)

// Persister loads and rewrites the full contents of one set.
type Persister interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, entries []string) error
}

// Normalizer canonicalizes an entry before it is stored or looked up.
type Normalizer func(string) (string, error)

// WordNormalizer trims and lowercases a filtered word.
func WordNormalizer(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("word is empty")
	}
	return s, nil
}

// IdentityNormalizer canonicalizes a banned identity.
func IdentityNormalizer(s string) (string, error) {
	id, err := identity.Normalize(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Option configures a Set.
type Option func(*Set)

// WithPersistDelay holds writes back by d so bursts of mutations share one write.
func WithPersistDelay(d time.Duration) Option {
	return func(s *Set) { s.delay = d }
}

// Set is an insertion-ordered set of normalized strings. It is safe for concurrent use.
type Set struct {
	name  string
	norm  Normalizer
	delay time.Duration

	mu       sync.RWMutex
	entries  []string
	index    map[string]struct{}
	watchers []func([]string)

	writer *flusher
}

// New creates an empty set persisted through p.
func New(name string, p Persister, norm Normalizer, opts ...Option) *Set {
	s := &Set{
		name:  name,
		norm:  norm,
		index: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.writer = newFlusher(name, p, s.Snapshot, s.delay)
	return s
}

// Name identifies the set in logs.
func (s *Set) Name() string { return s.name }

// Load replaces the contents with what the persister holds. On error the set is left
// empty and the error returned; entries that fail normalization are skipped.
func (s *Set) Load(ctx context.Context) error {
	raw, err := s.writer.persister.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.index = make(map[string]struct{})
	if err != nil {
		s.notifyLocked()
		return fmt.Errorf("load %s: %w", s.name, err)
	}

	for _, v := range raw {
		n, err := s.norm(v)
		if err != nil {
			slog.Warn("skipping invalid entry", "store", s.name, "entry", v, "error", err)
			continue
		}
		if _, ok := s.index[n]; ok {
			continue
		}
		s.index[n] = struct{}{}
		s.entries = append(s.entries, n)
	}
	s.notifyLocked()
	slog.Info("store loaded", "store", s.name, "entries", len(s.entries))
	return nil
}

// Contains reports whether v, once normalized, is in the set.
func (s *Set) Contains(v string) bool {
	n, err := s.norm(v)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[n]
	return ok
}

// Add inserts v. It reports false if v was already present; the error is only for
// input that cannot be normalized.
func (s *Set) Add(v string) (bool, error) {
	n, err := s.norm(v)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if _, ok := s.index[n]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.index[n] = struct{}{}
	s.entries = append(s.entries, n)
	s.notifyLocked()
	s.mu.Unlock()

	s.writer.schedule()
	return true, nil
}

// Remove deletes v. It reports false if v was absent.
func (s *Set) Remove(v string) (bool, error) {
	n, err := s.norm(v)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	if _, ok := s.index[n]; !ok {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.index, n)
	for i, e := range s.entries {
		if e == n {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			break
		}
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.writer.schedule()
	return true, nil
}

// Snapshot returns a copy of the entries in insertion order.
func (s *Set) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// OnChange registers fn to receive the contents after every change, and once
// immediately. fn runs with the set locked and must not call back into it.
func (s *Set) OnChange(fn func([]string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
	fn(s.copyLocked())
}

// Flush writes the current contents now.
func (s *Set) Flush(ctx context.Context) error {
	return s.writer.flush(ctx)
}

// Close stops background writes and performs a final flush.
func (s *Set) Close(ctx context.Context) error {
	return s.writer.close(ctx)
}

func (s *Set) notifyLocked() {
	if len(s.watchers) == 0 {
		return
	}
	snap := s.copyLocked()
	for _, fn := range s.watchers {
		fn(snap)
	}
}

func (s *Set) copyLocked() []string {
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}
