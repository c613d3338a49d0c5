package session

import (
	"time"

	"github.com/bowerhall/partscout/pkg/partsdb"
)

func New(id string) *Session {
	return &Session{
		ID:         id,
		FetchCache: make(map[string]*partsdb.Bundle),
		UpdatedAt:  time.Now(),
	}
}

// Clone copies the session deeply enough that mutating the clone never
// affects the original. Cached bundles are shared; they are immutable once
// fetched.
func (s *Session) Clone() *Session {
	c := *s

	c.History = append([]Message(nil), s.History...)
	c.Recent = append([]RecentRef(nil), s.Recent...)
	if s.Topic != nil {
		t := *s.Topic
		c.Topic = &t
	}

	c.FetchCache = make(map[string]*partsdb.Bundle, len(s.FetchCache))
	for k, v := range s.FetchCache {
		c.FetchCache[k] = v
	}

	return &c
}

// HasContext reports whether earlier turns left anything to refer back to.
func (s *Session) HasContext() bool {
	return len(s.Recent) > 0 || s.Topic != nil || len(s.History) > 0
}

// AddExchange appends a user/assistant pair and trims history to the newest
// max messages.
func (s *Session) AddExchange(user, assistant string, max int) {
	now := time.Now()
	s.History = append(s.History,
		Message{Role: "user", Content: user, At: now},
		Message{Role: "assistant", Content: assistant, At: now},
	)

	if max > 0 && len(s.History) > max {
		s.History = append([]Message(nil), s.History[len(s.History)-max:]...)
	}
}

// Remember folds part keys into the recency list for the given turn. keys[0]
// ends up most recent. Existing entries move to the front instead of being
// duplicated, and the list is cut to max entries.
func (s *Session) Remember(keys []string, turn, max int) {
	if len(keys) == 0 {
		return
	}

	seen := make(map[string]bool, len(keys))
	var front []RecentRef
	for _, k := range keys {
		k = partsdb.NormalizePSNumber(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		front = append(front, RecentRef{Key: k, Turn: turn})
	}

	for _, r := range s.Recent {
		if !seen[r.Key] {
			front = append(front, r)
		}
	}

	if max > 0 && len(front) > max {
		front = front[:max]
	}
	s.Recent = front
}

// Forget removes keys from the recency list.
func (s *Session) Forget(keys []string) {
	if len(keys) == 0 {
		return
	}

	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[partsdb.NormalizePSNumber(k)] = true
	}

	kept := s.Recent[:0]
	for _, r := range s.Recent {
		if !drop[r.Key] {
			kept = append(kept, r)
		}
	}
	s.Recent = kept
}

// RecentKeys returns recency-list keys referenced within the last window
// completed turns, most recent first. window <= 0 means no restriction.
func (s *Session) RecentKeys(window int) []string {
	var keys []string
	for _, r := range s.Recent {
		if window > 0 && r.Turn <= s.Turn-window {
			continue
		}
		keys = append(keys, r.Key)
	}
	return keys
}

// CacheBundles merges bundles fetched during a turn into the fetch cache.
func (s *Session) CacheBundles(bundles map[string]*partsdb.Bundle) {
	if len(bundles) == 0 {
		return
	}
	if s.FetchCache == nil {
		s.FetchCache = make(map[string]*partsdb.Bundle, len(bundles))
	}
	for k, b := range bundles {
		s.FetchCache[partsdb.NormalizePSNumber(k)] = b
	}
}
