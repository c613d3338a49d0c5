package session

import (
	"context"
	"time"

	"github.com/bowerhall/partscout/pkg/partsdb"
)

const (
	DefaultMaxHistory = 10
	DefaultMaxRecent  = 5
)

type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// RecentRef is one entry of the recency list. Turn is the turn number in
// which the part was last referenced.
type RecentRef struct {
	Key  string `json:"key"`
	Turn int    `json:"turn"`
}

// Topic is the established appliance/symptom context of a conversation.
type Topic struct {
	ApplianceType string `json:"appliance_type"`
	Symptom       string `json:"symptom,omitempty"`
}

// Session is the per-conversation state. A turn works on a clone obtained
// from Store.Load and hands it back through Store.Commit when it is done.
type Session struct {
	ID         string                     `json:"id"`
	Turn       int                        `json:"turn"`
	History    []Message                  `json:"history"`
	Recent     []RecentRef                `json:"recent"`
	Topic      *Topic                     `json:"topic,omitempty"`
	FetchCache map[string]*partsdb.Bundle `json:"fetch_cache,omitempty"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// Store is the session persistence contract. Load returns a fresh empty
// session for an unknown id.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Commit(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Idle lists sessions last committed before the cutoff.
	Idle(ctx context.Context, before time.Time) ([]string, error)
	// Expire deletes id if it is still idle, reporting whether it did.
	Expire(ctx context.Context, id string, before time.Time) (bool, error)
}

// Limits bounds the history and recency list of a session.
type Limits struct {
	MaxHistory int
	MaxRecent  int
}

func (l Limits) withDefaults() Limits {
	if l.MaxHistory <= 0 {
		l.MaxHistory = DefaultMaxHistory
	}
	if l.MaxRecent <= 0 {
		l.MaxRecent = DefaultMaxRecent
	}
	return l
}
