package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		return sess.Clone(), nil
	}

	return New(id), nil
}

func (m *MemoryStore) Commit(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	committed := s.Clone()
	committed.UpdatedAt = time.Now()

	m.mu.Lock()
	m.sessions[s.ID] = committed
	m.mu.Unlock()

	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Idle(ctx context.Context, before time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) Expire(ctx context.Context, id string, before time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || !s.UpdatedAt.Before(before) {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
