package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore persists sessions in SQLite. History lives in its own table so it
// can be inspected and trimmed with plain SQL; the remaining state is a JSON
// document.
type SQLStore struct {
	db         *sql.DB
	maxHistory int
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    turn INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS session_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages(session_id, id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

// persisted is the JSON document stored in sessions.state.
type persisted struct {
	Recent     []RecentRef     `json:"recent"`
	Topic      *Topic          `json:"topic,omitempty"`
	FetchCache json.RawMessage `json:"fetch_cache,omitempty"`
}

// NewSQLStore creates a session store using the provided database connection
func NewSQLStore(db *sql.DB, maxHistory int) (*SQLStore, error) {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &SQLStore{db: db, maxHistory: maxHistory}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLStore) Load(ctx context.Context, id string) (*Session, error) {
	var turn int
	var state string
	var updated int64

	err := s.db.QueryRowContext(ctx,
		`SELECT turn, state, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&turn, &state, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return New(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var p persisted
	if err := json.Unmarshal([]byte(state), &p); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}

	sess := New(id)
	sess.Turn = turn
	sess.Recent = p.Recent
	sess.Topic = p.Topic
	sess.UpdatedAt = time.Unix(updated, 0)
	if len(p.FetchCache) > 0 {
		if err := json.Unmarshal(p.FetchCache, &sess.FetchCache); err != nil {
			return nil, fmt.Errorf("decode fetch cache %s: %w", id, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM session_messages
		WHERE session_id = ?
		ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		var at int64
		if err := rows.Scan(&m.Role, &m.Content, &at); err != nil {
			return nil, err
		}
		m.At = time.Unix(at, 0)
		sess.History = append(sess.History, m)
	}

	return sess, rows.Err()
}

// Commit replaces the stored session in one transaction.
func (s *SQLStore) Commit(ctx context.Context, sess *Session) error {
	cache, err := json.Marshal(sess.FetchCache)
	if err != nil {
		return err
	}
	state, err := json.Marshal(persisted{Recent: sess.Recent, Topic: sess.Topic, FetchCache: cache})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, turn, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			turn = excluded.turn,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Turn, string(state), now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sess.ID); err != nil {
		return err
	}

	history := sess.History
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	for _, m := range history {
		at := m.At.Unix()
		if m.At.IsZero() {
			at = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sess.ID, m.Role, m.Content, at)
		if err != nil {
			return fmt.Errorf("save history %s: %w", sess.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Idle(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions WHERE updated_at < ? ORDER BY updated_at`, before.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) Expire(ctx context.Context, id string, before time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND updated_at < ?`, id, before.Unix())
	if err != nil {
		return false, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}
