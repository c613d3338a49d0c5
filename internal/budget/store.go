package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS llm_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at DATETIME NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	purpose TEXT NOT NULL DEFAULT '',
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_llm_calls_at ON llm_calls(at);
`

// Store is the usage ledger. It lives in the catalog database.
type Store struct {
	db *sql.DB
	tz *time.Location
}

func NewStore(db *sql.DB, tz *time.Location) (*Store, error) {
	if _, err := db.Exec(ledgerSchema); err != nil {
		return nil, fmt.Errorf("create usage ledger: %w", err)
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Store{db: db, tz: tz}, nil
}

func (s *Store) Record(ctx context.Context, c Call) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_calls (at, provider, model, purpose, input_tokens, output_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), c.Provider, c.Model, c.Purpose, c.Input, c.Output,
		Cost(c.Provider, c.Model, c.Input, c.Output),
	)
	return err
}

// Totals aggregates ledger rows over a window.
type Totals struct {
	Requests     int     `json:"requests"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

func (t Totals) Tokens() int { return t.InputTokens + t.OutputTokens }

// Window is a half-open local time range.
type Window struct {
	From, To time.Time
}

// Day is the local calendar day containing now.
func (s *Store) Day() Window {
	now := time.Now().In(s.tz)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.tz)
	return Window{from, from.AddDate(0, 0, 1)}
}

// Month is the local calendar month containing now.
func (s *Store) Month() Window {
	now := time.Now().In(s.tz)
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.tz)
	return Window{from, from.AddDate(0, 1, 0)}
}

func (s *Store) Totals(ctx context.Context, w Window) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM llm_calls WHERE at >= ? AND at < ?`,
		w.From.UTC(), w.To.UTC(),
	).Scan(&t.Requests, &t.InputTokens, &t.OutputTokens, &t.CostUSD)
	return t, err
}

// TodayTokens is the input plus output tokens spent since local midnight.
func (s *Store) TodayTokens(ctx context.Context) (int, error) {
	t, err := s.Totals(ctx, s.Day())
	return t.Tokens(), err
}

// Line is one row of a per-model, per-purpose breakdown.
type Line struct {
	Model   string `json:"model"`
	Purpose string `json:"purpose"`
	Totals
}

// Breakdown groups w by model and purpose, most expensive first.
func (s *Store) Breakdown(ctx context.Context, w Window) ([]Line, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, purpose, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(cost_usd)
		 FROM llm_calls WHERE at >= ? AND at < ?
		 GROUP BY model, purpose
		 ORDER BY SUM(cost_usd) DESC, model, purpose`,
		w.From.UTC(), w.To.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.Model, &l.Purpose, &l.Requests, &l.InputTokens, &l.OutputTokens, &l.CostUSD); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
