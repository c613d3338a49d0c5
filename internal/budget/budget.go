// Package budget caps the LLM tokens the service may spend per local day and
// keeps a usage ledger for reporting.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/bowerhall/partscout/internal/logger"
)

// Purposes tag ledger rows with the component that spent the tokens.
const (
	PurposeDecide   = "decide"
	PurposeClassify = "classify"
)

// Call is one metered model request.
type Call struct {
	Provider string
	Model    string
	Purpose  string
	Input    int
	Output   int
}

func (c Call) Tokens() int { return c.Input + c.Output }

type Config struct {
	// DailyLimit <= 0 disables the cap; usage is still recorded.
	DailyLimit int
	WarnAt     float64
	Timezone   *time.Location

	// OnWarn and OnExceeded fire at most once per day each.
	OnWarn     func(used, limit int)
	OnExceeded func(used, limit int)
}

// Tracker holds today's running total. Rollover happens lazily on the first
// call after local midnight.
type Tracker struct {
	cfg    Config
	ledger *Store

	mu       sync.Mutex
	day      string
	used     int
	warned   bool
	exceeded bool
}

func NewTracker(cfg Config) *Tracker {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.WarnAt <= 0 || cfg.WarnAt > 1 {
		cfg.WarnAt = 0.8
	}

	t := &Tracker{cfg: cfg}
	t.day = t.today()
	return t
}

func (t *Tracker) today() string {
	return time.Now().In(t.cfg.Timezone).Format(time.DateOnly)
}

// Resume attaches the ledger and picks today's count up from it, so a
// restart does not hand out a fresh allowance.
func (t *Tracker) Resume(ctx context.Context, ledger *Store) error {
	used, err := ledger.TodayTokens(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ledger = ledger
	if err != nil {
		return err
	}
	t.used = used
	t.warned = t.overWarn()
	t.exceeded = t.overLimit()
	return nil
}

// Record writes c to the ledger and counts it against the cap. It reports
// whether budget remains after the call.
func (t *Tracker) Record(ctx context.Context, c Call) bool {
	if t.ledger != nil {
		if err := t.ledger.Record(ctx, c); err != nil {
			logger.Warn("budget: failed to record usage", "model", c.Model, "purpose", c.Purpose, "error", err)
		}
	}
	return t.Add(c.Tokens())
}

// Add counts raw tokens against the cap.
func (t *Tracker) Add(tokens int) bool {
	t.mu.Lock()
	t.rollover()
	t.used += tokens

	var notify func(int, int)
	switch {
	case t.overLimit() && !t.exceeded:
		t.exceeded = true
		notify = t.cfg.OnExceeded
	case t.overWarn() && !t.warned && !t.overLimit():
		t.warned = true
		notify = t.cfg.OnWarn
	}
	used, limit, ok := t.used, t.cfg.DailyLimit, !t.overLimit()
	t.mu.Unlock()

	if notify != nil {
		notify(used, limit)
	}
	return ok
}

// Exhausted reports whether today's cap is spent. Callers check it before
// asking a model for anything.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return t.overLimit()
}

func (t *Tracker) Usage() (used, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return t.used, t.cfg.DailyLimit
}

// must hold lock
func (t *Tracker) rollover() {
	if day := t.today(); day != t.day {
		t.day, t.used, t.warned, t.exceeded = day, 0, false, false
	}
}

// must hold lock
func (t *Tracker) overLimit() bool {
	return t.cfg.DailyLimit > 0 && t.used >= t.cfg.DailyLimit
}

// must hold lock
func (t *Tracker) overWarn() bool {
	return t.cfg.DailyLimit > 0 && float64(t.used) >= float64(t.cfg.DailyLimit)*t.cfg.WarnAt
}
