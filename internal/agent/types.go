package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bowerhall/partscout/internal/resolver"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/internal/synth"
	"github.com/bowerhall/partscout/internal/tools"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// ErrBudgetExhausted is returned by deciders that can no longer spend LLM
// tokens today. The loop treats it like any decider failure and aborts.
var ErrBudgetExhausted = errors.New("daily token budget exhausted")

// State is a reasoning loop state.
type State int

const (
	Observing State = iota
	Deciding
	Acting
	Finishing
	Aborted
)

func (s State) String() string {
	switch s {
	case Observing:
		return "observing"
	case Deciding:
		return "deciding"
	case Acting:
		return "acting"
	case Finishing:
		return "finishing"
	default:
		return "aborted"
	}
}

// Step is what a decider sees at each iteration.
type Step struct {
	Query        string
	Resolution   resolver.Resolution
	Topic        *session.Topic
	History      []session.Message
	Observations []tools.Observation
	Iteration    int
	// Memo is the Memo of the previous decision of this turn, nil at the
	// first iteration.
	Memo any
}

// Decision is either one tool call or Finish.
type Decision struct {
	Finish bool
	Tool   string
	Args   json.RawMessage
	// Memo is handed back unchanged in the next Step of the same turn, so
	// a decider can carry per-turn state without keeping it itself.
	Memo any
}

// Decider chooses the next action from the evidence gathered so far.
type Decider interface {
	Decide(ctx context.Context, step Step) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, step Step) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, step Step) (Decision, error) {
	return f(ctx, step)
}

// Call is a convenience constructor for a tool-call decision.
func Call(tool string, args any) Decision {
	raw, _ := json.Marshal(args)
	return Decision{Tool: tool, Args: raw}
}

type Request struct {
	Query     string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	// SessionState is an opaque token from a previous Response. When set it
	// is used instead of the server-side session store.
	SessionState string `json:"session_state,omitempty"`
}

type Response struct {
	Answer       string         `json:"response"`
	Mode         synth.Mode     `json:"mode"`
	PartKeys     []string       `json:"part_keys"`
	Parts        []partsdb.Part `json:"parts"`
	SessionID    string         `json:"session_id"`
	SessionState string         `json:"session_state,omitempty"`
	Iterations   int            `json:"iterations"`
	ToolCalls    int            `json:"tool_calls"`
	Elapsed      time.Duration  `json:"-"`
}

type EventType string

const (
	EventTool  EventType = "tool"
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one message of a streamed turn. Tool events report progress,
// token events carry answer text in order, and exactly one done or error
// event ends the stream.
type Event struct {
	Type     EventType `json:"type"`
	Tool     string    `json:"tool,omitempty"`
	Token    string    `json:"content,omitempty"`
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type Config struct {
	MaxIterations  int
	TurnTimeout    time.Duration
	ResolverWindow int
	Limits         session.Limits
}

const (
	DefaultMaxIterations = 10
	DefaultTurnTimeout   = 60 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.Limits.MaxHistory <= 0 {
		c.Limits.MaxHistory = session.DefaultMaxHistory
	}
	if c.Limits.MaxRecent <= 0 {
		c.Limits.MaxRecent = session.DefaultMaxRecent
	}
	return c
}
