package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/livefetch"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// Handler runs a tool with arguments that already passed the tool's schema.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type Registry struct {
	tools    []llm.Tool
	handlers map[string]Handler
	schemas  map[string]schema
}

// Failure is the typed failure half of an observation.
type Failure struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Observation is the outcome of one tool invocation: a result or a failure,
// never both.
type Observation struct {
	Seq     int             `json:"seq"`
	Tool    string          `json:"tool"`
	Args    json.RawMessage `json:"args"`
	Result  any             `json:"result,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`
	Elapsed time.Duration   `json:"-"`
}

func (o Observation) OK() bool {
	return o.Failure == nil
}

// FailureKind returns the failure kind, or KindNone on success.
func (o Observation) FailureKind() apperr.Kind {
	if o.Failure == nil {
		return apperr.KindNone
	}
	return o.Failure.Kind
}

// StringArg returns a string argument of the call, or "" when absent.
func (o Observation) StringArg(name string) string {
	var args map[string]any
	if err := json.Unmarshal(o.Args, &args); err != nil {
		return ""
	}
	s, _ := args[name].(string)
	return s
}

// Surfaced is a part some tool result put in front of the loop, with the
// tool's own scope verdict.
type Surfaced struct {
	Part       partsdb.Part
	OutOfScope bool
}

// Surfacer is implemented by results that carry parts.
type Surfacer interface {
	Surfaced() []Surfaced
}

// Parts lists the parts an observation surfaced, in result order.
func (o Observation) Parts() []Surfaced {
	if s, ok := o.Result.(Surfacer); ok && o.OK() {
		return s.Surfaced()
	}
	return nil
}

type contextKey string

const turnCacheKey contextKey = "turn_cache"

// WithTurnCache attaches the turn's live fetch cache. Tools that fall back
// to live fetching read it from the context; without one they report NotFound.
func WithTurnCache(ctx context.Context, c *livefetch.Cache) context.Context {
	return context.WithValue(ctx, turnCacheKey, c)
}

func TurnCacheFromContext(ctx context.Context) *livefetch.Cache {
	c, _ := ctx.Value(turnCacheKey).(*livefetch.Cache)
	return c
}
