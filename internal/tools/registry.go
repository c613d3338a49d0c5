package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/internal/logger"
)

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		schemas:  make(map[string]schema),
	}
}

// Register adds a tool. A malformed parameter schema is a programming error
// and panics at startup.
func (r *Registry) Register(tool llm.Tool, handler Handler) {
	s, err := compileSchema(tool.Parameters)
	if err != nil {
		panic(fmt.Sprintf("tool %s: %v", tool.Name, err))
	}

	r.tools = append(r.tools, tool)
	r.handlers[tool.Name] = handler
	r.schemas[tool.Name] = s
}

func (r *Registry) Tools() []llm.Tool {
	return r.tools
}

func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Invoke runs one tool and always returns an observation. Unknown tools,
// contract violations, handler errors and handler panics all become typed
// failures; nothing propagates to the caller. Seq is left for the caller.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (obs Observation) {
	obs = Observation{Tool: name, Args: args}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			obs.Result = nil
			obs.Failure = &Failure{Kind: apperr.KindUpstream, Message: fmt.Sprintf("tool %s failed internally", name)}
		}
		obs.Elapsed = time.Since(start)
	}()

	handler, ok := r.handlers[name]
	if !ok || handler == nil {
		obs.Failure = &Failure{Kind: apperr.KindUnknownTool, Message: fmt.Sprintf("unknown tool %q", name)}
		return obs
	}

	if err := r.schemas[name].validate(args); err != nil {
		obs.Failure = failure(err)
		logger.Debug("tool arguments rejected", "tool", name, "error", err)
		return obs
	}

	result, err := handler(ctx, args)
	if err != nil {
		obs.Failure = failure(err)
		logger.Debug("tool failed", "tool", name, "kind", obs.Failure.Kind, "error", err)
		return obs
	}

	obs.Result = result
	logger.Debug("tool executed", "tool", name, "elapsed", time.Since(start).Round(time.Millisecond))
	return obs
}

func failure(err error) *Failure {
	return &Failure{Kind: apperr.Classify(err), Message: err.Error()}
}

// decode unmarshals validated arguments into a tool's argument struct.
func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return apperr.InvalidArguments("%v", err)
	}
	return nil
}
