package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bowerhall/partscout/internal/alerts"
	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/livefetch"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/internal/resolver"
	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/internal/synth"
	"github.com/bowerhall/partscout/internal/tools"
)

const MaxQueryLength = 2000

// Service runs turns: scope gate, reference resolution, the reasoning loop,
// the stage-2 check, synthesis and the session commit.
type Service struct {
	cfg      Config
	sessions session.Store
	locks    *session.Locks
	tools    *tools.Registry
	decider  Decider
	resolver *resolver.Resolver
	live     *livefetch.Client
	alerts   *alerts.Alerter
}

func New(cfg Config, sessions session.Store, registry *tools.Registry, decider Decider) *Service {
	cfg = cfg.withDefaults()

	return &Service{
		cfg:      cfg,
		sessions: sessions,
		locks:    session.NewLocks(),
		tools:    registry,
		decider:  decider,
		resolver: resolver.New(cfg.ResolverWindow),
	}
}

// SetLiveFetch enables live fetching of parts missing from the catalog.
func (s *Service) SetLiveFetch(c *livefetch.Client) {
	s.live = c
}

func (s *Service) SetAlerter(a *alerts.Alerter) {
	s.alerts = a
}

// Locks returns the per-session locks turns run under.
func (s *Service) Locks() *session.Locks { return s.locks }

func (s *Service) Registry() *tools.Registry {
	return s.tools
}

// Reset forgets a session. It waits for a turn in progress on the same id.
func (s *Service) Reset(ctx context.Context, id string) error {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	return s.sessions.Delete(ctx, id)
}

// Handle runs one turn. The only errors it returns are an invalid request,
// cancellation of ctx and a session store failure; everything else ends in
// an answer.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	return s.handle(ctx, req, nil)
}

// HandleStream runs one turn and reports it through emit: tool events while
// the loop runs, then the answer as token events in order, then a done
// event. When the turn fails a single error event is emitted instead of done.
func (s *Service) HandleStream(ctx context.Context, req Request, emit func(Event) error) error {
	progress := func(obs tools.Observation) {
		// progress is best effort; a gone client shows up as ctx cancellation
		_ = emit(Event{Type: EventTool, Tool: obs.Tool})
	}

	resp, err := s.handle(ctx, req, progress)
	if err != nil {
		if emitErr := emit(Event{Type: EventError, Error: publicError(err)}); emitErr != nil {
			logger.Debug("stream closed before error event", "error", emitErr)
		}
		return err
	}

	for _, tok := range synth.Tokens(resp.Answer) {
		if err := emit(Event{Type: EventToken, Token: tok}); err != nil {
			return err
		}
	}
	return emit(Event{Type: EventDone, Response: resp})
}

func (s *Service) handle(ctx context.Context, req Request, progress func(tools.Observation)) (*Response, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" || len(query) > MaxQueryLength {
		return nil, apperr.InvalidArguments("message must be 1 to %d characters", MaxQueryLength)
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.load(ctx, id, req.SessionState)
	if err != nil {
		return nil, err
	}

	log := logger.With("session", id, "turn", sess.Turn+1)
	log.Debug("turn started", "query_chars", len(query))

	t := &turn{query: query, sess: sess, state: Finishing}

	if v := scope.Stage1(query, sess.HasContext()); v == scope.Reject {
		log.Info("query rejected by scope gate")
		t.answer = synth.Synthesize(synth.Input{Query: query, OutOfScope: true})
	} else {
		t.resolution = s.resolver.Resolve(query, sess)
		if err := s.reason(ctx, t, progress); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		log.Debug("turn cancelled before commit")
		return nil, err
	}

	s.apply(t)
	if err := s.commit(ctx, t.sess, req.SessionState != ""); err != nil {
		return nil, err
	}

	resp := &Response{
		Answer:     t.answer.Text,
		Mode:       t.answer.Mode,
		PartKeys:   t.answer.PartKeys,
		Parts:      t.answer.Cards,
		SessionID:  id,
		Iterations: t.iterations,
		ToolCalls:  len(t.observations),
		Elapsed:    time.Since(start),
	}
	if resp.PartKeys == nil {
		resp.PartKeys = []string{}
	}

	if resp.SessionState, err = session.Encode(t.sess); err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	log.Info("turn finished", "mode", resp.Mode, "outcome", t.outcome(), "iterations", t.iterations,
		"tool_calls", resp.ToolCalls, "elapsed", resp.Elapsed.Round(time.Millisecond))
	return resp, nil
}

// load returns a private copy of the session: decoded from the client's
// state token when one is given, from the store otherwise.
func (s *Service) load(ctx context.Context, id, state string) (*session.Session, error) {
	if state != "" {
		sess, err := session.Decode(state)
		if err != nil {
			return nil, apperr.InvalidArguments("%v", err)
		}
		sess.ID = id
		return sess, nil
	}

	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.alerts.Critical("sessions", "Session load failed", err)
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return sess.Clone(), nil
}

func (s *Service) commit(ctx context.Context, sess *session.Session, stateless bool) error {
	if stateless {
		// the client owns the state; keep the store copy too so a later
		// request without the token still finds its session
		if err := s.sessions.Commit(ctx, sess); err != nil {
			logger.Warn("session store commit failed for stateless turn", "session", sess.ID, "error", err)
		}
		return nil
	}

	if err := s.sessions.Commit(ctx, sess); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.alerts.Critical("sessions", "Session commit failed", err)
		return fmt.Errorf("commit session %s: %w", sess.ID, err)
	}
	return nil
}

// publicError is the message streamed to clients for a failed turn.
func publicError(err error) string {
	switch {
	case errors.Is(err, apperr.ErrInvalidArguments):
		return err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	default:
		return "internal error"
	}
}
