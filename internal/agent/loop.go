package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/livefetch"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/internal/resolver"
	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/internal/synth"
	"github.com/bowerhall/partscout/internal/tools"
)

// turn is the working state of one request. Nothing in it reaches the
// session store until the turn ends cleanly.
type turn struct {
	query        string
	sess         *session.Session
	resolution   resolver.Resolution
	observations []tools.Observation
	iterations   int
	state        State
	rejections   []scope.Rejection
	cache        *livefetch.Cache
	answer       synth.Answer
}

// reason runs the loop, the stage-2 check and synthesis. It fails only when
// ctx is cancelled.
func (s *Service) reason(ctx context.Context, t *turn, progress func(tools.Observation)) error {
	loopCtx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()

	if s.live != nil {
		t.cache = s.live.Turn(t.sess.FetchCache)
		loopCtx = tools.WithTurnCache(loopCtx, t.cache)
	}

	s.loop(loopCtx, t, progress)

	if err := ctx.Err(); err != nil {
		return err
	}

	var cands []scope.Candidate
	for _, obs := range t.observations {
		for _, sp := range obs.Parts() {
			cands = append(cands, scope.Candidate{
				PSNumber:      sp.Part.PSNumber,
				Name:          sp.Part.Name,
				ApplianceType: sp.Part.ApplianceType,
				OutOfScope:    sp.OutOfScope,
			})
		}
	}
	if v, rejected := scope.Stage2(cands); v == scope.Reject {
		logger.Info("fetched parts rejected by scope gate", "session", t.sess.ID, "parts", len(rejected))
		t.rejections = rejected
	}

	t.answer = synth.Synthesize(synth.Input{
		Query:        t.query,
		Observations: t.observations,
		Focus:        t.resolution.Targets(),
		Models:       t.resolution.Models,
		Topic:        t.resolution.Topic,
		Rejections:   t.rejections,
		Exhausted:    t.state == Aborted,
		Unresolved:   t.resolution.Unresolved,
	})
	return nil
}

// loop is the Observing -> Deciding -> Acting state machine. It always ends
// in Finishing or Aborted within MaxIterations decisions.
func (s *Service) loop(ctx context.Context, t *turn, progress func(tools.Observation)) {
	var (
		memo    any
		pending Decision
	)

	t.state = Observing
	for t.state != Finishing && t.state != Aborted {
		switch t.state {
		case Observing:
			if t.iterations >= s.cfg.MaxIterations {
				logger.Warn("reasoning loop hit max iterations", "session", t.sess.ID, "max", s.cfg.MaxIterations)
				t.state = Aborted
				continue
			}
			if ctx.Err() != nil {
				logger.Warn("reasoning loop deadline reached", "session", t.sess.ID, "iterations", t.iterations)
				t.state = Aborted
				continue
			}
			t.state = Deciding

		case Deciding:
			t.iterations++
			d, err := s.decider.Decide(ctx, Step{
				Query:        t.query,
				Resolution:   t.resolution,
				Topic:        t.resolution.Topic,
				History:      t.sess.History,
				Observations: t.observations,
				Iteration:    t.iterations,
				Memo:         memo,
			})
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, ErrBudgetExhausted) {
					s.alerts.Critical("llm", "Decider failed", err)
				}
				logger.Warn("decider failed, aborting turn", "session", t.sess.ID, "error", err)
				t.state = Aborted
				continue
			}
			memo = d.Memo

			if d.Finish {
				t.state = Finishing
				continue
			}
			pending = d
			t.state = Acting

		case Acting:
			obs := s.invoke(ctx, pending)
			obs.Seq = len(t.observations) + 1
			t.observations = append(t.observations, obs)
			if progress != nil {
				progress(obs)
			}
			t.state = Observing
		}
	}
}

// invoke runs one tool call, retrying once when the failure is transient.
func (s *Service) invoke(ctx context.Context, d Decision) tools.Observation {
	obs := s.tools.Invoke(ctx, d.Tool, d.Args)
	if obs.FailureKind().Retryable() && ctx.Err() == nil {
		logger.Debug("retrying tool after transient failure", "tool", d.Tool, "kind", obs.FailureKind())
		obs = s.tools.Invoke(ctx, d.Tool, d.Args)
	}
	return obs
}

// apply folds the turn into the session: history, recency list, topic and
// fetched bundles.
func (s *Service) apply(t *turn) {
	sess := t.sess
	sess.Turn++
	sess.AddExchange(t.query, t.answer.Text, s.cfg.Limits.MaxHistory)

	if len(t.rejections) > 0 {
		keys := make([]string, len(t.rejections))
		for i, r := range t.rejections {
			keys[i] = r.PSNumber
		}
		sess.Forget(keys)
	} else {
		var keys []string
		for _, p := range t.answer.Cards {
			if p.ApplianceType == "" || scope.Supported(p.ApplianceType) {
				keys = append(keys, p.PSNumber)
			}
		}
		sess.Remember(keys, sess.Turn, s.cfg.Limits.MaxRecent)
	}

	if topic := topicOf(t); topic != nil {
		sess.Topic = topic
	}

	if t.cache != nil {
		sess.CacheBundles(t.cache.Entries())
	}
}

// topicOf derives the conversation topic a turn established, if any.
func topicOf(t *turn) *session.Topic {
	for i := len(t.observations) - 1; i >= 0; i-- {
		obs := t.observations[i]
		if !obs.OK() {
			continue
		}
		switch r := obs.Result.(type) {
		case tools.InstructionsResult:
			return &session.Topic{ApplianceType: r.ApplianceType, Symptom: r.Symptom}
		case tools.SymptomsResult:
			topic := &session.Topic{ApplianceType: r.ApplianceType}
			if len(r.Symptoms) == 1 {
				topic.Symptom = r.Symptoms[0].Name
			} else if sym := obs.StringArg("symptom"); sym != "" {
				topic.Symptom = sym
			}
			return topic
		}
	}

	appliance := scope.Appliance(t.query)
	if appliance == "" {
		return nil
	}
	if t.sess.Topic != nil && strings.EqualFold(t.sess.Topic.ApplianceType, appliance) {
		return nil
	}
	return &session.Topic{ApplianceType: appliance}
}

// outcome maps how the turn ended onto the shared taxonomy, for logs.
func (t *turn) outcome() apperr.Kind {
	switch {
	case len(t.rejections) > 0:
		return apperr.KindOutOfScope
	case t.state == Aborted:
		return apperr.KindLoopExhausted
	default:
		return apperr.KindNone
	}
}
