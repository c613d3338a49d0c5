package agent

import (
	"context"
	"strings"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/internal/tools"
)

const maxCompare = 5

// PlanDecider picks tools with fixed rules over the query and the evidence
// gathered so far. It runs without an LLM and always makes the same calls
// for the same turn.
type PlanDecider struct{}

func NewPlanDecider() *PlanDecider {
	return &PlanDecider{}
}

// plan is the per-turn state PlanDecider keeps in Decision.Memo.
type plan struct {
	query     string
	in        intent
	appliance string
	models    []string
	queue     []Decision
	issued    map[string]bool
	seen      int
	resolved  bool
}

func (d *PlanDecider) Decide(_ context.Context, step Step) (Decision, error) {
	p, _ := step.Memo.(*plan)
	if p == nil {
		p = newPlan(step)
	}

	for ; p.seen < len(step.Observations); p.seen++ {
		p.react(step.Observations[p.seen])
	}

	for len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]

		key := next.Tool + string(next.Args)
		if p.issued[key] {
			continue
		}
		p.issued[key] = true

		next.Memo = p
		return next, nil
	}

	return Decision{Finish: true, Memo: p}, nil
}

func newPlan(step Step) *plan {
	p := &plan{
		query:  step.Query,
		in:     readIntent(step.Query),
		models: step.Resolution.Models,
		issued: make(map[string]bool),
	}

	p.appliance = scope.Appliance(step.Query)
	if p.appliance == "" && step.Topic != nil {
		p.appliance = step.Topic.ApplianceType
	}

	res := step.Resolution
	targets := res.Targets()

	switch {
	case len(targets) > 1:
		if len(targets) > maxCompare {
			targets = targets[:maxCompare]
		}
		p.push(Call("compare_parts", map[string]any{"ps_numbers": targets}))
		return p
	case len(targets) == 1:
		p.partCalls(targets[0], p.models)
		return p
	case res.Unresolved:
		logger.Debug("plan: reference unresolved, nothing to look up")
		return p
	}

	for _, tok := range p.models {
		p.push(Call("resolve_part", map[string]any{"query": tok}))
	}

	topicSymptom := ""
	if step.Topic != nil {
		topicSymptom = step.Topic.Symptom
	}

	switch {
	case p.in.check && topicSymptom != "" && p.appliance != "":
		args := map[string]any{"appliance_type": p.appliance, "symptom": topicSymptom}
		if p.in.partType != "" {
			args["part_type"] = p.in.partType
		}
		p.push(Call("get_repair_instructions", args))
	case p.in.symptom && p.appliance != "":
		args := map[string]any{"appliance_type": p.appliance}
		if p.in.filter != "" {
			args["symptom"] = p.in.filter
		}
		p.push(Call("get_symptoms", args))
	case p.in.partType != "" && len(p.models) == 0:
		args := map[string]any{"part_type": p.in.partType}
		if p.appliance != "" {
			args["appliance_type"] = p.appliance
		}
		p.push(Call("search_parts", args))
	}

	return p
}

func (p *plan) push(d Decision) {
	p.queue = append(p.queue, d)
}

// partCalls queues the lookups for a question about one known part.
func (p *plan) partCalls(key string, models []string) {
	if len(models) > 0 && !p.in.models {
		p.push(Call("check_compatibility", map[string]any{"ps_number": key, "model_number": models[0]}))
		return
	}

	p.push(Call("get_part", map[string]any{"ps_number": key}))
	for _, ts := range p.in.textSearches(p.query) {
		p.push(Call(ts.tool, map[string]any{"ps_number": key, "query": ts.query}))
	}
	if p.in.models {
		p.push(Call("get_compatible_models", map[string]any{"ps_number": key}))
	}
}

// react queues follow-ups an observation makes possible.
func (p *plan) react(obs tools.Observation) {
	switch obs.Tool {
	case "resolve_part":
		if r, ok := obs.Result.(tools.ResolveResult); ok && r.Resolved {
			p.resolved = true
			p.partCalls(r.PSNumber, without(p.models, obs.StringArg("query")))
			return
		}
		// an identifier that is no part is usually an appliance model
		if obs.FailureKind() == apperr.KindNotFound && !p.resolved {
			args := map[string]any{"model_number": obs.StringArg("query")}
			if p.in.partType != "" {
				args["part_type"] = p.in.partType
			}
			p.push(Call("get_compatible_parts", args))
		}

	case "get_symptoms":
		if obs.FailureKind() == apperr.KindNotFound && obs.StringArg("symptom") != "" {
			p.push(Call("get_symptoms", map[string]any{"appliance_type": obs.StringArg("appliance_type")}))
		}
	}
}

func without(list []string, drop string) []string {
	var out []string
	for _, s := range list {
		if !strings.EqualFold(s, drop) {
			out = append(out, s)
		}
	}
	return out
}
