// Package synth turns the evidence gathered by a turn into the answer text.
//
// Every part that appears in an answer is written through doc.cite, which
// always emits the part's PS number, so the answer cannot describe a part
// without naming its key. Synthesize is a pure function of its input.
package synth

import (
	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/internal/tools"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

type Mode string

const (
	// Overview lists candidate parts or part types for a symptom without
	// going into steps.
	Overview Mode = "overview"
	// Specific covers one named part, or the checks for one part type.
	Specific      Mode = "specific"
	Compatibility Mode = "compatibility"
	Comparison    Mode = "comparison"
	OutOfScope    Mode = "out_of_scope"
	// Exhausted is the answer of an aborted turn: it says the question could
	// not be settled and lists only the evidence that was gathered.
	Exhausted Mode = "exhausted"
	NotFound  Mode = "not_found"
	Clarify   Mode = "clarify"
)

type Input struct {
	Query        string
	Observations []tools.Observation
	// Focus holds the parts the query names or refers back to.
	Focus  []string
	Models []string
	Topic  *session.Topic

	// OutOfScope is set by a stage-1 rejection, Rejections by stage 2.
	OutOfScope bool
	Rejections []scope.Rejection

	Exhausted  bool
	Unresolved bool
}

type Answer struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
	// PartKeys are the keys of every part cited in Text, in order of first
	// appearance.
	PartKeys []string `json:"part_keys"`
	// Cards are the cited parts, in PartKeys order.
	Cards []partsdb.Part `json:"cards"`
}

func Synthesize(in Input) Answer {
	if in.OutOfScope || len(in.Rejections) > 0 {
		return Answer{Text: scope.RejectionMessage(in.Rejections), Mode: OutOfScope}
	}

	ev := collect(in.Observations)
	mode := pickMode(in, ev)

	d := newDoc()
	switch mode {
	case Compatibility:
		renderCompatibility(d, in, ev)
	case Comparison:
		renderComparison(d, in, ev)
	case Specific:
		renderSpecific(d, in, ev)
	case Overview:
		renderOverview(d, in, ev)
	case Exhausted:
		renderExhausted(d, in, ev)
	case NotFound:
		renderNotFound(d, in, ev)
	default:
		renderClarify(d, in, ev)
	}

	return d.answer(mode)
}

func pickMode(in Input, ev *evidence) Mode {
	if ev.successes == 0 {
		switch {
		case in.Unresolved:
			return Clarify
		case in.Exhausted || ev.transient():
			return Exhausted
		case ev.notFound():
			return NotFound
		default:
			return Clarify
		}
	}

	switch {
	case in.Exhausted:
		return Exhausted
	case len(ev.compat) > 0:
		return Compatibility
	case ev.comparison != nil || (len(in.Focus) > 1 && len(ev.focusParts(in.Focus)) > 1):
		return Comparison
	case len(ev.candidates) > 0 && ev.focus(in.Focus) == nil:
		return Clarify
	case len(ev.instructions) > 0 || ev.focus(in.Focus) != nil:
		return Specific
	case len(ev.symptoms) > 0 || len(ev.listed) > 0:
		return Overview
	case ev.notFound():
		return NotFound
	default:
		return Clarify
	}
}
