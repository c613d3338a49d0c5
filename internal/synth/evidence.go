package synth

import (
	"strings"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/tools"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// evidence is the successful tool output of a turn, folded by kind.
type evidence struct {
	detailOrder []string
	details     map[string]partsdb.Part
	live        map[string]bool

	listed     []partsdb.Part
	candidates []partsdb.Part

	compat     []tools.CompatibilityResult
	models     map[string]tools.ModelsResult
	comparison *tools.ComparisonResult

	symptoms     []partsdb.Symptom
	instructions []partsdb.RepairInstruction

	texts    map[string]map[partsdb.TextKind][]partsdb.Annotation
	seenText map[string]bool

	failures  []tools.Observation
	successes int
}

func collect(observations []tools.Observation) *evidence {
	ev := &evidence{
		details:  make(map[string]partsdb.Part),
		live:     make(map[string]bool),
		models:   make(map[string]tools.ModelsResult),
		texts:    make(map[string]map[partsdb.TextKind][]partsdb.Annotation),
		seenText: make(map[string]bool),
	}

	seenSymptom := make(map[string]bool)
	seenListed := make(map[string]bool)

	for _, obs := range observations {
		if !obs.OK() {
			ev.failures = append(ev.failures, obs)
			continue
		}
		ev.successes++

		switch r := obs.Result.(type) {
		case tools.PartResult:
			ev.detail(r.Part, r.Source)
		case tools.BundleResult:
			ev.detail(r.Bundle.Part, r.Source)
			for _, a := range r.Bundle.Annotations {
				ev.text(r.Bundle.Part.PSNumber, a)
			}
			if _, ok := ev.models[r.Bundle.Part.PSNumber]; !ok && len(r.Bundle.Models) > 0 {
				ev.models[r.Bundle.Part.PSNumber] = tools.ModelsResult{
					PSNumber: r.Bundle.Part.PSNumber,
					Count:    len(r.Bundle.Models),
					Models:   r.Bundle.Models,
					Source:   r.Source,
					Part:     r.Bundle.Part,
				}
			}
		case tools.ResolveResult:
			if r.Resolved && r.Part != nil {
				ev.detail(*r.Part, tools.SourceCatalog)
			}
			if !r.Resolved {
				ev.candidates = append(ev.candidates, r.Candidates...)
			}
		case tools.CompatibilityResult:
			ev.detail(r.Part, r.Source)
			ev.compat = append(ev.compat, r)
		case tools.ModelsResult:
			ev.detail(r.Part, r.Source)
			ev.models[r.PSNumber] = r
		case tools.TextsResult:
			ev.detail(r.Part, r.Source)
			for _, h := range r.Hits {
				ev.text(r.PSNumber, h.Annotation)
			}
		case tools.PartsResult:
			for _, p := range r.Parts {
				if !seenListed[p.PSNumber] {
					seenListed[p.PSNumber] = true
					ev.listed = append(ev.listed, p)
				}
			}
		case tools.SemanticResult:
			for _, h := range r.Hits {
				if !seenListed[h.Part.PSNumber] {
					seenListed[h.Part.PSNumber] = true
					ev.listed = append(ev.listed, h.Part)
				}
			}
		case tools.ComparisonResult:
			c := r
			ev.comparison = &c
		case tools.SymptomsResult:
			for _, s := range r.Symptoms {
				key := s.ApplianceType + "/" + strings.ToLower(s.Name)
				if !seenSymptom[key] {
					seenSymptom[key] = true
					ev.symptoms = append(ev.symptoms, s)
				}
			}
		case tools.InstructionsResult:
			ev.instructions = append(ev.instructions, r.Instructions...)
		}
	}

	return ev
}

func (ev *evidence) detail(p partsdb.Part, source string) {
	if p.PSNumber == "" {
		return
	}
	if _, ok := ev.details[p.PSNumber]; !ok {
		ev.detailOrder = append(ev.detailOrder, p.PSNumber)
		ev.details[p.PSNumber] = p
	}
	if source == tools.SourceLive {
		ev.live[p.PSNumber] = true
	}
}

func (ev *evidence) text(key string, a partsdb.Annotation) {
	id := key + "|" + string(a.Kind) + "|" + a.LocalID + "|" + a.Title + "|" + a.Body
	if ev.seenText[id] {
		return
	}
	ev.seenText[id] = true

	byKind, ok := ev.texts[key]
	if !ok {
		byKind = make(map[partsdb.TextKind][]partsdb.Annotation)
		ev.texts[key] = byKind
	}
	byKind[a.Kind] = append(byKind[a.Kind], a)
}

// focus returns the one part the answer is about: the first focus key that
// was fetched, or the only fetched part when the query named none.
func (ev *evidence) focus(keys []string) *partsdb.Part {
	for _, k := range keys {
		if p, ok := ev.details[partsdb.NormalizePSNumber(k)]; ok {
			return &p
		}
	}
	if len(keys) == 0 && len(ev.detailOrder) == 1 {
		p := ev.details[ev.detailOrder[0]]
		return &p
	}
	return nil
}

func (ev *evidence) focusParts(keys []string) []partsdb.Part {
	var out []partsdb.Part
	for _, k := range keys {
		if p, ok := ev.details[partsdb.NormalizePSNumber(k)]; ok {
			out = append(out, p)
		}
	}
	return out
}

// gathered lists every fetched part once, details first.
func (ev *evidence) gathered() []partsdb.Part {
	seen := make(map[string]bool)
	var out []partsdb.Part
	add := func(p partsdb.Part) {
		if p.PSNumber != "" && !seen[p.PSNumber] {
			seen[p.PSNumber] = true
			out = append(out, p)
		}
	}

	for _, k := range ev.detailOrder {
		add(ev.details[k])
	}
	if ev.comparison != nil {
		for _, pr := range ev.comparison.Parts {
			add(pr.Part)
		}
	}
	for _, p := range ev.listed {
		add(p)
	}
	return out
}

func (ev *evidence) transient() bool {
	for _, f := range ev.failures {
		if f.FailureKind().Retryable() {
			return true
		}
	}
	return false
}

func (ev *evidence) notFound() bool {
	for _, f := range ev.failures {
		if f.FailureKind() == apperr.KindNotFound {
			return true
		}
	}
	return false
}

// missingKeys are part keys named in failed lookups, in call order.
func (ev *evidence) missingKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, f := range ev.failures {
		if f.FailureKind() != apperr.KindNotFound {
			continue
		}
		if k := partsdb.NormalizePSNumber(f.StringArg("ps_number")); k != "" {
			if _, found := ev.details[k]; !found && !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	if ev.comparison != nil {
		for _, m := range ev.comparison.Missing {
			if !seen[m.PSNumber] {
				seen[m.PSNumber] = true
				keys = append(keys, m.PSNumber)
			}
		}
	}
	return keys
}
