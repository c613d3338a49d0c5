package tools

import (
	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// where a part record came from
const (
	SourceCatalog = "catalog"
	SourceLive    = "live"
)

type PartResult struct {
	Part       partsdb.Part `json:"part"`
	Source     string       `json:"source"`
	OutOfScope bool         `json:"out_of_scope"`
}

func newPartResult(p partsdb.Part, source string) PartResult {
	return PartResult{Part: p, Source: source, OutOfScope: outOfScope(p)}
}

func outOfScope(p partsdb.Part) bool {
	return p.ApplianceType != "" && p.ApplianceType != "unknown" && !scope.Supported(p.ApplianceType)
}

func (r PartResult) Surfaced() []Surfaced {
	return []Surfaced{{Part: r.Part, OutOfScope: r.OutOfScope}}
}

type ResolveResult struct {
	Query      string         `json:"query"`
	Resolved   bool           `json:"resolved"`
	PSNumber   string         `json:"ps_number,omitempty"`
	Confidence string         `json:"confidence"`
	Method     string         `json:"method"`
	Part       *partsdb.Part  `json:"part,omitempty"`
	Candidates []partsdb.Part `json:"candidates,omitempty"`
}

func (r ResolveResult) Surfaced() []Surfaced {
	var out []Surfaced
	if r.Part != nil {
		out = append(out, Surfaced{Part: *r.Part, OutOfScope: outOfScope(*r.Part)})
	}
	for _, p := range r.Candidates {
		out = append(out, Surfaced{Part: p, OutOfScope: outOfScope(p)})
	}
	return out
}

type ModelResult struct {
	Query   string               `json:"query"`
	Exact   bool                 `json:"exact"`
	Matches []partsdb.ModelMatch `json:"matches"`
}

type BundleResult struct {
	Bundle     *partsdb.Bundle `json:"bundle"`
	Source     string          `json:"source"`
	OutOfScope bool            `json:"out_of_scope"`
}

func (r BundleResult) Surfaced() []Surfaced {
	return []Surfaced{{Part: r.Bundle.Part, OutOfScope: r.OutOfScope}}
}

// PartsResult is a plain list of parts from a browse or relation lookup.
type PartsResult struct {
	Parts []partsdb.Part `json:"parts"`
	Count int            `json:"count"`
	Note  string         `json:"note,omitempty"`
}

func (r PartsResult) Surfaced() []Surfaced {
	out := make([]Surfaced, 0, len(r.Parts))
	for _, p := range r.Parts {
		out = append(out, Surfaced{Part: p, OutOfScope: outOfScope(p)})
	}
	return out
}

type ScoredPart struct {
	Part  partsdb.Part `json:"part"`
	Score float64      `json:"score"`
}

type SemanticResult struct {
	Query string       `json:"query"`
	Hits  []ScoredPart `json:"hits"`
}

func (r SemanticResult) Surfaced() []Surfaced {
	out := make([]Surfaced, 0, len(r.Hits))
	for _, h := range r.Hits {
		out = append(out, Surfaced{Part: h.Part, OutOfScope: outOfScope(h.Part)})
	}
	return out
}

type CompatibilityResult struct {
	PSNumber    string       `json:"ps_number"`
	ModelNumber string       `json:"model_number"`
	Compatible  bool         `json:"compatible"`
	Brand       string       `json:"brand,omitempty"`
	Description string       `json:"description,omitempty"`
	Source      string       `json:"source"`
	Part        partsdb.Part `json:"part"`
}

func (r CompatibilityResult) Surfaced() []Surfaced {
	return []Surfaced{{Part: r.Part, OutOfScope: outOfScope(r.Part)}}
}

type ModelsResult struct {
	PSNumber string                  `json:"ps_number"`
	Count    int                     `json:"compatible_model_count"`
	Models   []partsdb.Compatibility `json:"models"`
	Source   string                  `json:"source"`
	Part     partsdb.Part            `json:"part"`
}

func (r ModelsResult) Surfaced() []Surfaced {
	return []Surfaced{{Part: r.Part, OutOfScope: outOfScope(r.Part)}}
}

type SymptomsResult struct {
	ApplianceType string            `json:"appliance_type"`
	Symptoms      []partsdb.Symptom `json:"symptoms"`
}

type InstructionsResult struct {
	ApplianceType string                      `json:"appliance_type"`
	Symptom       string                      `json:"symptom"`
	Instructions  []partsdb.RepairInstruction `json:"instructions"`
}

type TextHit struct {
	Annotation partsdb.Annotation `json:"annotation"`
	Score      float64            `json:"score,omitempty"`
}

// TextsResult holds Q&A, repair stories or reviews of one part.
type TextsResult struct {
	PSNumber string           `json:"ps_number"`
	Kind     partsdb.TextKind `json:"kind"`
	Source   string           `json:"source"`
	Ranked   bool             `json:"ranked"`
	Hits     []TextHit        `json:"hits"`
	Part     partsdb.Part     `json:"part"`
}

func (r TextsResult) Surfaced() []Surfaced {
	return []Surfaced{{Part: r.Part, OutOfScope: outOfScope(r.Part)}}
}

type MissingPart struct {
	PSNumber string  `json:"ps_number"`
	Failure  Failure `json:"failure"`
}

// ComparisonResult lists parts in the order they were asked for.
type ComparisonResult struct {
	Parts   []PartResult  `json:"parts"`
	Missing []MissingPart `json:"missing,omitempty"`
}

func (r ComparisonResult) Surfaced() []Surfaced {
	out := make([]Surfaced, 0, len(r.Parts))
	for _, p := range r.Parts {
		out = append(out, p.Surfaced()...)
	}
	return out
}
