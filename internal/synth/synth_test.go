package synth

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/internal/tools"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

var (
	doorBin = partsdb.Part{
		PSNumber: "PS11752778", Name: "Refrigerator Door Shelf Bin", Price: 44.95, Availability: "In Stock",
		ApplianceType: "refrigerator", InstallDifficulty: "Really Easy", InstallTime: "Less than 15 mins",
		InstallVideoURL: "https://www.youtube.com/watch?v=zSCNN6KpDE8",
		URL:             "https://www.partselect.com/PS11752778-Whirlpool-WPW10321304-Refrigerator-Door-Shelf-Bin.htm",
		Rating:          4.9, NumReviews: 351,
	}
	wheel = partsdb.Part{PSNumber: "PS3406971", Name: "Lower Dishrack Wheel", Price: 6.95, ApplianceType: "dishwasher", Rating: 4.7}
	pump  = partsdb.Part{PSNumber: "PS11756150", Name: "Pump and Motor Assembly", Price: 67.5, ApplianceType: "dishwasher", Rating: 4.8}
)

func ok(seq int, tool string, result any) tools.Observation {
	return tools.Observation{Seq: seq, Tool: tool, Result: result}
}

func failed(seq int, tool string, kind apperr.Kind, args string) tools.Observation {
	return tools.Observation{Seq: seq, Tool: tool, Args: json.RawMessage(args), Failure: &tools.Failure{Kind: kind, Message: string(kind)}}
}

var keyRe = regexp.MustCompile(`PS\d+`)

// checkCitations asserts that every cited part is named together with its
// key and that PartKeys lists exactly the cited keys in text order.
func checkCitations(t *testing.T, a Answer) {
	t.Helper()

	if len(a.PartKeys) != len(a.Cards) {
		t.Fatalf("expected one card per key, got %d keys and %d cards", len(a.PartKeys), len(a.Cards))
	}
	last := -1
	for i, k := range a.PartKeys {
		if a.Cards[i].PSNumber != k {
			t.Errorf("card %d: expected %s, got %s", i, k, a.Cards[i].PSNumber)
		}
		cite := "**" + a.Cards[i].Name + "** (" + k + ")"
		pos := strings.Index(a.Text, cite)
		if pos < 0 {
			t.Errorf("expected %q in answer", cite)
		}
		if pos < last {
			t.Errorf("expected PartKeys in order of first appearance, %s is out of order", k)
		}
		last = pos
	}
	for _, c := range a.Cards {
		if n := strings.Count(a.Text, c.Name); n != strings.Count(a.Text, "**"+c.Name+"** ("+c.PSNumber+")") {
			t.Errorf("%s is mentioned without its key", c.Name)
		}
	}
}

func TestSpecificInstallAnswer(t *testing.T) {
	in := Input{
		Query: "How can I install part number PS11752778?",
		Focus: []string{"PS11752778"},
		Observations: []tools.Observation{
			ok(1, "get_part", tools.PartResult{Part: doorBin, Source: tools.SourceCatalog}),
			ok(2, "search_repair_stories", tools.TextsResult{
				PSNumber: "PS11752778", Kind: partsdb.KindStory, Part: doorBin,
				Hits: []tools.TextHit{{Annotation: partsdb.Annotation{
					Kind: partsdb.KindStory, Title: "Bin cracked", Body: "Lifted the old bin out and snapped the new one in.",
					Difficulty: "Really Easy", RepairTime: "Less than 15 mins",
				}}},
			}),
		},
	}

	a := Synthesize(in)
	if a.Mode != Specific {
		t.Fatalf("expected specific mode, got %s", a.Mode)
	}
	for _, want := range []string{"PS11752778", "Really Easy", "Less than 15 mins", doorBin.URL, doorBin.InstallVideoURL, "snapped the new one in"} {
		if !strings.Contains(a.Text, want) {
			t.Errorf("expected answer to contain %q:\n%s", want, a.Text)
		}
	}
	if len(a.PartKeys) != 1 || a.PartKeys[0] != "PS11752778" {
		t.Errorf("expected [PS11752778], got %v", a.PartKeys)
	}
	checkCitations(t, a)
}

func TestOverviewListsWithoutSteps(t *testing.T) {
	in := Input{
		Query: "my dishwasher is not draining",
		Observations: []tools.Observation{
			ok(1, "get_symptoms", tools.SymptomsResult{ApplianceType: "dishwasher", Symptoms: []partsdb.Symptom{
				{ApplianceType: "dishwasher", Name: "Not draining", Percentage: 30, PartTypes: []string{"Drain Pump", "Check Valve"}},
			}}),
			ok(2, "search_parts", tools.PartsResult{Parts: []partsdb.Part{pump, wheel}, Count: 2}),
		},
	}

	a := Synthesize(in)
	if a.Mode != Overview {
		t.Fatalf("expected overview mode, got %s", a.Mode)
	}
	if !strings.Contains(a.Text, "30% of reported repairs") || !strings.Contains(a.Text, "Drain Pump, Check Valve") {
		t.Errorf("expected symptom summary, got:\n%s", a.Text)
	}
	if strings.Contains(a.Text, "1. ") || strings.Contains(a.Text, "How to check") {
		t.Errorf("expected no step-by-step detail in an overview:\n%s", a.Text)
	}
	if len(a.PartKeys) != 2 || a.PartKeys[0] != "PS11756150" {
		t.Errorf("expected pump then wheel, got %v", a.PartKeys)
	}
	checkCitations(t, a)
}

func TestSpecificRepairInstructions(t *testing.T) {
	in := Input{
		Query: "how do I check the water inlet valve?",
		Observations: []tools.Observation{
			ok(1, "get_repair_instructions", tools.InstructionsResult{
				ApplianceType: "refrigerator", Symptom: "Ice maker not making ice",
				Instructions: []partsdb.RepairInstruction{{
					ApplianceType: "refrigerator", Symptom: "Ice maker not making ice", PartType: "Water Inlet Valve",
					Steps: []string{"Unplug the refrigerator.", "Test the solenoid with a multimeter."},
				}},
			}),
		},
	}

	a := Synthesize(in)
	if a.Mode != Specific {
		t.Fatalf("expected specific mode, got %s", a.Mode)
	}
	if !strings.Contains(a.Text, "1. Unplug the refrigerator.") || !strings.Contains(a.Text, "2. Test the solenoid") {
		t.Errorf("expected numbered steps verbatim:\n%s", a.Text)
	}
}

func TestCompatibilityAnswers(t *testing.T) {
	tests := []struct {
		name       string
		compatible bool
		want       string
	}{
		{"fits", true, "Yes, **Lower Dishrack Wheel** (PS3406971) fits model **WDT780SAEM1** (Whirlpool Dishwasher)."},
		{"does not fit", false, "No, **Lower Dishrack Wheel** (PS3406971) is not listed as compatible with model **WDT780SAEM1**."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tools.CompatibilityResult{PSNumber: wheel.PSNumber, ModelNumber: "WDT780SAEM1", Compatible: tt.compatible, Part: wheel}
			if tt.compatible {
				res.Brand, res.Description = "Whirlpool", "Dishwasher"
			}
			a := Synthesize(Input{Focus: []string{"PS3406971"}, Observations: []tools.Observation{ok(1, "check_compatibility", res)}})

			if a.Mode != Compatibility {
				t.Fatalf("expected compatibility mode, got %s", a.Mode)
			}
			if !strings.Contains(a.Text, tt.want) {
				t.Errorf("expected %q in:\n%s", tt.want, a.Text)
			}
			checkCitations(t, a)
		})
	}
}

func TestComparisonKeepsOrderAndReportsMissing(t *testing.T) {
	in := Input{
		Focus: []string{"PS11756150", "PS3406971", "PS999"},
		Observations: []tools.Observation{
			ok(1, "compare_parts", tools.ComparisonResult{
				Parts:   []tools.PartResult{{Part: pump}, {Part: wheel}},
				Missing: []tools.MissingPart{{PSNumber: "PS999", Failure: tools.Failure{Kind: apperr.KindNotFound}}},
			}),
		},
	}

	a := Synthesize(in)
	if a.Mode != Comparison {
		t.Fatalf("expected comparison mode, got %s", a.Mode)
	}
	if diff := cmp.Diff([]string{"PS11756150", "PS3406971"}, a.PartKeys); diff != "" {
		t.Errorf("part keys mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(a.Text, "least expensive is **Lower Dishrack Wheel** (PS3406971)") {
		t.Errorf("expected cheapest part named:\n%s", a.Text)
	}
	if !strings.Contains(a.Text, "I couldn't find PS999.") {
		t.Errorf("expected missing key reported:\n%s", a.Text)
	}
	checkCitations(t, a)
}

func TestOutOfScopeAnswers(t *testing.T) {
	a := Synthesize(Input{Query: "What's the weather?", OutOfScope: true})
	if a.Mode != OutOfScope || a.Text != scope.OutOfScopeMessage {
		t.Errorf("expected fixed out-of-scope message, got %s: %q", a.Mode, a.Text)
	}

	a = Synthesize(Input{
		Rejections: []scope.Rejection{{PSNumber: "PS777", Name: "Washer Drain Pump", ApplianceType: "washer"}},
		Observations: []tools.Observation{
			ok(1, "get_part", tools.PartResult{Part: partsdb.Part{PSNumber: "PS777", Name: "Washer Drain Pump", ApplianceType: "washer"}, OutOfScope: true}),
		},
	})
	if a.Mode != OutOfScope {
		t.Fatalf("expected out-of-scope mode, got %s", a.Mode)
	}
	if !strings.Contains(a.Text, "PS777") || !strings.Contains(a.Text, "Washer") {
		t.Errorf("expected rejection to name the part and its appliance:\n%s", a.Text)
	}
	if len(a.PartKeys) != 0 || len(a.Cards) != 0 {
		t.Errorf("expected fetched data discarded, got keys %v", a.PartKeys)
	}
}

func TestExhaustedListsPartialEvidence(t *testing.T) {
	in := Input{
		Exhausted: true,
		Observations: []tools.Observation{
			ok(1, "get_part", tools.PartResult{Part: wheel}),
			failed(2, "get_part", apperr.KindNotFound, `{"ps_number":"PS1"}`),
		},
	}

	a := Synthesize(in)
	if a.Mode != Exhausted {
		t.Fatalf("expected exhausted mode, got %s", a.Mode)
	}
	if !strings.Contains(a.Text, "wasn't able to finish") {
		t.Errorf("expected the answer to admit it could not finish:\n%s", a.Text)
	}
	if len(a.PartKeys) != 1 || a.PartKeys[0] != "PS3406971" {
		t.Errorf("expected partial evidence PS3406971, got %v", a.PartKeys)
	}
	checkCitations(t, a)
}

func TestFailureOnlyTurns(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		mode Mode
		want string
	}{
		{
			"not found",
			Input{Observations: []tools.Observation{failed(1, "get_part", apperr.KindNotFound, `{"ps_number":"ps999"}`)}},
			NotFound, "I couldn't find PS999",
		},
		{
			"upstream",
			Input{Observations: []tools.Observation{failed(1, "get_part", apperr.KindTimeout, `{"ps_number":"PS999"}`)}},
			Exhausted, "timed out or failed",
		},
		{
			"unresolved reference",
			Input{Unresolved: true},
			Clarify, "Which part do you mean?",
		},
		{
			"nothing asked",
			Input{Query: "can you help with my fridge?"},
			Clarify, "What are you working on?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Synthesize(tt.in)
			if a.Mode != tt.mode {
				t.Errorf("expected %s, got %s", tt.mode, a.Mode)
			}
			if !strings.Contains(a.Text, tt.want) {
				t.Errorf("expected %q in:\n%s", tt.want, a.Text)
			}
			if len(a.PartKeys) != 0 {
				t.Errorf("expected no cited parts, got %v", a.PartKeys)
			}
		})
	}
}

func TestClarifyListsCandidates(t *testing.T) {
	a := Synthesize(Input{Observations: []tools.Observation{
		ok(1, "resolve_part", tools.ResolveResult{Query: "dishwasher part", Confidence: "low", Candidates: []partsdb.Part{wheel, pump}}),
	}})

	if a.Mode != Clarify {
		t.Fatalf("expected clarify mode, got %s", a.Mode)
	}
	if len(a.PartKeys) != 2 {
		t.Errorf("expected both candidates cited, got %v", a.PartKeys)
	}
	checkCitations(t, a)
}

func TestEveryKeyInTextIsCitedOrMissing(t *testing.T) {
	inputs := []Input{
		{Focus: []string{"PS11752778"}, Observations: []tools.Observation{ok(1, "get_part", tools.PartResult{Part: doorBin})}},
		{Observations: []tools.Observation{ok(1, "search_parts_semantic", tools.SemanticResult{Hits: []tools.ScoredPart{{Part: pump}, {Part: wheel}}})}},
		{Exhausted: true, Observations: []tools.Observation{ok(1, "compare_parts", tools.ComparisonResult{Parts: []tools.PartResult{{Part: pump}, {Part: doorBin}}})}},
	}

	for i, in := range inputs {
		a := Synthesize(in)
		cited := make(map[string]bool)
		for _, k := range a.PartKeys {
			cited[k] = true
		}
		for _, k := range keyRe.FindAllString(a.Text, -1) {
			if !cited[k] {
				t.Errorf("input %d: %s appears in the answer but was not cited", i, k)
			}
		}
		checkCitations(t, a)
	}
}

func TestTokensReassemble(t *testing.T) {
	text := "Here's what I found for **Pump and Motor Assembly** (PS11756150):\n- Price: $67.50\n\nDone."
	toks := Tokens(text)
	if len(toks) < 5 {
		t.Fatalf("expected several tokens, got %d", len(toks))
	}
	if strings.Join(toks, "") != text {
		t.Errorf("expected tokens to reassemble the text exactly")
	}
	if toks[0] != "Here's " {
		t.Errorf("expected first token %q, got %q", "Here's ", toks[0])
	}
	if Tokens("") != nil {
		t.Error("expected no tokens for empty text")
	}
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		n        int
		expected string
	}{
		{"short", "fits fine", 20, "fits fine"},
		{"word boundary", "snapped the new bin in place", 12, "snapped the..."},
		{"no space ascii", "abcdefghij", 4, "abcd..."},
		{"no space multibyte", "ééééé", 5, "éé..."},
		{"collapses whitespace", "a   b\n\tc", 10, "a b c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := excerpt(tt.in, tt.n)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("expected valid UTF-8, got %q", got)
			}
		})
	}
}
