package agent

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/resolver"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/internal/tools"
)

// drain runs the planner to completion, answering every call with reply.
func drain(t *testing.T, step Step, reply func(d Decision) tools.Observation) []Decision {
	t.Helper()

	d := NewPlanDecider()
	var out []Decision
	for i := 0; i < 20; i++ {
		dec, err := d.Decide(context.Background(), step)
		if err != nil {
			t.Fatalf("decide: %v", err)
		}
		if dec.Finish {
			return out
		}
		out = append(out, dec)

		obs := tools.Observation{Tool: dec.Tool, Args: dec.Args}
		if reply != nil {
			obs = reply(dec)
		}
		step.Observations = append(step.Observations, obs)
		step.Memo = dec.Memo
	}
	t.Fatal("planner did not finish")
	return nil
}

func toolNames(ds []Decision) []string {
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Tool)
	}
	return names
}

func stepFor(query string, sess *session.Session) Step {
	res := resolver.New(0).Resolve(query, sess)
	return Step{Query: query, Resolution: res, Topic: res.Topic}
}

func TestPlanInitialCalls(t *testing.T) {
	leakySession := session.New("s")
	leakySession.Topic = &session.Topic{ApplianceType: "dishwasher", Symptom: "Leaking"}

	tests := []struct {
		name     string
		query    string
		sess     *session.Session
		expected []string
	}{
		{"install", "How can I install part number PS11752778?", nil, []string{"get_part", "search_repair_stories"}},
		{"plain part", "Tell me about PS11752778", nil, []string{"get_part"}},
		{"reviews and install", "Is PS11752778 any good and is it easy to install?", nil, []string{"get_part", "search_repair_stories", "search_reviews"}},
		{"models", "What models does PS3406971 fit?", nil, []string{"get_part", "get_compatible_models"}},
		{"compatibility", "Does PS3406971 fit my WDT780SAEM1?", nil, []string{"check_compatibility"}},
		{"compare", "Compare PS11752778 and PS3406971", nil, []string{"compare_parts"}},
		{"symptom", "My dishwasher is leaking", nil, []string{"get_symptoms"}},
		{"browse", "I need a water filter for my fridge", nil, []string{"search_parts"}},
		{"check with topic", "How do I check the door gasket?", leakySession, []string{"get_repair_instructions"}},
		{"unresolved", "How do I install this part?", nil, []string{}},
		{"nothing to do", "hello there", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toolNames(drain(t, stepFor(tt.query, tt.sess), nil))
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("tool sequence mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanSymptomUsesTopicAppliance(t *testing.T) {
	sess := session.New("s")
	sess.Topic = &session.Topic{ApplianceType: "refrigerator"}

	calls := drain(t, stepFor("now there is water leaking on the floor", sess), nil)
	if len(calls) != 1 || calls[0].Tool != "get_symptoms" {
		t.Fatalf("expected get_symptoms, got %v", toolNames(calls))
	}
	obs := tools.Observation{Args: calls[0].Args}
	if obs.StringArg("appliance_type") != "refrigerator" || obs.StringArg("symptom") != "leak" {
		t.Errorf("expected refrigerator/leak, got %s", calls[0].Args)
	}
}

func TestPlanRetriesSymptomsUnfiltered(t *testing.T) {
	calls := drain(t, stepFor("my dishwasher is making a rattling noise", nil), func(d Decision) tools.Observation {
		obs := tools.Observation{Tool: d.Tool, Args: d.Args}
		if obs.StringArg("symptom") != "" {
			obs.Failure = &tools.Failure{Kind: apperr.KindNotFound, Message: "no match"}
		}
		return obs
	})

	if len(calls) != 2 {
		t.Fatalf("expected a filtered and an unfiltered call, got %v", toolNames(calls))
	}
	second := tools.Observation{Args: calls[1].Args}
	if second.StringArg("symptom") != "" || second.StringArg("appliance_type") != "dishwasher" {
		t.Errorf("expected unfiltered dishwasher symptoms, got %s", calls[1].Args)
	}
}

func TestPlanFollowsResolvedManufacturerNumber(t *testing.T) {
	calls := drain(t, stepFor("Does WPW10321304 fit WRS325SDHZ01?", nil), func(d Decision) tools.Observation {
		obs := tools.Observation{Tool: d.Tool, Args: d.Args}
		if d.Tool != "resolve_part" {
			return obs
		}
		if obs.StringArg("query") == "WPW10321304" {
			obs.Result = tools.ResolveResult{Query: "WPW10321304", Resolved: true, PSNumber: "PS11752778"}
		} else {
			obs.Failure = &tools.Failure{Kind: apperr.KindNotFound, Message: "no part"}
		}
		return obs
	})

	expected := []string{"resolve_part", "resolve_part", "check_compatibility"}
	if diff := cmp.Diff(expected, toolNames(calls)); diff != "" {
		t.Fatalf("tool sequence mismatch (-want +got):\n%s", diff)
	}
	obs := tools.Observation{Args: calls[2].Args}
	if obs.StringArg("ps_number") != "PS11752778" || obs.StringArg("model_number") != "WRS325SDHZ01" {
		t.Errorf("expected PS11752778 against WRS325SDHZ01, got %s", calls[2].Args)
	}
}

func TestPlanModelOnlyListsCompatibleParts(t *testing.T) {
	calls := drain(t, stepFor("ice maker for WRS325SDHZ01", nil), func(d Decision) tools.Observation {
		obs := tools.Observation{Tool: d.Tool, Args: d.Args}
		if d.Tool == "resolve_part" {
			obs.Failure = &tools.Failure{Kind: apperr.KindNotFound, Message: "no part"}
		}
		return obs
	})

	expected := []string{"resolve_part", "get_compatible_parts"}
	if diff := cmp.Diff(expected, toolNames(calls)); diff != "" {
		t.Fatalf("tool sequence mismatch (-want +got):\n%s", diff)
	}
	obs := tools.Observation{Args: calls[1].Args}
	if obs.StringArg("part_type") != "ice maker" {
		t.Errorf("expected the ice maker part type, got %s", calls[1].Args)
	}
}

func TestPlanNeverRepeatsACall(t *testing.T) {
	// every resolve answers with the same part, so the follow-ups collide
	calls := drain(t, stepFor("WPW10321304 or W10321304A install", nil), func(d Decision) tools.Observation {
		obs := tools.Observation{Tool: d.Tool, Args: d.Args}
		if d.Tool == "resolve_part" {
			obs.Result = tools.ResolveResult{Resolved: true, PSNumber: "PS11752778"}
		}
		return obs
	})

	seen := make(map[string]bool)
	for _, c := range calls {
		key := c.Tool + string(c.Args)
		if seen[key] {
			t.Errorf("expected no repeated call, got %s twice", key)
		}
		seen[key] = true
	}
}
