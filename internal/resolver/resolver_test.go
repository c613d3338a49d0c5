package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bowerhall/partscout/internal/session"
)

func sessionWith(turn int, refs ...session.RecentRef) *session.Session {
	s := session.New("test")
	s.Turn = turn
	s.Recent = refs
	return s
}

func TestResolveSingularPronoun(t *testing.T) {
	r := New(3)
	sess := sessionWith(1, session.RecentRef{Key: "PS11752778", Turn: 1})

	res := r.Resolve("is this compatible with WDT780SAEM1?", sess)

	if !res.Resolved || res.Plural {
		t.Fatalf("expected singular resolution, got %+v", res)
	}
	if len(res.Keys) != 1 || res.Keys[0] != "PS11752778" {
		t.Errorf("expected [PS11752778], got %v", res.Keys)
	}
	if len(res.Models) != 1 || res.Models[0] != "WDT780SAEM1" {
		t.Errorf("expected model WDT780SAEM1, got %v", res.Models)
	}
}

func TestResolvePicksMostRecent(t *testing.T) {
	r := New(3)
	sess := sessionWith(2,
		session.RecentRef{Key: "PS2", Turn: 2},
		session.RecentRef{Key: "PS1", Turn: 1},
	)

	res := r.Resolve("how do I install it?", sess)
	if len(res.Keys) != 1 || res.Keys[0] != "PS2" {
		t.Errorf("expected most recent PS2, got %v", res.Keys)
	}

	res = r.Resolve("compare them", sess)
	if !res.Plural || len(res.Keys) != 2 {
		t.Errorf("expected both parts, got %+v", res)
	}
}

func TestResolveRespectsWindow(t *testing.T) {
	r := New(2)
	sess := sessionWith(5, session.RecentRef{Key: "PS1", Turn: 2})

	res := r.Resolve("what does it cost?", sess)
	if res.Resolved {
		t.Errorf("expected stale reference to stay unresolved, got %v", res.Keys)
	}
	if !res.Unresolved {
		t.Error("expected Unresolved to be reported")
	}
}

func TestResolveExplicitWins(t *testing.T) {
	r := New(3)
	sess := sessionWith(1, session.RecentRef{Key: "PS1", Turn: 1})

	res := r.Resolve("is ps99 compatible with it?", sess)
	if res.Resolved {
		t.Errorf("explicit key must not be overridden, got %v", res.Keys)
	}
	if targets := res.Targets(); len(targets) != 1 || targets[0] != "PS99" {
		t.Errorf("expected PS99 target, got %v", targets)
	}

	res = r.Resolve("compare PS3 and PS4", sess)
	if res.Resolved || len(res.Targets()) != 2 {
		t.Errorf("expected explicit comparison, got %+v", res)
	}
}

func TestResolveNoReference(t *testing.T) {
	r := New(3)
	res := r.Resolve("my dishwasher is leaking", session.New("s"))
	if res.Resolved || res.Unresolved || len(res.Keys) != 0 {
		t.Errorf("expected no reference handling, got %+v", res)
	}

	res = r.Resolve("is it any good?", session.New("s"))
	if !res.Unresolved {
		t.Error("expected unresolved reference on empty session")
	}
}

func TestResolveCarriesTopic(t *testing.T) {
	r := New(3)
	sess := session.New("s")
	sess.Topic = &session.Topic{ApplianceType: "refrigerator", Symptom: "Ice maker not making ice"}

	res := r.Resolve("how do I check the valve?", sess)
	if res.Topic == nil || res.Topic.Symptom != "Ice maker not making ice" {
		t.Errorf("expected topic to carry over, got %+v", res.Topic)
	}

	res = r.Resolve("my dishwasher won't drain", sess)
	if res.Topic != nil {
		t.Error("a query naming an appliance starts a new topic")
	}

	// the resolver never mutates the session
	if sess.Topic.Symptom != "Ice maker not making ice" {
		t.Error("session topic changed")
	}
}

func TestModelNumbers(t *testing.T) {
	got := ModelNumbers("Does PS11752778 fit wdt780saem1 or KDTE104DSS0? I have 2 kids")
	if diff := cmp.Diff([]string{"WDT780SAEM1", "KDTE104DSS0"}, got); diff != "" {
		t.Errorf("model numbers mismatch (-want +got):\n%s", diff)
	}
}
