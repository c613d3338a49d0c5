package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bowerhall/partscout/internal/agent"
	"github.com/bowerhall/partscout/internal/budget"
	"github.com/bowerhall/partscout/internal/retrieval"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/internal/synth"
	"github.com/bowerhall/partscout/internal/tools"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

type fixture struct {
	srv      *httptest.Server
	sessions *session.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := partsdb.OpenWithOptions(":memory:", partsdb.Options{Dimensions: 4})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	_, err = store.UpsertPart(context.Background(), partsdb.Part{
		PSNumber: "PS11752778", Name: "Refrigerator Door Shelf Bin", PartType: "Door Bin",
		ManufacturerNumber: "WPW10321304", Price: 44.95, ApplianceType: "refrigerator",
		Brand: "Whirlpool", InstallDifficulty: "Really Easy", InstallTime: "Less than 15 mins",
	})
	if err != nil {
		t.Fatalf("upsert part: %v", err)
	}

	registry := tools.NewRegistry()
	tools.RegisterAll(registry, retrieval.New(store, nil))

	sessions := session.NewMemoryStore()
	svc := agent.New(agent.Config{}, sessions, registry, agent.NewPlanDecider())
	tracker := budget.NewTracker(budget.Config{DailyLimit: 1000})

	s := New(":0", svc, WithCatalog(store), WithBudget(tracker))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, sessions: sessions}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChat(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/chat", `{"message":"How can I install part number PS11752778?","session_id":"s1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out agent.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Mode != synth.Specific || out.SessionID != "s1" {
		t.Errorf("expected specific answer for s1, got %s for %s", out.Mode, out.SessionID)
	}
	if len(out.PartKeys) != 1 || out.PartKeys[0] != "PS11752778" {
		t.Errorf("expected PS11752778 cited, got %v", out.PartKeys)
	}
	if out.SessionState == "" {
		t.Errorf("expected a session state token")
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `message=hi`},
		{"empty", `{"message":"   "}`},
		{"too long", `{"message":"` + strings.Repeat("a", agent.MaxQueryLength+1) + `"}`},
		{"bad state", `{"message":"hi","session_state":"!!!"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/chat", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestChatRejectsWrongMethod(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/chat")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestStream(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/chat/stream", `{"message":"How can I install part number PS11752778?"}`)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	var events []agent.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev agent.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, ev)
	}

	if len(events) < 2 {
		t.Fatalf("expected several events, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.Type != agent.EventDone || last.Response == nil {
		t.Fatalf("expected a final done event, got %+v", last)
	}

	var text strings.Builder
	for _, ev := range events {
		if ev.Type == agent.EventToken {
			text.WriteString(ev.Token)
		}
	}
	if text.String() != last.Response.Answer {
		t.Errorf("expected tokens to rebuild the answer, got %q", text.String())
	}
}

func TestStreamInvalidMessage(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/chat/stream", `{"message":""}`)
	body := new(strings.Builder)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		body.WriteString(scanner.Text())
	}

	if !strings.Contains(body.String(), `"type":"error"`) || strings.Contains(body.String(), `"type":"done"`) {
		t.Errorf("expected a single error event, got %q", body.String())
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "ok" || out.Catalog != "ok" {
		t.Errorf("expected ok with catalog ok, got %+v", out)
	}
	if out.Budget == nil || out.Budget.Limit != 1000 {
		t.Errorf("expected budget limit 1000, got %+v", out.Budget)
	}
}

func TestResetSession(t *testing.T) {
	f := newFixture(t)

	f.post(t, "/chat", `{"message":"Tell me about PS11752778","session_id":"s1"}`)
	if f.sessions.Len() != 1 {
		t.Fatalf("expected one stored session, got %d", f.sessions.Len())
	}

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/sessions/s1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if f.sessions.Len() != 0 {
		t.Errorf("expected no stored sessions, got %d", f.sessions.Len())
	}
}
