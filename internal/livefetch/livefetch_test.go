package livefetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/budget"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingFetcher struct {
	calls atomic.Int64
	delay time.Duration
	fn    func(id string) (*partsdb.Bundle, error)
}

func (f *countingFetcher) FetchAll(ctx context.Context, id string) (*partsdb.Bundle, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.fn(id)
}

func bundleFor(id, appliance string) *partsdb.Bundle {
	return &partsdb.Bundle{
		Part: partsdb.Part{PSNumber: id, Name: "Water Inlet Valve", ApplianceType: appliance},
	}
}

func TestCacheFetchesOncePerIDConcurrently(t *testing.T) {
	f := &countingFetcher{
		delay: 20 * time.Millisecond,
		fn:    func(id string) (*partsdb.Bundle, error) { return bundleFor(id, "refrigerator"), nil },
	}
	cache := NewClient(f).Turn(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := cache.Get(context.Background(), "ps11752778")
			if err != nil {
				t.Errorf("expected no error, got %v", err)
				return
			}
			if b.Part.PSNumber != "PS11752778" {
				t.Errorf("expected PS11752778, got %s", b.Part.PSNumber)
			}
		}()
	}
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}

	if _, err := cache.Get(context.Background(), "PS11752778"); err != nil {
		t.Fatalf("expected cached bundle, got %v", err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("expected cached read to skip the fetcher, got %d fetches", n)
	}

	entries := cache.Entries()
	if len(entries) != 1 || entries["PS11752778"] == nil {
		t.Errorf("expected one fresh entry, got %v", entries)
	}
}

func TestCacheSeededBundlesAreNotRefetched(t *testing.T) {
	f := &countingFetcher{fn: func(id string) (*partsdb.Bundle, error) {
		return bundleFor(id, "dishwasher"), nil
	}}
	seed := map[string]*partsdb.Bundle{"PS100": bundleFor("PS100", "dishwasher")}
	cache := NewClient(f).Turn(seed)

	if _, err := cache.Get(context.Background(), "PS100"); err != nil {
		t.Fatalf("expected seeded bundle, got %v", err)
	}
	if f.calls.Load() != 0 {
		t.Errorf("expected no fetch for a seeded id, got %d", f.calls.Load())
	}
	if len(cache.Entries()) != 0 {
		t.Errorf("expected seeded bundles to stay out of Entries, got %d", len(cache.Entries()))
	}

	if _, ok := cache.Peek("ps100"); !ok {
		t.Error("expected Peek to see the seeded bundle")
	}
	if _, ok := cache.Peek("PS200"); ok {
		t.Error("expected Peek to miss an unknown id")
	}
}

func TestCacheNotFoundIsRememberedForTheTurn(t *testing.T) {
	f := &countingFetcher{fn: func(id string) (*partsdb.Bundle, error) {
		return nil, apperr.NotFound("part %s", id)
	}}
	cache := NewClient(f).Turn(nil)

	for i := 0; i < 3; i++ {
		_, err := cache.Get(context.Background(), "PS999")
		if apperr.Classify(err) != apperr.KindNotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	}
	if f.calls.Load() != 1 {
		t.Errorf("expected 1 fetch, got %d", f.calls.Load())
	}
	if len(cache.Entries()) != 0 {
		t.Error("expected failures to stay out of the cache entries")
	}
}

func TestCacheTransientFailureIsRetried(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	f := &countingFetcher{fn: func(id string) (*partsdb.Bundle, error) {
		if fail.Swap(false) {
			return nil, apperr.Timeout("slow page")
		}
		return bundleFor(id, "refrigerator"), nil
	}}
	cache := NewClient(f).Turn(nil)

	if _, err := cache.Get(context.Background(), "PS1"); apperr.Classify(err) != apperr.KindTimeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
	if _, err := cache.Get(context.Background(), "PS1"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if f.calls.Load() != 2 {
		t.Errorf("expected 2 fetches, got %d", f.calls.Load())
	}
}

func TestCacheRejectsMalformedID(t *testing.T) {
	f := &countingFetcher{fn: func(id string) (*partsdb.Bundle, error) { return nil, nil }}
	cache := NewClient(f).Turn(nil)

	_, err := cache.Get(context.Background(), "WPW10321304")
	if !errors.Is(err, apperr.ErrInvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
	if f.calls.Load() != 0 {
		t.Error("expected no fetch for a malformed id")
	}
}

func TestCacheHonoursCancellation(t *testing.T) {
	f := &countingFetcher{
		delay: time.Second,
		fn:    func(id string) (*partsdb.Bundle, error) { return bundleFor(id, "refrigerator"), nil },
	}
	cache := NewClient(f).Turn(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := cache.Get(ctx, "PS5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// let the abandoned fetch observe cancellation before goleak runs
	time.Sleep(20 * time.Millisecond)
}

type recordingSink struct {
	mu   sync.Mutex
	seen []string
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Store(_ context.Context, b *partsdb.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, b.Part.PSNumber)
	return nil
}

type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) Chat(context.Context, string, []llm.Message) (string, error) {
	return s.reply, s.err
}

func (s stubLLM) ChatWithTools(context.Context, string, []llm.Message, []llm.Tool) (*llm.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Content: s.reply, Usage: &llm.Usage{PromptTokens: 40, CompletionTokens: 2}}, nil
}

func (s stubLLM) Model() string { return "stub" }

func TestClientClassifiesAndSinks(t *testing.T) {
	f := &countingFetcher{fn: func(id string) (*partsdb.Bundle, error) { return bundleFor(id, ""), nil }}
	sink := &recordingSink{}
	client := NewClient(f, WithClassifier(NewLLMClassifier(stubLLM{reply: "Dishwasher."})), WithSinks(sink))

	b, err := client.Turn(nil).Get(context.Background(), "PS42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if b.Part.ApplianceType != "dishwasher" {
		t.Errorf("expected dishwasher, got %q", b.Part.ApplianceType)
	}
	if len(sink.seen) != 1 || sink.seen[0] != "PS42" {
		t.Errorf("expected sink to see PS42, got %v", sink.seen)
	}
	if client.Fetches() != 1 {
		t.Errorf("expected 1 fetch, got %d", client.Fetches())
	}
}

func TestLLMClassifierFallsBackToKeywords(t *testing.T) {
	b := &partsdb.Bundle{Part: partsdb.Part{
		PSNumber:    "PS7",
		Name:        "Ice Maker Assembly",
		Description: "Replacement ice maker for side-by-side refrigerators.",
	}}

	tests := []struct {
		name string
		llm  stubLLM
	}{
		{"unknown answer", stubLLM{reply: "unknown"}},
		{"llm error", stubLLM{err: errors.New("rate limited")}},
		{"garbage answer", stubLLM{reply: "I think it is probably for a <fridge>!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, _ := NewLLMClassifier(tt.llm).Classify(context.Background(), b)
			if tag != "refrigerator" {
				t.Errorf("expected refrigerator, got %q", tag)
			}
		})
	}
}

func TestLLMClassifierMetered(t *testing.T) {
	b := &partsdb.Bundle{Part: partsdb.Part{PSNumber: "PS8", Name: "Dishwasher Dishrack Wheel"}}

	tracker := budget.NewTracker(budget.Config{DailyLimit: 50})
	c := NewLLMClassifier(stubLLM{reply: "dishwasher"}).Metered(tracker, "claude")

	if tag, _ := c.Classify(context.Background(), b); tag != "dishwasher" {
		t.Errorf("expected dishwasher, got %q", tag)
	}
	if used, _ := tracker.Usage(); used != 42 {
		t.Errorf("expected 42 tokens recorded, got %d", used)
	}

	// once the cap is spent the model is skipped and keywords decide
	tracker.Add(10)
	c.model = stubLLM{reply: "refrigerator"}
	if tag, _ := c.Classify(context.Background(), b); tag != "dishwasher" {
		t.Errorf("expected the keyword answer, got %q", tag)
	}
}

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		desc     string
		expected string
	}{
		{"Upper rack wheel for the dishwasher. Fits most dish washers.", "dishwasher"},
		{"Drain pump for top-load washing machine. Washer will not drain.", "washer"},
		{"Bake element for the oven.", "range"},
		{"Universal screw kit.", ""},
	}

	for _, tt := range tests {
		b := &partsdb.Bundle{Part: partsdb.Part{Name: "Part", Description: tt.desc}}
		tag, err := KeywordClassifier{}.Classify(context.Background(), b)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tag != tt.expected {
			t.Errorf("%q: expected %q, got %q", tt.desc, tt.expected, tag)
		}
	}
}

func TestCatalogSinkPersistsSupportedOnly(t *testing.T) {
	store, err := partsdb.OpenWithOptions(":memory:", partsdb.Options{Dimensions: 4})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	sink := NewCatalogSink(store)
	ctx := context.Background()

	fridge := bundleFor("PS11752778", "refrigerator")
	fridge.Models = []partsdb.Compatibility{{ModelNumber: "WRS325SDHZ01", Brand: "Whirlpool"}}
	if err := sink.Store(ctx, fridge); err != nil {
		t.Fatalf("store fridge bundle: %v", err)
	}
	if err := sink.Store(ctx, bundleFor("PS3406971", "washer")); err != nil {
		t.Fatalf("store washer bundle: %v", err)
	}

	if _, err := store.GetPart(ctx, "PS11752778"); err != nil {
		t.Errorf("expected refrigerator part persisted, got %v", err)
	}
	if _, err := store.Compatibility(ctx, "PS11752778", "WRS325SDHZ01"); err != nil {
		t.Errorf("expected relation persisted, got %v", err)
	}
	if _, err := store.GetPart(ctx, "PS3406971"); !errors.Is(err, partsdb.ErrNotFound) {
		t.Errorf("expected washer part skipped, got %v", err)
	}
}

func TestPageParsing(t *testing.T) {
	if v := parsePrice("$1,069.59"); v != 1069.59 {
		t.Errorf("expected 1069.59, got %v", v)
	}
	if v := parsePrice(""); v != 0 {
		t.Errorf("expected 0, got %v", v)
	}

	if v := starsFromStyle("width: 80%"); v != 4 {
		t.Errorf("expected 4 stars, got %v", v)
	}
	if v := starsFromStyle("display:none"); v != 0 {
		t.Errorf("expected 0 stars, got %v", v)
	}

	crumbs := `[{"name":"Home"},{"name":"Refrigerator Parts"},{"name":"Water Filters"},{"name":"PS11701542"}]`
	if v := partTypeFromBreadcrumb(crumbs); v != "Water Filters" {
		t.Errorf("expected Water Filters, got %q", v)
	}
	if v := partTypeFromBreadcrumb("not json"); v != "" {
		t.Errorf("expected empty part type, got %q", v)
	}

	if v := applianceFromProducts("Dishwasher."); v != "dishwasher" {
		t.Errorf("expected dishwasher, got %q", v)
	}
	if v := applianceFromProducts("Refrigerator, Freezer."); v != "" {
		t.Errorf("expected ambiguous list to stay empty, got %q", v)
	}

	if v := cleanStory("Pulled the old valve out... Read more"); v != "Pulled the old valve out" {
		t.Errorf("expected trimmed story, got %q", v)
	}
	if len(reviewID("a", "b", "c")) != 16 {
		t.Error("expected 16 char review id")
	}
}
