package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

type axisEmbedder struct{}

func (axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "ice"):
		return []float32{1, 0, 0, 0}, nil
	case strings.Contains(lower, "water"):
		return []float32{0.8, 0.6, 0, 0}, nil
	case strings.Contains(lower, "pump"):
		return []float32{0, 0, 1, 0}, nil
	default:
		return []float32{0, 0, 0, 1}, nil
	}
}

func newGateway(t *testing.T) *Gateway {
	t.Helper()

	store, err := partsdb.OpenWithOptions(":memory:", partsdb.Options{Dimensions: 4})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	store.SetEmbedder(axisEmbedder{})

	ctx := context.Background()
	for _, p := range []partsdb.Part{
		{PSNumber: "PS100", Name: "Ice Maker Assembly", ApplianceType: "refrigerator"},
		{PSNumber: "PS200", Name: "Water Filter", ApplianceType: "refrigerator"},
		{PSNumber: "PS300", Name: "Ice Bucket", ApplianceType: "refrigerator"},
		{PSNumber: "PS400", Name: "Drain Pump", ApplianceType: "dishwasher"},
		{PSNumber: "PS500", Name: "Door Bin", ApplianceType: "refrigerator"},
	} {
		if _, err := store.UpsertPart(ctx, p); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	store.AddCompatibility(ctx, partsdb.Compatibility{PSNumber: "PS100", ModelNumber: "WRS325SDHZ", Brand: "Whirlpool"})

	return New(store, axisEmbedder{})
}

func TestExactLookups(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	p, err := g.Part(ctx, "ps100")
	if err != nil || p.Name != "Ice Maker Assembly" {
		t.Fatalf("expected PS100, got %+v (err %v)", p, err)
	}

	if _, err := g.Part(ctx, "PS999"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if apperr.Classify(func() error { _, err := g.Part(ctx, "PS999"); return err }()) != apperr.KindNotFound {
		t.Error("expected NotFound classification")
	}

	if _, err := g.Relation(ctx, "PS100", "WRS325SDHZ"); err != nil {
		t.Errorf("expected relation, got %v", err)
	}
	if _, err := g.Relation(ctx, "PS200", "WRS325SDHZ"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected NotFound for missing relation, got %v", err)
	}
}

func TestSearchThresholdAndOrder(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	hits, err := g.Search(ctx, Query{Kind: KindParts, Text: "ice", Threshold: 0.4, Limit: 10})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	// PS100 and PS300 score 1, PS200 scores 0.8, the rest 0
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits above threshold, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Score < 0.4 {
			t.Errorf("hit %s below threshold: %v", h.Part.PSNumber, h.Score)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores must be non-increasing, got %v then %v", hits[i-1].Score, hits[i].Score)
		}
	}

	// equal scores keep insertion order
	if hits[0].Part.PSNumber != "PS100" || hits[1].Part.PSNumber != "PS300" || hits[2].Part.PSNumber != "PS200" {
		t.Errorf("unexpected order: %s %s %s", hits[0].Part.PSNumber, hits[1].Part.PSNumber, hits[2].Part.PSNumber)
	}

	capped, _ := g.Search(ctx, Query{Kind: KindParts, Text: "ice", Threshold: 0.4, Limit: 1})
	if len(capped) != 1 {
		t.Errorf("expected cap of 1, got %d", len(capped))
	}

	domain, _ := g.Search(ctx, Query{Kind: KindParts, Vector: []float32{0, 0, 1, 0}, Threshold: 0.4, Limit: 5, Domain: "dishwasher"})
	if len(domain) != 1 || domain[0].Part.PSNumber != "PS400" {
		t.Errorf("expected only PS400 for dishwasher, got %+v", domain)
	}
}

func TestSearchValidation(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	if _, err := g.Search(ctx, Query{Kind: KindParts, Limit: 5}); !errors.Is(err, apperr.ErrInvalidArguments) {
		t.Errorf("expected InvalidArguments without text, got %v", err)
	}
	if _, err := g.Search(ctx, Query{Kind: KindReview, Text: "ice", Limit: 5}); !errors.Is(err, apperr.ErrInvalidArguments) {
		t.Errorf("expected InvalidArguments without part key, got %v", err)
	}

	noEmbed := New(g.store, nil)
	if _, err := noEmbed.Search(ctx, Query{Kind: KindParts, Text: "ice", Limit: 5}); apperr.Classify(err) != apperr.KindUpstream {
		t.Errorf("expected upstream error without embedder, got %v", err)
	}
}

func TestRankTexts(t *testing.T) {
	g := newGateway(t)

	items := []partsdb.Annotation{
		{Kind: partsdb.KindReview, Body: "pump works fine"},
		{Kind: partsdb.KindReview, Body: "ice comes out fast"},
		{Kind: partsdb.KindReview, Title: "Great", Body: "ice ice baby"},
	}

	hits, err := g.RankTexts(context.Background(), "ice", items, 0.2, 5)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Annotation.Body != "ice comes out fast" {
		t.Errorf("expected input order on ties, got %q first", hits[0].Annotation.Body)
	}
}
