package partsdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// keywordEmbedder maps text onto one of four axes by the first keyword it
// contains, which makes similarity scores predictable.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "ice"):
		return []float32{1, 0, 0, 0}, nil
	case strings.Contains(lower, "water"):
		return []float32{0, 1, 0, 0}, nil
	case strings.Contains(lower, "pump"):
		return []float32{0, 0, 1, 0}, nil
	default:
		return []float32{0, 0, 0, 1}, nil
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenWithOptions(":memory:", Options{Dimensions: 4})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	store.SetEmbedder(keywordEmbedder{})
	return store
}

func TestOpenAndVecVersion(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	version, err := store.VecVersion()
	if err != nil {
		t.Fatalf("vec_version failed: %v", err)
	}
	if version == "" {
		t.Error("expected a sqlite-vec version")
	}

	if store.Dimensions() != VectorDimensions {
		t.Errorf("expected %d dimensions, got %d", VectorDimensions, store.Dimensions())
	}
}

func TestOpenRejectsOtherDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	store, err := OpenWithOptions(path, Options{Dimensions: 4})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	store.Close()

	store, err = OpenWithOptions(path, Options{Dimensions: 4})
	if err != nil {
		t.Fatalf("reopen with the same size: %v", err)
	}
	store.Close()

	if _, err := OpenWithOptions(path, Options{Dimensions: 8}); !errors.Is(err, ErrDimensions) {
		t.Errorf("expected ErrDimensions, got %v", err)
	}
}

func TestUpsertAndGetPart(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertPart(ctx, Part{
		PSNumber:           "ps11752778",
		Name:               "Refrigerator Door Shelf Bin",
		ManufacturerNumber: "WPW10321304",
		Price:              44.95,
		ApplianceType:      "Refrigerator",
		Brand:              "Whirlpool",
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	byMPN, err := store.FindByManufacturerNumber(ctx, "wpw10321304")
	if err != nil {
		t.Fatalf("lookup by manufacturer number failed: %v", err)
	}
	if byMPN.PSNumber != "PS11752778" {
		t.Errorf("expected PS11752778 by manufacturer number, got %s", byMPN.PSNumber)
	}

	p, err := store.GetPart(ctx, "PS11752778")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.Name != "Refrigerator Door Shelf Bin" {
		t.Errorf("expected name to round trip, got '%s'", p.Name)
	}
	if p.ApplianceType != "refrigerator" {
		t.Errorf("expected lower-cased appliance type, got '%s'", p.ApplianceType)
	}

	// update in place keeps one row
	_, err = store.UpsertPart(ctx, Part{PSNumber: "PS11752778", Name: "Door Bin", Price: 39.95})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	p, _ = store.GetPart(ctx, "PS11752778")
	if p.Price != 39.95 {
		t.Errorf("expected updated price 39.95, got %v", p.Price)
	}

	if _, err := store.GetPart(ctx, "PS0000001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompatibilityLookup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, c := range []Compatibility{
		{PSNumber: "PS3406971", ModelNumber: "WDT780SAEM1", Brand: "Whirlpool", Description: "Dishwasher"},
		{PSNumber: "PS3406971", ModelNumber: "KDTE104DSS0", Brand: "KitchenAid", Description: "Dishwasher"},
		{PSNumber: "PS3406971", ModelNumber: "WDT780SAEM2", Brand: "Whirlpool", Description: "Dishwasher"},
	} {
		if err := store.AddCompatibility(ctx, c); err != nil {
			t.Fatalf("add compatibility failed: %v", err)
		}
	}

	c, err := store.Compatibility(ctx, "ps3406971", "wdt780saem-1")
	if err != nil {
		t.Fatalf("expected relation, got %v", err)
	}
	if c.Brand != "Whirlpool" {
		t.Errorf("expected Whirlpool, got %s", c.Brand)
	}

	if _, err := store.Compatibility(ctx, "PS3406971", "XYZ123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing relation, got %v", err)
	}

	models, total, err := store.CompatibleModels(ctx, "PS3406971", "whirlpool", 1)
	if err != nil {
		t.Fatalf("compatible models failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 whirlpool models, got %d", total)
	}
	if len(models) != 1 || models[0].ModelNumber != "WDT780SAEM1" {
		t.Errorf("expected first whirlpool model in insertion order, got %+v", models)
	}

	exact, matches, err := store.FindModels(ctx, "WDT780SAEM1", 5)
	if err != nil || !exact || len(matches) != 1 {
		t.Errorf("expected one exact match, got exact=%v matches=%+v err=%v", exact, matches, err)
	}

	exact, matches, err = store.FindModels(ctx, "WDT780", 5)
	if err != nil {
		t.Fatalf("prefix lookup failed: %v", err)
	}
	if exact || len(matches) != 2 {
		t.Errorf("expected two prefix matches, got exact=%v matches=%+v", exact, matches)
	}
}

func TestSymptomsAndInstructions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	symptoms := []Symptom{
		{ApplianceType: "refrigerator", Name: "Ice maker not making ice", Percentage: 29, PartTypes: []string{"Water Inlet Valve", "Ice Maker Assembly"}},
		{ApplianceType: "refrigerator", Name: "Leaking", Percentage: 12},
		{ApplianceType: "refrigerator", Name: "Noisy", Percentage: 40},
	}
	for _, s := range symptoms {
		if err := store.UpsertSymptom(ctx, s); err != nil {
			t.Fatalf("upsert symptom failed: %v", err)
		}
	}

	all, err := store.Symptoms(ctx, "refrigerator", "")
	if err != nil {
		t.Fatalf("symptoms failed: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Noisy" || all[2].Name != "Leaking" {
		t.Errorf("expected symptoms ordered by percentage desc, got %+v", all)
	}

	ice, _ := store.Symptoms(ctx, "refrigerator", "ice maker")
	if len(ice) != 1 || len(ice[0].PartTypes) != 2 {
		t.Errorf("expected ice maker symptom with two part types, got %+v", ice)
	}

	err = store.UpsertRepairInstruction(ctx, RepairInstruction{
		ApplianceType: "refrigerator",
		Symptom:       "Ice maker not making ice",
		PartType:      "Water Inlet Valve",
		Steps:         []string{"Unplug the refrigerator", "Test the valve solenoid with a multimeter"},
	})
	if err != nil {
		t.Fatalf("upsert instruction failed: %v", err)
	}

	ri, err := store.RepairInstructions(ctx, "refrigerator", "ice maker", "valve")
	if err != nil {
		t.Fatalf("instructions failed: %v", err)
	}
	if len(ri[0].Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(ri[0].Steps))
	}

	if _, err := store.RepairInstructions(ctx, "dishwasher", "ice maker", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchPartsOrderingAndTies(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	parts := []Part{
		{PSNumber: "PS100", Name: "Ice Maker Assembly", ApplianceType: "refrigerator"},
		{PSNumber: "PS200", Name: "Water Filter", ApplianceType: "refrigerator"},
		{PSNumber: "PS300", Name: "Ice Bucket", ApplianceType: "refrigerator"},
		{PSNumber: "PS400", Name: "Drain Pump", ApplianceType: "dishwasher"},
	}
	for _, p := range parts {
		if _, err := store.UpsertPart(ctx, p); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	hits, err := store.SearchParts(ctx, []float32{1, 0, 0, 0}, 3, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}

	// two exact matches tie; insertion order decides
	if hits[0].Part.PSNumber != "PS100" || hits[1].Part.PSNumber != "PS300" {
		t.Errorf("expected PS100 then PS300, got %s then %s", hits[0].Part.PSNumber, hits[1].Part.PSNumber)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores must be non-increasing: %v", hits)
		}
	}
	if hits[0].Score < 0.999 {
		t.Errorf("expected similarity ~1 for identical vectors, got %v", hits[0].Score)
	}

	filtered, err := store.SearchParts(ctx, []float32{0, 0, 1, 0}, 2, "dishwasher")
	if err != nil {
		t.Fatalf("filtered search failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Part.PSNumber != "PS400" {
		t.Errorf("expected only the dishwasher pump, got %+v", filtered)
	}

	if _, err := store.SearchParts(ctx, []float32{1, 0}, 3, ""); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestSearchPartsAfterReindex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertPart(ctx, Part{PSNumber: "PS100", Name: "Ice Maker Assembly", ApplianceType: "refrigerator"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if _, err := store.UpsertPart(ctx, Part{PSNumber: "PS100", Name: "Water Inlet Valve", ApplianceType: "refrigerator"}); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	hits, err := store.SearchParts(ctx, []float32{0, 1, 0, 0}, 5, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one vector per part, got %d hits", len(hits))
	}
	if hits[0].Score < 0.999 {
		t.Errorf("expected the replaced vector to match, got %v", hits[0].Score)
	}

	if hits, err := store.SearchParts(ctx, []float32{0, 1, 0, 0}, 5, "dishwasher"); err != nil || len(hits) != 0 {
		t.Errorf("expected no dishwasher hits, got %v (err %v)", hits, err)
	}
}

func TestSearchPartsFullDimensions(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i, ps := range []string{"PS100", "PS200", "PS300"} {
		id, err := store.UpsertPart(ctx, Part{PSNumber: ps, Name: "Part " + ps})
		if err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		v := make([]float32, VectorDimensions)
		v[i] = 1
		if err := store.SetPartVector(ctx, id, v); err != nil {
			t.Fatalf("set vector failed: %v", err)
		}
	}

	query := make([]float32, VectorDimensions)
	query[1] = 1
	hits, err := store.SearchParts(ctx, query, 2, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 || hits[0].Part.PSNumber != "PS200" {
		t.Fatalf("expected PS200 first of 2 hits, got %+v", hits)
	}
	if hits[1].Score > 0.001 {
		t.Errorf("expected orthogonal vectors to score ~0, got %v", hits[1].Score)
	}
}

func TestSearchAnnotations(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	texts := []Annotation{
		{Kind: KindReview, PSNumber: "PS100", LocalID: "1", Title: "Great", Body: "ice comes out fast now", Rating: 5},
		{Kind: KindReview, PSNumber: "PS100", LocalID: "2", Title: "Meh", Body: "water line was hard to attach", Rating: 3},
		{Kind: KindQnA, PSNumber: "PS100", LocalID: "1", Title: "Does it include the ice tray?", Body: "Yes"},
		{Kind: KindReview, PSNumber: "PS200", LocalID: "1", Body: "ice ice ice"},
	}
	for _, a := range texts {
		if _, err := store.AddAnnotation(ctx, a); err != nil {
			t.Fatalf("add annotation failed: %v", err)
		}
	}

	hits, err := store.SearchAnnotations(ctx, "PS100", KindReview, []float32{0, 1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search annotations failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 reviews for PS100, got %d", len(hits))
	}
	if hits[0].Annotation.LocalID != "2" {
		t.Errorf("expected the water review first, got %+v", hits[0].Annotation)
	}

	listed, err := store.Annotations(ctx, "PS100", KindQnA, 5)
	if err != nil || len(listed) != 1 {
		t.Errorf("expected one QnA entry, got %v (err %v)", listed, err)
	}
}

func TestLoadSeed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := `
parts:
  - ps_number: PS11752778
    part_name: Refrigerator Door Shelf Bin
    appliance_type: refrigerator
    part_price: 44.95
compatibility:
  - ps_number: PS11752778
    model_number: WDT780SAEM1
    brand: Whirlpool
symptoms:
  - appliance_type: refrigerator
    symptom: Door bin cracked
    percentage: 5
    parts: [Door Shelf Bin]
instructions:
  - appliance_type: refrigerator
    symptom: Door bin cracked
    part_type: Door Shelf Bin
    instructions: [Lift the bin up and out]
annotations:
  - kind: review
    ps_number: PS11752778
    body: Fits perfectly
    rating: 5
`
	stats, err := store.LoadSeed(ctx, strings.NewReader(seed))
	if err != nil {
		t.Fatalf("load seed failed: %v", err)
	}

	if stats.Parts != 1 || stats.Compatibility != 1 || stats.Symptoms != 1 || stats.Instructions != 1 || stats.Annotations != 1 {
		t.Errorf("unexpected stats: %s", stats)
	}

	bad := `
instructions:
  - appliance_type: refrigerator
    symptom: Unknown problem
    part_type: Valve
`
	if _, err := store.LoadSeed(ctx, strings.NewReader(bad)); err == nil {
		t.Error("expected error for instruction with unknown symptom")
	}
}

func TestSaveBundle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	b := &Bundle{
		Part:   Part{PSNumber: "PS999", Name: "Dishwasher Drain Pump", ApplianceType: "dishwasher"},
		Models: []Compatibility{{ModelNumber: "MDB4949SHZ0", Brand: "Maytag"}},
		Annotations: []Annotation{
			{Kind: KindStory, LocalID: "s1", Title: "Easy swap", Body: "Took 20 minutes", Difficulty: "Easy"},
		},
	}

	if err := store.SaveBundle(ctx, b); err != nil {
		t.Fatalf("save bundle failed: %v", err)
	}

	if _, err := store.Compatibility(ctx, "PS999", "MDB4949SHZ0"); err != nil {
		t.Errorf("expected saved relation, got %v", err)
	}

	stories, _ := store.Annotations(ctx, "PS999", KindStory, 5)
	if len(stories) != 1 || stories[0].Difficulty != "Easy" {
		t.Errorf("expected saved story, got %+v", stories)
	}

	if _, ok := b.Model("mdb4949shz0"); !ok {
		t.Error("bundle model lookup should normalise model numbers")
	}
}
