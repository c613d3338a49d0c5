package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

type Kind string

const (
	KindParts  Kind = "parts"
	KindQnA    Kind = Kind(partsdb.KindQnA)
	KindStory  Kind = Kind(partsdb.KindStory)
	KindReview Kind = Kind(partsdb.KindReview)
)

const (
	PartThreshold = 0.4
	PartLimit     = 10
	TextThreshold = 0.2
	TextLimit     = 5
)

// Query is an approximate search request. Either Text or Vector is set;
// text is embedded with the gateway's embedder. PartKey scopes annotation
// kinds to one part, Domain filters parts by category tag.
type Query struct {
	Kind      Kind
	Text      string
	Vector    []float32
	Threshold float64
	Limit     int
	Domain    string
	PartKey   string
}

// Hit carries either a part or an annotation with its similarity score.
type Hit struct {
	Part       *partsdb.Part       `json:"part,omitempty"`
	Annotation *partsdb.Annotation `json:"annotation,omitempty"`
	Score      float64             `json:"score"`
}

// Search returns candidates at or above the threshold, in non-increasing
// score order, at most Limit of them. Equal scores keep the order the store
// returned them in.
func (g *Gateway) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.Limit <= 0 {
		return nil, apperr.InvalidArguments("limit must be positive")
	}

	vec, err := g.vector(ctx, q)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	switch q.Kind {
	case KindParts:
		found, err := g.store.SearchParts(ctx, vec, q.Limit, q.Domain)
		if err != nil {
			return nil, wrap(err, "search parts")
		}
		for i := range found {
			hits = append(hits, Hit{Part: &found[i].Part, Score: found[i].Score})
		}
	case KindQnA, KindStory, KindReview:
		if q.PartKey == "" {
			return nil, apperr.InvalidArguments("%s search needs a part key", q.Kind)
		}
		found, err := g.store.SearchAnnotations(ctx, q.PartKey, partsdb.TextKind(q.Kind), vec, q.Limit)
		if err != nil {
			return nil, wrap(err, "search %s", q.Kind)
		}
		for i := range found {
			hits = append(hits, Hit{Annotation: &found[i].Annotation, Score: found[i].Score})
		}
	default:
		return nil, apperr.InvalidArguments("unknown search kind %q", q.Kind)
	}

	return finish(hits, q.Threshold, q.Limit), nil
}

func (g *Gateway) vector(ctx context.Context, q Query) ([]float32, error) {
	if len(q.Vector) > 0 {
		return q.Vector, nil
	}
	if q.Text == "" {
		return nil, apperr.InvalidArguments("search needs text or a vector")
	}
	if g.embedder == nil {
		return nil, apperr.Upstream(nil, "no embedder configured")
	}

	vec, err := g.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, wrap(err, "embed query")
	}
	return vec, nil
}

// RankTexts scores in-memory annotations, such as those of a live-fetched
// bundle, against a text query with the same threshold and cap rules as
// Search. Ties keep input order.
func (g *Gateway) RankTexts(ctx context.Context, query string, items []partsdb.Annotation, threshold float64, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, apperr.InvalidArguments("limit must be positive")
	}
	if len(items) == 0 {
		return nil, nil
	}

	qv, err := g.vector(ctx, Query{Text: query})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(items))
	for i := range items {
		text := items[i].Body
		if items[i].Title != "" {
			text = items[i].Title + "\n" + text
		}
		v, err := g.embedder.Embed(ctx, text)
		if err != nil {
			return nil, wrap(err, "embed %s", items[i].Kind)
		}
		hits = append(hits, Hit{Annotation: &items[i], Score: cosine(qv, v)})
	}

	return finish(hits, threshold, limit), nil
}

func finish(hits []Hit, threshold float64, limit int) []Hit {
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
