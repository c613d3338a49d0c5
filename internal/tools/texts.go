package tools

import (
	"context"
	"encoding/json"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/internal/retrieval"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

type TextSearchArgs struct {
	PSNumber string `json:"ps_number"`
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
}

var textTools = []struct {
	name string
	kind partsdb.TextKind
	desc string
}{
	{"search_qna", partsdb.KindQnA,
		"Search customer questions and answers about a part, e.g. 'does it come with the gasket'."},
	{"search_repair_stories", partsdb.KindStory,
		"Search repair stories customers wrote after installing a part: what went wrong, the tools they used and how long it took. Good for install questions."},
	{"search_reviews", partsdb.KindReview,
		"Search customer reviews of a part, e.g. for fit, quality or 'worth it' questions."},
}

func RegisterTextTools(registry *Registry, gw *retrieval.Gateway) {
	for _, tt := range textTools {
		kind := tt.kind
		tool := llm.Tool{
			Name:        tt.name,
			Description: tt.desc,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ps_number": psNumberProp("PartSelect number"),
					"query":     map[string]any{"type": "string", "description": "What the customer wants to know"},
					"limit":     map[string]any{"type": "integer", "minimum": 1, "maximum": retrieval.TextLimit, "description": "Maximum results (default 5)"},
				},
				"required": []string{"ps_number", "query"},
			},
		}

		registry.Register(tool, func(ctx context.Context, args json.RawMessage) (any, error) {
			var params TextSearchArgs
			if err := decode(args, &params); err != nil {
				return nil, err
			}
			return searchTexts(ctx, gw, kind, params)
		})
	}
}

// searchTexts ranks a part's annotations by similarity when an embedder is
// configured and lists them in stored order otherwise. Live parts are served
// from their fetched bundle.
func searchTexts(ctx context.Context, gw *retrieval.Gateway, kind partsdb.TextKind, params TextSearchArgs) (TextsResult, error) {
	limit := params.Limit
	if limit <= 0 || limit > retrieval.TextLimit {
		limit = retrieval.TextLimit
	}

	p, b, err := partLookup(ctx, gw, params.PSNumber)
	if err != nil {
		return TextsResult{}, err
	}

	res := TextsResult{PSNumber: p.PSNumber, Kind: kind, Part: *p, Source: SourceCatalog, Ranked: gw.CanSearch()}

	var hits []retrieval.Hit
	switch {
	case b != nil:
		res.Source = SourceLive
		items := b.Texts(kind)
		if gw.CanSearch() {
			hits, err = gw.RankTexts(ctx, params.Query, items, retrieval.TextThreshold, limit)
		} else {
			hits = unranked(items, limit)
		}
	case gw.CanSearch():
		hits, err = gw.Search(ctx, retrieval.Query{
			Kind:      retrieval.Kind(kind),
			Text:      params.Query,
			Threshold: retrieval.TextThreshold,
			Limit:     limit,
			PartKey:   p.PSNumber,
		})
	default:
		var items []partsdb.Annotation
		items, err = gw.Annotations(ctx, p.PSNumber, kind, limit)
		hits = unranked(items, limit)
	}
	if err != nil {
		return TextsResult{}, err
	}

	if len(hits) == 0 {
		return TextsResult{}, apperr.NotFound("no %s for %s match %q", kind, p.PSNumber, params.Query)
	}

	for _, h := range hits {
		res.Hits = append(res.Hits, TextHit{Annotation: *h.Annotation, Score: h.Score})
	}
	return res, nil
}

func unranked(items []partsdb.Annotation, limit int) []retrieval.Hit {
	if len(items) > limit {
		items = items[:limit]
	}
	hits := make([]retrieval.Hit, len(items))
	for i := range items {
		hits[i] = retrieval.Hit{Annotation: &items[i]}
	}
	return hits
}

// RegisterAll registers the full tool set against one gateway.
func RegisterAll(registry *Registry, gw *retrieval.Gateway) {
	RegisterPartTools(registry, gw)
	RegisterCompatibilityTools(registry, gw)
	RegisterRepairTools(registry, gw)
	RegisterTextTools(registry, gw)
}
