package tools

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/internal/retrieval"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

const psPattern = `^[Pp][Ss]\d+$`

var (
	partURLRe  = regexp.MustCompile(`(?i)partselect\.com/(PS\d+)`)
	psKeyRe    = regexp.MustCompile(`(?i)\bPS\d{3,}\b`)
	mfrTokenRe = regexp.MustCompile(`\b[A-Za-z0-9-]{5,}\b`)
)

var applianceEnum = []string{"refrigerator", "dishwasher"}

func psNumberProp(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"pattern":     psPattern,
		"description": desc,
	}
}

func applianceProp(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        applianceEnum,
		"description": desc,
	}
}

type PartArgs struct {
	PSNumber string `json:"ps_number"`
}

type ResolvePartArgs struct {
	Query string `json:"query"`
}

type ResolveModelArgs struct {
	ModelNumber string `json:"model_number"`
}

type SearchPartsArgs struct {
	Query         string  `json:"query"`
	ApplianceType string  `json:"appliance_type"`
	PartType      string  `json:"part_type"`
	Brand         string  `json:"brand"`
	MaxPrice      float64 `json:"max_price"`
	InStockOnly   bool    `json:"in_stock_only"`
	Limit         int     `json:"limit"`
}

type SemanticSearchArgs struct {
	Query         string `json:"query"`
	ApplianceType string `json:"appliance_type"`
	Limit         int    `json:"limit"`
}

type ComparePartsArgs struct {
	PSNumbers []string `json:"ps_numbers"`
}

// partLookup resolves a part from the catalog, falling back to the turn's
// live fetch cache on NotFound. The bundle is non-nil only for live parts.
func partLookup(ctx context.Context, gw *retrieval.Gateway, ps string) (*partsdb.Part, *partsdb.Bundle, error) {
	ps = partsdb.NormalizePSNumber(ps)

	p, err := gw.Part(ctx, ps)
	if err == nil {
		return p, nil, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, err
	}

	cache := TurnCacheFromContext(ctx)
	if cache == nil {
		return nil, nil, err
	}

	b, ferr := cache.Get(ctx, ps)
	if ferr != nil {
		return nil, nil, ferr
	}
	return &b.Part, b, nil
}

func RegisterPartTools(registry *Registry, gw *retrieval.Gateway) {
	resolvePartTool := llm.Tool{
		Name: "resolve_part",
		Description: `Resolve whatever the customer used to name a part into a PartSelect number (PS...).
Accepts a PartSelect URL, a PS number, a manufacturer part number (e.g. WPW10321304) or a free-text description.
Returns resolved=true with the PS number when exactly one part matches, otherwise candidates to choose from.`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The part reference as the customer wrote it",
				},
			},
			"required": []string{"query"},
		},
	}

	registry.Register(resolvePartTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params ResolvePartArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}
		return resolvePart(ctx, gw, strings.TrimSpace(params.Query))
	})

	resolveModelTool := llm.Tool{
		Name:        "resolve_model",
		Description: "Resolve an appliance model number. Returns an exact match when the model is known, otherwise models that start with the given text.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model_number": map[string]any{
					"type":        "string",
					"description": "Appliance model number, e.g. WDT780SAEM1",
				},
			},
			"required": []string{"model_number"},
		},
	}

	registry.Register(resolveModelTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params ResolveModelArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}

		exact, matches, err := gw.Model(ctx, params.ModelNumber, 5)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, apperr.NotFound("model %s", params.ModelNumber)
		}
		return ModelResult{Query: params.ModelNumber, Exact: exact, Matches: matches}, nil
	})

	getPartTool := llm.Tool{
		Name:        "get_part",
		Description: "Get the full record of a part: name, price, availability, rating, install difficulty and time, install video and product page. Parts missing from the catalog are fetched live.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ps_number": psNumberProp("PartSelect number, e.g. PS11752778"),
			},
			"required": []string{"ps_number"},
		},
	}

	registry.Register(getPartTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params PartArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}

		p, b, err := partLookup(ctx, gw, params.PSNumber)
		if err != nil {
			return nil, err
		}
		source := SourceCatalog
		if b != nil {
			source = SourceLive
		}
		return newPartResult(*p, source), nil
	})

	fetchLiveTool := llm.Tool{
		Name:        "fetch_part_live",
		Description: "Get everything known about a part in one call: the part, its compatible models, Q&A, repair stories and reviews. Uses the catalog when it has the part and the live site otherwise.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ps_number": psNumberProp("PartSelect number, e.g. PS11752778"),
			},
			"required": []string{"ps_number"},
		},
	}

	registry.Register(fetchLiveTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params PartArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}

		p, b, err := partLookup(ctx, gw, params.PSNumber)
		if err != nil {
			return nil, err
		}
		if b != nil {
			return BundleResult{Bundle: b, Source: SourceLive, OutOfScope: outOfScope(b.Part)}, nil
		}

		b, err = catalogBundle(ctx, gw, *p)
		if err != nil {
			return nil, err
		}
		return BundleResult{Bundle: b, Source: SourceCatalog, OutOfScope: outOfScope(*p)}, nil
	})

	searchPartsTool := llm.Tool{
		Name:        "search_parts",
		Description: "Browse the catalog with filters. Every filter is optional; query matches words in the part name, type and description.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":          map[string]any{"type": "string", "description": "Words to look for"},
				"appliance_type": applianceProp("Restrict to one appliance type"),
				"part_type":      map[string]any{"type": "string", "description": "Part type, e.g. water filter, door bin"},
				"brand":          map[string]any{"type": "string", "description": "Brand, e.g. Whirlpool"},
				"max_price":      map[string]any{"type": "number", "minimum": 0, "description": "Maximum price in USD"},
				"in_stock_only":  map[string]any{"type": "boolean", "description": "Only parts currently in stock"},
				"limit":          map[string]any{"type": "integer", "minimum": 1, "maximum": 25, "description": "Maximum results (default 10)"},
			},
		},
	}

	registry.Register(searchPartsTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params SearchPartsArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}

		parts, err := gw.PartsByFilter(ctx, partsdb.PartFilter{
			Query:         params.Query,
			ApplianceType: params.ApplianceType,
			PartType:      params.PartType,
			Brand:         params.Brand,
			MaxPrice:      params.MaxPrice,
			InStockOnly:   params.InStockOnly,
			Limit:         params.Limit,
		})
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			return nil, apperr.NotFound("no parts match the filters")
		}
		return PartsResult{Parts: parts, Count: len(parts)}, nil
	})

	semanticTool := llm.Tool{
		Name:        "search_parts_semantic",
		Description: "Find parts by meaning rather than exact words, e.g. 'thing that makes ice' or 'water leaking under the fridge'. Results are ordered by similarity.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":          map[string]any{"type": "string", "description": "Natural-language description"},
				"appliance_type": applianceProp("Restrict to one appliance type"),
				"limit":          map[string]any{"type": "integer", "minimum": 1, "maximum": retrieval.PartLimit, "description": "Maximum results (default 10)"},
			},
			"required": []string{"query"},
		},
	}

	registry.Register(semanticTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params SemanticSearchArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}
		limit := params.Limit
		if limit <= 0 || limit > retrieval.PartLimit {
			limit = retrieval.PartLimit
		}

		if !gw.CanSearch() {
			logger.Debug("semantic search unavailable, browsing instead", "query", params.Query)
			parts, err := gw.PartsByFilter(ctx, partsdb.PartFilter{Query: params.Query, ApplianceType: params.ApplianceType, Limit: limit})
			if err != nil {
				return nil, err
			}
			if len(parts) == 0 {
				return nil, apperr.NotFound("no parts match %q", params.Query)
			}
			return PartsResult{Parts: parts, Count: len(parts), Note: "keyword match, similarity search is not configured"}, nil
		}

		hits, err := gw.Search(ctx, retrieval.Query{
			Kind:      retrieval.KindParts,
			Text:      params.Query,
			Threshold: retrieval.PartThreshold,
			Limit:     limit,
			Domain:    params.ApplianceType,
		})
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			return nil, apperr.NotFound("no parts similar to %q", params.Query)
		}

		res := SemanticResult{Query: params.Query}
		for _, h := range hits {
			res.Hits = append(res.Hits, ScoredPart{Part: *h.Part, Score: h.Score})
		}
		return res, nil
	})

	compareTool := llm.Tool{
		Name:        "compare_parts",
		Description: "Get several parts side by side (price, rating, availability, install difficulty). Use for 'which one' or 'compare' questions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ps_numbers": map[string]any{
					"type":        "array",
					"minItems":    2,
					"maxItems":    5,
					"items":       map[string]any{"type": "string", "pattern": psPattern},
					"description": "Two to five PartSelect numbers",
				},
			},
			"required": []string{"ps_numbers"},
		},
	}

	registry.Register(compareTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params ComparePartsArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}
		return compareParts(ctx, gw, params.PSNumbers)
	})
}

func resolvePart(ctx context.Context, gw *retrieval.Gateway, query string) (ResolveResult, error) {
	res := ResolveResult{Query: query}

	key, method := "", ""
	if m := partURLRe.FindStringSubmatch(query); m != nil {
		key, method = m[1], "url"
	} else if m := psKeyRe.FindString(query); m != "" {
		key, method = m, "ps_number"
	}

	if key != "" {
		res.Resolved = true
		res.PSNumber = partsdb.NormalizePSNumber(key)
		res.Confidence = "exact"
		res.Method = method
		if p, err := gw.Part(ctx, res.PSNumber); err == nil {
			res.Part = p
		}
		return res, nil
	}

	for _, tok := range mfrTokenRe.FindAllString(query, -1) {
		if !strings.ContainsAny(tok, "0123456789") {
			continue
		}
		p, err := gw.PartByManufacturerNumber(ctx, tok)
		if err == nil {
			res.Resolved = true
			res.PSNumber = p.PSNumber
			res.Confidence = "exact"
			res.Method = "manufacturer_number"
			res.Part = p
			return res, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return res, err
		}
	}

	parts, err := gw.PartsByFilter(ctx, partsdb.PartFilter{Query: query, Limit: 5})
	if err != nil {
		return res, err
	}
	res.Method = "text"

	if len(parts) == 0 && gw.CanSearch() {
		hits, err := gw.Search(ctx, retrieval.Query{
			Kind:      retrieval.KindParts,
			Text:      query,
			Threshold: retrieval.PartThreshold,
			Limit:     5,
		})
		if err != nil {
			return res, err
		}
		for _, h := range hits {
			parts = append(parts, *h.Part)
		}
		res.Method = "semantic"
	}

	switch len(parts) {
	case 0:
		return res, apperr.NotFound("no part matches %q", query)
	case 1:
		res.Resolved = true
		res.PSNumber = parts[0].PSNumber
		res.Confidence = "high"
		res.Part = &parts[0]
	default:
		res.Confidence = "low"
		res.Candidates = parts
	}
	return res, nil
}

// catalogBundle assembles a bundle from catalog records for a part the
// catalog already has.
func catalogBundle(ctx context.Context, gw *retrieval.Gateway, p partsdb.Part) (*partsdb.Bundle, error) {
	b := &partsdb.Bundle{Part: p, Source: SourceCatalog}

	models, _, err := gw.CompatibleModels(ctx, p.PSNumber, "", 50)
	if err != nil {
		return nil, err
	}
	b.Models = models

	for _, kind := range []partsdb.TextKind{partsdb.KindQnA, partsdb.KindStory, partsdb.KindReview} {
		texts, err := gw.Annotations(ctx, p.PSNumber, kind, retrieval.TextLimit)
		if err != nil {
			return nil, err
		}
		b.Annotations = append(b.Annotations, texts...)
	}
	return b, nil
}

// compareParts looks parts up concurrently and reports them in input order.
// A part that cannot be found is listed as missing; the call fails only when
// none can be found.
func compareParts(ctx context.Context, gw *retrieval.Gateway, keys []string) (ComparisonResult, error) {
	type slot struct {
		res  PartResult
		err  error
		done bool
	}
	slots := make([]slot, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			p, b, err := partLookup(gctx, gw, key)
			if err != nil {
				slots[i].err = err
				return nil
			}
			source := SourceCatalog
			if b != nil {
				source = SourceLive
			}
			slots[i] = slot{res: newPartResult(*p, source), done: true}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return ComparisonResult{}, err
	}

	var out ComparisonResult
	var firstErr error
	seen := make(map[string]bool)
	for i, s := range slots {
		key := partsdb.NormalizePSNumber(keys[i])
		if seen[key] {
			continue
		}
		seen[key] = true

		if !s.done {
			out.Missing = append(out.Missing, MissingPart{PSNumber: key, Failure: *failure(s.err)})
			if firstErr == nil {
				firstErr = s.err
			}
			continue
		}
		out.Parts = append(out.Parts, s.res)
	}

	if len(out.Parts) == 0 {
		return out, firstErr
	}
	return out, nil
}
