package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/internal/retrieval"
)

type CheckCompatibilityArgs struct {
	PSNumber    string `json:"ps_number"`
	ModelNumber string `json:"model_number"`
}

type CompatiblePartsArgs struct {
	ModelNumber string `json:"model_number"`
	PartType    string `json:"part_type"`
	Brand       string `json:"brand"`
}

type CompatibleModelsArgs struct {
	PSNumber string `json:"ps_number"`
	Brand    string `json:"brand"`
}

const maxModels = 50

func RegisterCompatibilityTools(registry *Registry, gw *retrieval.Gateway) {
	checkTool := llm.Tool{
		Name:        "check_compatibility",
		Description: "Check whether a part fits an appliance model. The answer is definitive: compatible=false means the part is not listed for that model.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ps_number": psNumberProp("PartSelect number, e.g. PS11752778"),
				"model_number": map[string]any{
					"type":        "string",
					"description": "Appliance model number, e.g. WDT780SAEM1",
				},
			},
			"required": []string{"ps_number", "model_number"},
		},
	}

	registry.Register(checkTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params CheckCompatibilityArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}
		return checkCompatibility(ctx, gw, params.PSNumber, strings.TrimSpace(params.ModelNumber))
	})

	partsTool := llm.Tool{
		Name:        "get_compatible_parts",
		Description: "List parts that fit an appliance model, optionally narrowed to a part type or brand.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model_number": map[string]any{"type": "string", "description": "Appliance model number"},
				"part_type":    map[string]any{"type": "string", "description": "Part type, e.g. ice maker"},
				"brand":        map[string]any{"type": "string", "description": "Part brand"},
			},
			"required": []string{"model_number"},
		},
	}

	registry.Register(partsTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params CompatiblePartsArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}

		parts, err := gw.CompatibleParts(ctx, params.ModelNumber, params.PartType, params.Brand, 20)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			return nil, apperr.NotFound("no parts known for model %s", params.ModelNumber)
		}
		return PartsResult{Parts: parts, Count: len(parts)}, nil
	})

	modelsTool := llm.Tool{
		Name:        "get_compatible_models",
		Description: "List appliance models a part fits, optionally for one brand. Long lists are cut; compatible_model_count is the full count.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ps_number": psNumberProp("PartSelect number"),
				"brand":     map[string]any{"type": "string", "description": "Appliance brand, e.g. Kenmore"},
			},
			"required": []string{"ps_number"},
		},
	}

	registry.Register(modelsTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params CompatibleModelsArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}
		return compatibleModels(ctx, gw, params.PSNumber, params.Brand)
	})
}

// checkCompatibility answers from the relation table for catalog parts and
// from the fetched bundle for live parts.
func checkCompatibility(ctx context.Context, gw *retrieval.Gateway, ps, model string) (CompatibilityResult, error) {
	p, b, err := partLookup(ctx, gw, ps)
	if err != nil {
		return CompatibilityResult{}, err
	}

	res := CompatibilityResult{PSNumber: p.PSNumber, ModelNumber: model, Part: *p, Source: SourceCatalog}

	if b != nil {
		res.Source = SourceLive
		if m, ok := b.Model(model); ok {
			res.Compatible = true
			res.ModelNumber = m.ModelNumber
			res.Brand = m.Brand
			res.Description = m.Description
		}
		return res, nil
	}

	rel, err := gw.Relation(ctx, p.PSNumber, model)
	switch {
	case err == nil:
		res.Compatible = true
		res.ModelNumber = rel.ModelNumber
		res.Brand = rel.Brand
		res.Description = rel.Description
	case errors.Is(err, apperr.ErrNotFound):
		// absence of the relation is the negative answer
	default:
		return CompatibilityResult{}, err
	}
	return res, nil
}

func compatibleModels(ctx context.Context, gw *retrieval.Gateway, ps, brand string) (ModelsResult, error) {
	p, b, err := partLookup(ctx, gw, ps)
	if err != nil {
		return ModelsResult{}, err
	}

	res := ModelsResult{PSNumber: p.PSNumber, Part: *p, Source: SourceCatalog}

	if b != nil {
		res.Source = SourceLive
		for _, m := range b.Models {
			if brand != "" && !strings.EqualFold(m.Brand, brand) {
				continue
			}
			res.Count++
			if len(res.Models) < maxModels {
				res.Models = append(res.Models, m)
			}
		}
		return res, nil
	}

	models, total, err := gw.CompatibleModels(ctx, p.PSNumber, brand, maxModels)
	if err != nil {
		return ModelsResult{}, err
	}
	res.Models = models
	res.Count = total
	return res, nil
}
