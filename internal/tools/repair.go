package tools

import (
	"context"
	"encoding/json"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/internal/retrieval"
)

type SymptomsArgs struct {
	ApplianceType string `json:"appliance_type"`
	Symptom       string `json:"symptom"`
}

type RepairInstructionsArgs struct {
	ApplianceType string `json:"appliance_type"`
	Symptom       string `json:"symptom"`
	PartType      string `json:"part_type"`
}

func RegisterRepairTools(registry *Registry, gw *retrieval.Gateway) {
	symptomsTool := llm.Tool{
		Name: "get_symptoms",
		Description: `List common problems for an appliance type, most frequent first, with the part types usually responsible.
Use for troubleshooting questions such as "my ice maker is not working" before suggesting specific parts.`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"appliance_type": applianceProp("refrigerator or dishwasher"),
				"symptom": map[string]any{
					"type":        "string",
					"description": "Words from the symptom to narrow the list, e.g. 'leaking' or 'not draining'",
				},
			},
			"required": []string{"appliance_type"},
		},
	}

	registry.Register(symptomsTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params SymptomsArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}

		syms, err := gw.Symptoms(ctx, params.ApplianceType, params.Symptom)
		if err != nil {
			return nil, err
		}
		if len(syms) == 0 {
			return nil, apperr.NotFound("no %s symptoms match %q", params.ApplianceType, params.Symptom)
		}
		return SymptomsResult{ApplianceType: params.ApplianceType, Symptoms: syms}, nil
	})

	instructionsTool := llm.Tool{
		Name:        "get_repair_instructions",
		Description: "Get step-by-step checks for a symptom, optionally for one suspected part type. Call get_symptoms first to learn the symptom and part type names.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"appliance_type": applianceProp("refrigerator or dishwasher"),
				"symptom":        map[string]any{"type": "string", "description": "Symptom name, e.g. 'Leaking'"},
				"part_type":      map[string]any{"type": "string", "description": "Suspected part type, e.g. 'Water Inlet Valve'"},
			},
			"required": []string{"appliance_type", "symptom"},
		},
	}

	registry.Register(instructionsTool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var params RepairInstructionsArgs
		if err := decode(args, &params); err != nil {
			return nil, err
		}

		ri, err := gw.RepairInstructions(ctx, params.ApplianceType, params.Symptom, params.PartType)
		if err != nil {
			return nil, err
		}
		return InstructionsResult{ApplianceType: params.ApplianceType, Symptom: params.Symptom, Instructions: ri}, nil
	})
}
