// Package retrieval puts exact lookups and similarity search over the parts
// catalog behind one contract. Every call is side-effect free.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

type Gateway struct {
	store    *partsdb.Store
	embedder partsdb.Embedder
}

func New(store *partsdb.Store, embedder partsdb.Embedder) *Gateway {
	return &Gateway{store: store, embedder: embedder}
}

// CanSearch reports whether similarity search is available.
func (g *Gateway) CanSearch() bool {
	return g.embedder != nil
}

// wrap converts store errors into the shared taxonomy.
func wrap(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, partsdb.ErrNotFound):
		return apperr.NotFound(format, args...)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	default:
		return apperr.Upstream(err, format, args...)
	}
}

func (g *Gateway) Part(ctx context.Context, key string) (*partsdb.Part, error) {
	p, err := g.store.GetPart(ctx, key)
	return p, wrap(err, "part %s", key)
}

func (g *Gateway) PartByManufacturerNumber(ctx context.Context, mpn string) (*partsdb.Part, error) {
	p, err := g.store.FindByManufacturerNumber(ctx, mpn)
	return p, wrap(err, "manufacturer number %s", mpn)
}

// Relation answers "does part fit model". Absence is NotFound.
func (g *Gateway) Relation(ctx context.Context, key, model string) (*partsdb.Compatibility, error) {
	c, err := g.store.Compatibility(ctx, key, model)
	return c, wrap(err, "relation %s/%s", key, model)
}

func (g *Gateway) CompatibleModels(ctx context.Context, key, brand string, limit int) ([]partsdb.Compatibility, int, error) {
	models, total, err := g.store.CompatibleModels(ctx, key, brand, limit)
	return models, total, wrap(err, "models for %s", key)
}

func (g *Gateway) CompatibleParts(ctx context.Context, model, partType, brand string, limit int) ([]partsdb.Part, error) {
	parts, err := g.store.CompatibleParts(ctx, model, partType, brand, limit)
	return parts, wrap(err, "parts for model %s", model)
}

func (g *Gateway) Model(ctx context.Context, model string, limit int) (bool, []partsdb.ModelMatch, error) {
	exact, matches, err := g.store.FindModels(ctx, model, limit)
	return exact, matches, wrap(err, "model %s", model)
}

func (g *Gateway) Symptoms(ctx context.Context, applianceType, symptom string) ([]partsdb.Symptom, error) {
	syms, err := g.store.Symptoms(ctx, applianceType, symptom)
	return syms, wrap(err, "symptoms for %s", applianceType)
}

func (g *Gateway) RepairInstructions(ctx context.Context, applianceType, symptom, partType string) ([]partsdb.RepairInstruction, error) {
	ri, err := g.store.RepairInstructions(ctx, applianceType, symptom, partType)
	return ri, wrap(err, "instructions for %s/%s", applianceType, symptom)
}

func (g *Gateway) PartsByFilter(ctx context.Context, f partsdb.PartFilter) ([]partsdb.Part, error) {
	parts, err := g.store.FilterParts(ctx, f)
	return parts, wrap(err, "filter parts")
}

func (g *Gateway) Annotations(ctx context.Context, key string, kind partsdb.TextKind, limit int) ([]partsdb.Annotation, error) {
	out, err := g.store.Annotations(ctx, key, kind, limit)
	return out, wrap(err, "%s for %s", kind, key)
}
