package livefetch

import (
	"context"

	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// Sink receives every bundle a fetch produces. Sink failures are logged and
// never fail the fetch.
type Sink interface {
	Name() string
	Store(ctx context.Context, b *partsdb.Bundle) error
}

// CatalogSink writes supported-domain bundles into the parts catalog so later
// turns find them with exact lookups.
type CatalogSink struct {
	store *partsdb.Store
}

func NewCatalogSink(store *partsdb.Store) *CatalogSink {
	return &CatalogSink{store: store}
}

func (s *CatalogSink) Name() string { return "catalog" }

func (s *CatalogSink) Store(ctx context.Context, b *partsdb.Bundle) error {
	if !scope.Supported(b.Part.ApplianceType) {
		return nil
	}
	return s.store.SaveBundle(ctx, b)
}
