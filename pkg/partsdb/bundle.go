package partsdb

import (
	"context"
	"fmt"
)

// SaveBundle persists a live-fetched bundle into the catalog: the part, its
// relations and its annotations.
func (s *Store) SaveBundle(ctx context.Context, b *Bundle) error {
	if b == nil || b.Part.PSNumber == "" {
		return fmt.Errorf("bundle has no part")
	}

	if _, err := s.UpsertPart(ctx, b.Part); err != nil {
		return fmt.Errorf("save part %s: %w", b.Part.PSNumber, err)
	}

	for _, m := range b.Models {
		m.PSNumber = b.Part.PSNumber
		if err := s.AddCompatibility(ctx, m); err != nil {
			return fmt.Errorf("save compatibility %s/%s: %w", m.PSNumber, m.ModelNumber, err)
		}
	}

	for _, a := range b.Annotations {
		a.PSNumber = b.Part.PSNumber
		if _, err := s.AddAnnotation(ctx, a); err != nil {
			return fmt.Errorf("save %s for %s: %w", a.Kind, a.PSNumber, err)
		}
	}

	return nil
}
