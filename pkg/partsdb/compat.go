package partsdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// normalizeModel produces the lookup key for a model number: upper case with
// spaces, dashes and slashes removed, so "WDT780SAEM-1" finds "WDT780SAEM1".
func normalizeModel(model string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/', '.':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, strings.TrimSpace(model))
}

func (s *Store) AddCompatibility(ctx context.Context, c Compatibility) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_compatibility (ps_number, model_number, model_key, brand, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ps_number, model_key) DO UPDATE SET
			brand = excluded.brand,
			description = excluded.description`,
		NormalizePSNumber(c.PSNumber), strings.TrimSpace(c.ModelNumber), normalizeModel(c.ModelNumber),
		c.Brand, c.Description)
	return err
}

// Compatibility answers "does part fit model" with one indexed lookup.
func (s *Store) Compatibility(ctx context.Context, psNumber, modelNumber string) (*Compatibility, error) {
	var c Compatibility
	err := s.db.QueryRowContext(ctx, `
		SELECT ps_number, model_number, brand, description
		FROM model_compatibility
		WHERE ps_number = ? AND model_key = ?`,
		NormalizePSNumber(psNumber), normalizeModel(modelNumber),
	).Scan(&c.PSNumber, &c.ModelNumber, &c.Brand, &c.Description)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CompatibleModels lists models a part fits, optionally restricted to one
// brand. total is the unrestricted count so callers can summarise long lists.
func (s *Store) CompatibleModels(ctx context.Context, psNumber, brand string, limit int) ([]Compatibility, int, error) {
	if limit <= 0 {
		limit = 50
	}

	ps := NormalizePSNumber(psNumber)
	brand = strings.ToLower(strings.TrimSpace(brand))

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM model_compatibility
		WHERE ps_number = ? AND (? = '' OR LOWER(brand) = ?)`,
		ps, brand, brand).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ps_number, model_number, brand, description
		FROM model_compatibility
		WHERE ps_number = ? AND (? = '' OR LOWER(brand) = ?)
		ORDER BY id
		LIMIT ?`, ps, brand, brand, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var models []Compatibility
	for rows.Next() {
		var c Compatibility
		if err := rows.Scan(&c.PSNumber, &c.ModelNumber, &c.Brand, &c.Description); err != nil {
			return nil, 0, err
		}
		models = append(models, c)
	}

	return models, total, rows.Err()
}

// CompatibleParts lists parts related to a model, optionally narrowed by part
// type and brand.
func (s *Store) CompatibleParts(ctx context.Context, modelNumber, partType, brand string, limit int) ([]Part, error) {
	if limit <= 0 {
		limit = 20
	}

	partType = strings.ToLower(strings.TrimSpace(partType))
	brand = strings.ToLower(strings.TrimSpace(brand))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixed("p.", partColumns)+`
		FROM model_compatibility mc
		JOIN parts p ON p.ps_number = mc.ps_number
		WHERE mc.model_key = ?
		  AND (? = '' OR LOWER(p.part_type) LIKE '%' || ? || '%')
		  AND (? = '' OR LOWER(p.brand) = ?)
		ORDER BY p.id
		LIMIT ?`,
		normalizeModel(modelNumber), partType, partType, brand, brand, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, *p)
	}

	return parts, rows.Err()
}

// FindModels resolves a model number: an exact key match first, then models
// whose key starts with the given text.
func (s *Store) FindModels(ctx context.Context, modelNumber string, limit int) (exact bool, matches []ModelMatch, err error) {
	if limit <= 0 {
		limit = 5
	}

	key := normalizeModel(modelNumber)
	if key == "" {
		return false, nil, nil
	}

	matches, err = s.modelsWhere(ctx, `model_key = ?`, key, limit)
	if err != nil || len(matches) > 0 {
		return len(matches) > 0, matches, err
	}

	matches, err = s.modelsWhere(ctx, `model_key LIKE ? || '%'`, key, limit)
	return false, matches, err
}

func (s *Store) modelsWhere(ctx context.Context, cond, key string, limit int) ([]ModelMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_number, MAX(brand), MAX(description), COUNT(*)
		FROM model_compatibility
		WHERE `+cond+`
		GROUP BY model_key
		ORDER BY MIN(id)
		LIMIT ?`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelMatch
	for rows.Next() {
		var m ModelMatch
		if err := rows.Scan(&m.ModelNumber, &m.Brand, &m.Description, &m.PartCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func prefixed(prefix, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = prefix + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
