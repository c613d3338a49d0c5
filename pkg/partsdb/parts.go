package partsdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("partsdb: not found")

const partColumns = `id, ps_number, part_name, part_type, manufacturer_part_number, part_manufacturer,
	part_price, part_description, install_difficulty, install_time, install_video_url,
	average_rating, num_reviews, appliance_type, brand, availability, part_url`

const queryUpsertPart = `
INSERT INTO parts (ps_number, part_name, part_type, manufacturer_part_number, part_manufacturer,
	part_price, part_description, install_difficulty, install_time, install_video_url,
	average_rating, num_reviews, appliance_type, brand, availability, part_url)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(ps_number) DO UPDATE SET
	part_name = excluded.part_name,
	part_type = excluded.part_type,
	manufacturer_part_number = excluded.manufacturer_part_number,
	part_manufacturer = excluded.part_manufacturer,
	part_price = excluded.part_price,
	part_description = excluded.part_description,
	install_difficulty = excluded.install_difficulty,
	install_time = excluded.install_time,
	install_video_url = excluded.install_video_url,
	average_rating = excluded.average_rating,
	num_reviews = excluded.num_reviews,
	appliance_type = excluded.appliance_type,
	brand = excluded.brand,
	availability = excluded.availability,
	part_url = excluded.part_url,
	updated_at = datetime('now')`

type scanner interface {
	Scan(dest ...any) error
}

func scanPart(row scanner) (*Part, error) {
	var p Part
	err := row.Scan(&p.ID, &p.PSNumber, &p.Name, &p.PartType, &p.ManufacturerNumber, &p.Manufacturer,
		&p.Price, &p.Description, &p.InstallDifficulty, &p.InstallTime, &p.InstallVideoURL,
		&p.Rating, &p.NumReviews, &p.ApplianceType, &p.Brand, &p.Availability, &p.URL)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// NormalizePSNumber upper-cases and trims a part key.
func NormalizePSNumber(ps string) string {
	return strings.ToUpper(strings.TrimSpace(ps))
}

// UpsertPart inserts or replaces a part and refreshes its similarity vector
// when an embedder is configured.
func (s *Store) UpsertPart(ctx context.Context, p Part) (int64, error) {
	p.PSNumber = NormalizePSNumber(p.PSNumber)
	p.ApplianceType = strings.ToLower(strings.TrimSpace(p.ApplianceType))

	_, err := s.db.ExecContext(ctx, queryUpsertPart,
		p.PSNumber, p.Name, p.PartType, p.ManufacturerNumber, p.Manufacturer,
		p.Price, p.Description, p.InstallDifficulty, p.InstallTime, p.InstallVideoURL,
		p.Rating, p.NumReviews, p.ApplianceType, p.Brand, p.Availability, p.URL)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM parts WHERE ps_number = ?`, p.PSNumber).Scan(&id); err != nil {
		return 0, err
	}

	if s.embedder != nil {
		if err := s.indexPart(ctx, id, p); err != nil {
			return id, err
		}
	}

	return id, nil
}

func (s *Store) GetPart(ctx context.Context, psNumber string) (*Part, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+partColumns+` FROM parts WHERE ps_number = ?`, NormalizePSNumber(psNumber))

	p, err := scanPart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) FindByManufacturerNumber(ctx context.Context, mpn string) (*Part, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+partColumns+` FROM parts WHERE UPPER(manufacturer_part_number) = ? ORDER BY id LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(mpn)))

	p, err := scanPart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// FilterParts is the structured browse used by search_parts and by the text
// fallback of part resolution. Results keep insertion order.
func (s *Store) FilterParts(ctx context.Context, f PartFilter) ([]Part, error) {
	var where []string
	var args []any

	if q := strings.TrimSpace(f.Query); q != "" {
		for _, word := range strings.Fields(strings.ToLower(q)) {
			like := "%" + word + "%"
			where = append(where, `(LOWER(part_name) LIKE ? OR LOWER(part_type) LIKE ? OR LOWER(part_description) LIKE ?)`)
			args = append(args, like, like, like)
		}
	}
	if f.ApplianceType != "" {
		where = append(where, `appliance_type = ?`)
		args = append(args, strings.ToLower(f.ApplianceType))
	}
	if f.PartType != "" {
		where = append(where, `LOWER(part_type) LIKE ?`)
		args = append(args, "%"+strings.ToLower(f.PartType)+"%")
	}
	if f.Brand != "" {
		where = append(where, `LOWER(brand) = ?`)
		args = append(args, strings.ToLower(f.Brand))
	}
	if f.MaxPrice > 0 {
		where = append(where, `part_price <= ?`)
		args = append(args, f.MaxPrice)
	}
	if f.InStockOnly {
		where = append(where, `LOWER(availability) = 'in stock'`)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + partColumns + ` FROM parts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
