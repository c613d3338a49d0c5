package partsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
)

func (s *Store) UpsertSymptom(ctx context.Context, sym Symptom) error {
	parts, err := json.Marshal(sym.PartTypes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repair_symptoms (appliance_type, symptom, symptom_description, percentage, parts, difficulty, video_url, symptom_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(appliance_type, symptom) DO UPDATE SET
			symptom_description = excluded.symptom_description,
			percentage = excluded.percentage,
			parts = excluded.parts,
			difficulty = excluded.difficulty,
			video_url = excluded.video_url,
			symptom_url = excluded.symptom_url`,
		strings.ToLower(sym.ApplianceType), sym.Name, sym.Description, sym.Percentage,
		string(parts), sym.Difficulty, sym.VideoURL, sym.SymptomURL)
	return err
}

// Symptoms lists the known problems of an appliance type, most frequent
// first. A non-empty symptom narrows the list by substring.
func (s *Store) Symptoms(ctx context.Context, applianceType, symptom string) ([]Symptom, error) {
	symptom = strings.ToLower(strings.TrimSpace(symptom))

	rows, err := s.db.QueryContext(ctx, `
		SELECT appliance_type, symptom, symptom_description, percentage, parts, difficulty, video_url, symptom_url
		FROM repair_symptoms
		WHERE appliance_type = ?
		  AND (? = '' OR LOWER(symptom) LIKE '%' || ? || '%')
		ORDER BY percentage DESC, id`,
		strings.ToLower(applianceType), symptom, symptom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Symptom
	for rows.Next() {
		var sym Symptom
		var parts string
		if err := rows.Scan(&sym.ApplianceType, &sym.Name, &sym.Description, &sym.Percentage,
			&parts, &sym.Difficulty, &sym.VideoURL, &sym.SymptomURL); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(parts), &sym.PartTypes)
		out = append(out, sym)
	}

	return out, rows.Err()
}

func (s *Store) UpsertRepairInstruction(ctx context.Context, ri RepairInstruction) error {
	steps, err := json.Marshal(ri.Steps)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repair_instructions (appliance_type, symptom, part_type, instructions, part_category_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(appliance_type, symptom, part_type) DO UPDATE SET
			instructions = excluded.instructions,
			part_category_url = excluded.part_category_url`,
		strings.ToLower(ri.ApplianceType), ri.Symptom, ri.PartType, string(steps), ri.CategoryURL)
	return err
}

// RepairInstructions finds the diagnostic steps for a symptom, preferring an
// exact part type and falling back to a partial match on it.
func (s *Store) RepairInstructions(ctx context.Context, applianceType, symptom, partType string) ([]RepairInstruction, error) {
	symptom = strings.ToLower(strings.TrimSpace(symptom))
	partType = strings.ToLower(strings.TrimSpace(partType))

	rows, err := s.db.QueryContext(ctx, `
		SELECT appliance_type, symptom, part_type, instructions, part_category_url
		FROM repair_instructions
		WHERE appliance_type = ?
		  AND LOWER(symptom) LIKE '%' || ? || '%'
		  AND (? = '' OR LOWER(part_type) LIKE '%' || ? || '%')
		ORDER BY CASE WHEN LOWER(part_type) = ? THEN 0 ELSE 1 END, id`,
		strings.ToLower(applianceType), symptom, partType, partType, partType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RepairInstruction
	for rows.Next() {
		var ri RepairInstruction
		var steps string
		if err := rows.Scan(&ri.ApplianceType, &ri.Symptom, &ri.PartType, &steps, &ri.CategoryURL); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(steps), &ri.Steps)
		out = append(out, ri)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// symptomExists is used by the seed loader to validate instruction rows.
func (s *Store) symptomExists(ctx context.Context, applianceType, symptom string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM repair_symptoms WHERE appliance_type = ? AND symptom = ?`,
		strings.ToLower(applianceType), symptom).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
