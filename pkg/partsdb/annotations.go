package partsdb

import (
	"context"
	"fmt"
	"strconv"
)

const annotationColumns = `id, kind, ps_number, local_id, title, body, author, model_number,
	difficulty, repair_time, rating, helpful, verified`

func annotationDest(a *Annotation, extra ...any) []any {
	dest := []any{&a.ID, &a.Kind, &a.PSNumber, &a.LocalID, &a.Title, &a.Body, &a.Author, &a.ModelNumber,
		&a.Difficulty, &a.RepairTime, &a.Rating, &a.Helpful, &a.Verified}
	return append(dest, extra...)
}

// AddAnnotation stores an annotation, embedding it when an embedder is
// configured. Re-adding the same (kind, part, local id) replaces the text.
func (s *Store) AddAnnotation(ctx context.Context, a Annotation) (int64, error) {
	a.PSNumber = NormalizePSNumber(a.PSNumber)
	if a.LocalID == "" {
		a.LocalID = strconv.Itoa(len(a.Body)) + ":" + strconv.Itoa(hashText(a.text()))
	}

	var blob []byte
	if s.embedder != nil {
		embedding, err := s.embedder.Embed(ctx, a.text())
		if err != nil {
			return 0, fmt.Errorf("embed %s for %s: %w", a.Kind, a.PSNumber, err)
		}
		if err := s.checkDims(embedding); err != nil {
			return 0, err
		}
		if blob, err = serializeEmbedding(embedding); err != nil {
			return 0, err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (kind, ps_number, local_id, title, body, author, model_number,
			difficulty, repair_time, rating, helpful, verified, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, ps_number, local_id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			author = excluded.author,
			model_number = excluded.model_number,
			difficulty = excluded.difficulty,
			repair_time = excluded.repair_time,
			rating = excluded.rating,
			helpful = excluded.helpful,
			verified = excluded.verified,
			embedding = COALESCE(excluded.embedding, annotations.embedding)`,
		string(a.Kind), a.PSNumber, a.LocalID, a.Title, a.Body, a.Author, a.ModelNumber,
		a.Difficulty, a.RepairTime, a.Rating, a.Helpful, a.Verified, blob)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM annotations WHERE kind = ? AND ps_number = ? AND local_id = ?`,
		string(a.Kind), a.PSNumber, a.LocalID).Scan(&id)
	return id, err
}

// Annotations lists a part's annotations of one kind in insertion order.
func (s *Store) Annotations(ctx context.Context, psNumber string, kind TextKind, limit int) ([]Annotation, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+annotationColumns+`
		FROM annotations
		WHERE ps_number = ? AND kind = ?
		ORDER BY id
		LIMIT ?`, NormalizePSNumber(psNumber), string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(annotationDest(&a)...); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// hashText is a small FNV-1a hash used to derive stable local ids.
func hashText(s string) int {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return int(h)
}
