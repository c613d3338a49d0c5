package partsdb

import (
	"context"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
)

// Vectors are stored unit-length so the L2 distance sqlite-vec reports maps
// directly onto cosine similarity: cos = 1 - d²/2.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func serializeEmbedding(v []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(normalize(v))
}

// SimilarityFromDistance converts an L2 distance between unit vectors into a
// cosine similarity in [-1, 1].
func SimilarityFromDistance(d float64) float64 {
	sim := 1 - d*d/2
	return math.Max(-1, math.Min(1, sim))
}

func (s *Store) checkDims(v []float32) error {
	if len(v) != s.dims {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(v), s.dims)
	}
	return nil
}

func partText(p Part) string {
	return fmt.Sprintf("%s. %s. %s %s. %s", p.Name, p.PartType, p.Brand, p.ApplianceType, p.Description)
}

func (s *Store) indexPart(ctx context.Context, id int64, p Part) error {
	embedding, err := s.embedder.Embed(ctx, partText(p))
	if err != nil {
		return fmt.Errorf("embed part %s: %w", p.PSNumber, err)
	}
	return s.SetPartVector(ctx, id, embedding)
}

// SetPartVector replaces the similarity vector of a part row.
func (s *Store) SetPartVector(ctx context.Context, partID int64, embedding []float32) error {
	if err := s.checkDims(embedding); err != nil {
		return err
	}

	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO part_vectors (part_id, embedding) VALUES (?, ?)
		ON CONFLICT(part_id) DO UPDATE SET embedding = excluded.embedding`, partID, blob)
	return err
}

// SearchParts ranks part vectors by distance to the query. Results are
// ordered by descending similarity; equal scores keep insertion order
// (ascending row id).
func (s *Store) SearchParts(ctx context.Context, query []float32, limit int, applianceType string) ([]PartHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := s.checkDims(query); err != nil {
		return nil, err
	}

	blob, err := serializeEmbedding(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixed("p.", partColumns)+`, vec_distance_l2(v.embedding, ?) AS distance
		FROM part_vectors v
		JOIN parts p ON p.id = v.part_id
		WHERE ? = '' OR p.appliance_type = ?
		ORDER BY distance, p.id
		LIMIT ?`, blob, applianceType, applianceType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []PartHit
	for rows.Next() {
		var p Part
		var distance float64
		err := rows.Scan(&p.ID, &p.PSNumber, &p.Name, &p.PartType, &p.ManufacturerNumber, &p.Manufacturer,
			&p.Price, &p.Description, &p.InstallDifficulty, &p.InstallTime, &p.InstallVideoURL,
			&p.Rating, &p.NumReviews, &p.ApplianceType, &p.Brand, &p.Availability, &p.URL, &distance)
		if err != nil {
			return nil, err
		}
		hits = append(hits, PartHit{Part: p, Score: SimilarityFromDistance(distance)})
	}

	return hits, rows.Err()
}

// SearchAnnotations ranks one part's annotations of one kind against a
// query vector. Annotations without a vector are not candidates.
func (s *Store) SearchAnnotations(ctx context.Context, psNumber string, kind TextKind, query []float32, limit int) ([]AnnotationHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if err := s.checkDims(query); err != nil {
		return nil, err
	}

	blob, err := serializeEmbedding(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+annotationColumns+`, vec_distance_l2(embedding, ?) AS distance
		FROM annotations
		WHERE ps_number = ? AND kind = ? AND embedding IS NOT NULL
		ORDER BY distance, id
		LIMIT ?`, blob, NormalizePSNumber(psNumber), string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []AnnotationHit
	for rows.Next() {
		var a Annotation
		var distance float64
		if err := rows.Scan(annotationDest(&a, &distance)...); err != nil {
			return nil, err
		}
		hits = append(hits, AnnotationHit{Annotation: a, Score: SimilarityFromDistance(distance)})
	}

	return hits, rows.Err()
}
