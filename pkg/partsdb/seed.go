package partsdb

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML fixture format accepted by LoadSeed.
type SeedFile struct {
	Parts         []Part              `yaml:"parts"`
	Compatibility []Compatibility     `yaml:"compatibility"`
	Symptoms      []Symptom           `yaml:"symptoms"`
	Instructions  []RepairInstruction `yaml:"instructions"`
	Annotations   []Annotation        `yaml:"annotations"`
}

type SeedStats struct {
	Parts         int
	Compatibility int
	Symptoms      int
	Instructions  int
	Annotations   int
}

func (st SeedStats) String() string {
	return fmt.Sprintf("parts=%d compatibility=%d symptoms=%d instructions=%d annotations=%d",
		st.Parts, st.Compatibility, st.Symptoms, st.Instructions, st.Annotations)
}

func (s *Store) LoadSeedFile(ctx context.Context, path string) (SeedStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedStats{}, err
	}
	defer f.Close()

	return s.LoadSeed(ctx, f)
}

// LoadSeed decodes a YAML fixture and upserts every record. Instructions for
// symptoms that are not in the catalog are rejected.
func (s *Store) LoadSeed(ctx context.Context, r io.Reader) (SeedStats, error) {
	var seed SeedFile
	var stats SeedStats

	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return stats, fmt.Errorf("decode seed: %w", err)
	}

	for _, p := range seed.Parts {
		if p.PSNumber == "" || p.Name == "" {
			return stats, fmt.Errorf("seed part needs ps_number and part_name: %+v", p)
		}
		if _, err := s.UpsertPart(ctx, p); err != nil {
			return stats, fmt.Errorf("seed part %s: %w", p.PSNumber, err)
		}
		stats.Parts++
	}

	for _, c := range seed.Compatibility {
		if err := s.AddCompatibility(ctx, c); err != nil {
			return stats, fmt.Errorf("seed compatibility %s/%s: %w", c.PSNumber, c.ModelNumber, err)
		}
		stats.Compatibility++
	}

	for _, sym := range seed.Symptoms {
		if err := s.UpsertSymptom(ctx, sym); err != nil {
			return stats, fmt.Errorf("seed symptom %s: %w", sym.Name, err)
		}
		stats.Symptoms++
	}

	for _, ri := range seed.Instructions {
		ok, err := s.symptomExists(ctx, ri.ApplianceType, ri.Symptom)
		if err != nil {
			return stats, err
		}
		if !ok {
			return stats, fmt.Errorf("instruction references unknown symptom %s/%s", ri.ApplianceType, ri.Symptom)
		}
		if err := s.UpsertRepairInstruction(ctx, ri); err != nil {
			return stats, fmt.Errorf("seed instruction %s/%s: %w", ri.Symptom, ri.PartType, err)
		}
		stats.Instructions++
	}

	for _, a := range seed.Annotations {
		if _, err := s.AddAnnotation(ctx, a); err != nil {
			return stats, fmt.Errorf("seed annotation for %s: %w", a.PSNumber, err)
		}
		stats.Annotations++
	}

	return stats, nil
}
