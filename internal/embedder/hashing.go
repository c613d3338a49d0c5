package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Hashing is an offline embedder that projects lower-cased word tokens and
// their bigrams onto a fixed number of buckets. Texts sharing vocabulary land
// close together, which is enough for local development and tests.
type Hashing struct {
	dims int
}

func NewHashing(dims int) *Hashing {
	return &Hashing{dims: dims}
}

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	return vec, nil
}

func (h *Hashing) add(vec []float32, token string, weight float32) {
	f := fnv.New32a()
	f.Write([]byte(token))
	sum := f.Sum32()

	// the top bit picks the sign so unrelated tokens partially cancel
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	vec[int(sum%uint32(h.dims))] += weight
}
