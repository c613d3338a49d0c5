// Package resolver maps referring expressions in a follow-up query onto the
// parts and topic a session already established. It never mutates the
// session.
package resolver

import (
	"regexp"
	"strings"

	"github.com/bowerhall/partscout/internal/scope"
	"github.com/bowerhall/partscout/internal/session"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

const DefaultWindow = 3

var (
	singular = regexp.MustCompile(`(?i)\b(this\s+part|that\s+part|that\s+one|this\s+one|the\s+part|this|it|its)\b`)
	plural   = regexp.MustCompile(`(?i)\b(these|those|them|they|their|both|compare|which\s+one|which\s+is)\b`)

	partKey = regexp.MustCompile(`(?i)\bPS\d+\b`)

	// model numbers carry letters and digits and are at least 6 long
	modelToken = regexp.MustCompile(`\b[A-Za-z0-9][A-Za-z0-9-]{5,}\b`)
)

type Resolution struct {
	// Keys are the recency-list parts the query refers to, most recent first.
	Keys []string
	// Explicit are part keys written literally in the query.
	Explicit []string
	// Models are model-number-shaped tokens found in the query.
	Models   []string
	Resolved bool
	Plural   bool
	// Unresolved is set when the query refers back but nothing qualifies.
	Unresolved bool
	// Topic is the established topic, set when the query names no appliance.
	Topic *session.Topic
}

// Targets returns the parts the turn is about: explicit keys win over
// resolved references.
func (r Resolution) Targets() []string {
	if len(r.Explicit) > 0 {
		return r.Explicit
	}
	return r.Keys
}

type Resolver struct {
	window int
}

func New(window int) *Resolver {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Resolver{window: window}
}

func (r *Resolver) Resolve(query string, sess *session.Session) Resolution {
	var res Resolution

	res.Explicit = ExplicitKeys(query)
	res.Models = ModelNumbers(query)

	if sess != nil && sess.Topic != nil && scope.Appliance(query) == "" {
		t := *sess.Topic
		res.Topic = &t
	}

	// the plural check strips identifiers first so "compare PS1 and PS2"
	// does not count as a back-reference
	stripped := partKey.ReplaceAllString(query, "")
	isPlural := plural.MatchString(stripped)
	isSingular := singular.MatchString(stripped)

	if !isPlural && !isSingular {
		return res
	}
	if len(res.Explicit) > 0 && (!isPlural || len(res.Explicit) > 1) {
		return res
	}

	var candidates []string
	if sess != nil {
		candidates = sess.RecentKeys(r.window)
	}

	if len(candidates) == 0 {
		res.Unresolved = len(res.Explicit) == 0
		return res
	}

	res.Resolved = true
	if isPlural {
		res.Plural = true
		res.Keys = mergeKeys(res.Explicit, candidates)
		res.Explicit = nil
		return res
	}

	res.Keys = candidates[:1]
	return res
}

func mergeKeys(explicit, candidates []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{explicit, candidates} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// ExplicitKeys returns the part keys written in the text, normalised and in
// order of appearance.
func ExplicitKeys(text string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range partKey.FindAllString(text, -1) {
		k := partsdb.NormalizePSNumber(m)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// ModelNumbers returns tokens shaped like appliance model numbers, skipping
// part keys.
func ModelNumbers(text string) []string {
	var models []string
	for _, tok := range modelToken.FindAllString(text, -1) {
		if partKey.MatchString(tok) {
			continue
		}
		if !strings.ContainsAny(tok, "0123456789") {
			continue
		}
		if strings.IndexFunc(tok, isLetter) < 0 {
			continue
		}
		models = append(models, strings.ToUpper(tok))
	}
	return models
}

func isLetter(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
