package synth

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bowerhall/partscout/pkg/partsdb"
)

// doc accumulates answer text and the parts cited in it.
type doc struct {
	b     strings.Builder
	keys  []string
	cards map[string]partsdb.Part
}

func newDoc() *doc {
	return &doc{cards: make(map[string]partsdb.Part)}
}

// cite is the only way a part enters an answer. It renders the part's name
// followed by its key in parentheses and records the part for its card.
func (d *doc) cite(p partsdb.Part) string {
	key := partsdb.NormalizePSNumber(p.PSNumber)
	if _, ok := d.cards[key]; !ok {
		d.keys = append(d.keys, key)
		d.cards[key] = p
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "Part"
	}
	return fmt.Sprintf("**%s** (%s)", name, key)
}

func (d *doc) printf(format string, args ...any) {
	fmt.Fprintf(&d.b, format, args...)
}

func (d *doc) line(format string, args ...any) {
	fmt.Fprintf(&d.b, format, args...)
	d.b.WriteByte('\n')
}

// para starts a new paragraph unless the document is empty.
func (d *doc) para(format string, args ...any) {
	if d.b.Len() > 0 {
		d.b.WriteByte('\n')
	}
	d.line(format, args...)
}

func (d *doc) answer(mode Mode) Answer {
	text := strings.TrimSpace(d.b.String())

	// order cards by where their citation first appears
	keys := make([]string, 0, len(d.keys))
	pos := make(map[string]int, len(d.keys))
	for _, k := range d.keys {
		i := strings.Index(text, "("+k+")")
		if i < 0 {
			continue
		}
		pos[k] = i
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool { return pos[keys[i]] < pos[keys[j]] })

	cards := make([]partsdb.Part, len(keys))
	for i, k := range keys {
		cards[i] = d.cards[k]
	}

	return Answer{Text: text, Mode: mode, PartKeys: keys, Cards: cards}
}

func price(p partsdb.Part) string {
	if p.Price <= 0 {
		return ""
	}
	return fmt.Sprintf("$%.2f", p.Price)
}

func rating(p partsdb.Part) string {
	if p.Rating <= 0 {
		return ""
	}
	if p.NumReviews > 0 {
		return fmt.Sprintf("%.1f/5 from %d reviews", p.Rating, p.NumReviews)
	}
	return fmt.Sprintf("%.1f/5", p.Rating)
}

// summary is the short one-line description used in lists.
func summary(p partsdb.Part) string {
	var bits []string
	if s := price(p); s != "" {
		bits = append(bits, s)
	}
	if p.Availability != "" {
		bits = append(bits, p.Availability)
	}
	if p.ApplianceType != "" {
		bits = append(bits, p.ApplianceType)
	}
	return strings.Join(bits, ", ")
}

// excerpt cuts s to at most n bytes on a word boundary, or on a rune
// boundary when the first n bytes hold no space.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndexByte(s[:n], ' ')
	if cut <= 0 {
		cut = n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}
	return strings.TrimRight(s[:cut], ",.;:") + "..."
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
