// Package scope decides whether a query or a fetched part belongs to the
// supported appliance domains.
package scope

import (
	"fmt"
	"regexp"
	"strings"
)

type Verdict int

const (
	Pass Verdict = iota
	Reject
	Uncertain
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Reject:
		return "reject"
	default:
		return "uncertain"
	}
}

const (
	Refrigerator = "refrigerator"
	Dishwasher   = "dishwasher"
)

// Domains are the supported category tags.
var Domains = []string{Refrigerator, Dishwasher}

const OutOfScopeMessage = `I'm sorry, but I can only help with **refrigerator** and **dishwasher** parts and repairs.

If you have questions about:
- Refrigerator or dishwasher parts
- Part compatibility with your model
- Troubleshooting symptoms and repairs
- Installing or replacing parts

I'd be happy to help!`

// Supported reports whether a category tag is one of the supported domains.
func Supported(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, d := range Domains {
		if tag == d {
			return true
		}
	}
	return false
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var (
	outOfDomain = compile(
		`\bwashing\s*machines?\b`,
		`\bwashers?\b`,
		`\bdryers?\b`,
		`\bovens?\b`,
		`\bstoves?\b`,
		`\bmicrowaves?\b`,
		`\bair\s*condition(er|ers|ing)?\b`,
		`\bhvac\b`,
		`\bweather\b`,
		`\bnews\b`,
		`\bsports?\b`,
	)

	applianceNouns = compile(
		`\brefrigerators?\b`, `\bfridges?\b`, `\bfreezers?\b`,
		`\bdish\s*washers?\b`, `\bice\s*makers?\b`,
	)

	domainSignals = compile(
		`\bpart\s*(number|#|no\.?)\b`,
		`\bparts?\b`,
		`\bcompatib(le|ility)\b`,
		`\bfits?\b`,
		`\binstall(ation|ing)?\b`,
		`\breplac(e|ed|ing|ement)\b`,
		`\brepair(s|ing)?\b`,
		`\bfix(ing)?\b`,
		`\btroubleshoot(ing)?\b`,
		`\bmodel\s*(number|#)?\b`,
		`\bwater\s*(filter|line|inlet|valve)\b`,
		`\bdoor\s*(bin|shelf|gasket|seal|latch|hinge|switch)\b`,
		`\b(filter|valve|pump|hose|gasket|seal|shelf|bin|drawer|rack|basket|motor|fan|compressor|thermostat|thermistor|defrost|heater|dispenser|latch|hinge|impeller|timer|relay|sensor|wheel|tray|crisper|evaporator|condenser)s?\b`,
		`\bspray\s*arms?\b`,
		`\bcontrol\s*board\b`,
		`\bleak(s|ing)?\b`,
		`\bnot\s*(cooling|cold|freezing|working|draining|drying|cleaning|dispensing|making\s*ice|filling)\b`,
		`\bnoisy\b`, `\btoo\s*(warm|cold)\b`, `\bfrost\s*build\s*up\b`,
		`\bwon'?t\s*(start|run|drain|fill|latch|close|dispense)\b`,
		`\b(whirlpool|ge|samsung|lg|kitchenaid|maytag|frigidaire|bosch|kenmore|amana|electrolux)\b`,
		`partselect\.com`,
	)

	dishwasherNoun = regexp.MustCompile(`\bdish\s*washers?\b`)

	entityKey = regexp.MustCompile(`(?i)\bPS\d{3,}\b`)

	// manufacturer-number-shaped tokens: 5+ alphanumerics with a digit
	mfrToken = regexp.MustCompile(`\b[A-Za-z0-9][A-Za-z0-9-]{4,}\b`)

	referring = compile(
		`\b(this|that|these|those|it|its|them|they|their|both|one)\b`,
		`\bwhich\s+(one|is)\b`,
		`\bcompare\b`,
		`\b(what|how)\s+about\b`,
		`\bhow\s+much\b`,
		`\b(price|cost|stock|video|instructions?|steps?)\b`,
	)
)

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// HasIdentifier reports whether the text contains a part key or a token
// shaped like a manufacturer or model number.
func HasIdentifier(text string) bool {
	if entityKey.MatchString(text) {
		return true
	}
	for _, tok := range mfrToken.FindAllString(text, -1) {
		if strings.ContainsAny(tok, "0123456789") {
			return true
		}
	}
	return false
}

// Stage1 is the lexical pre-check run before any tool is invoked.
// hasContext tells whether the session already has something a follow-up
// could refer to.
func Stage1(query string, hasContext bool) Verdict {
	q := strings.TrimSpace(query)
	if q == "" {
		return Reject
	}

	appliance := anyMatch(applianceNouns, q)

	if anyMatch(outOfDomain, q) && !appliance {
		return Reject
	}

	if appliance || anyMatch(domainSignals, q) {
		return Pass
	}

	if HasIdentifier(q) {
		return Uncertain
	}

	if hasContext && anyMatch(referring, q) {
		return Uncertain
	}

	return Reject
}

// Appliance returns the supported appliance type the text names, if any.
func Appliance(text string) string {
	lower := strings.ToLower(text)
	switch {
	case dishwasherNoun.MatchString(lower):
		return Dishwasher
	case anyMatch(applianceNouns, lower):
		return Refrigerator
	}
	return ""
}

// Candidate is a fetched part as seen by the stage-2 check.
type Candidate struct {
	PSNumber      string
	Name          string
	ApplianceType string
	OutOfScope    bool
}

type Rejection struct {
	PSNumber      string
	Name          string
	ApplianceType string
}

// Stage2 validates the category tags of every part fetched during a turn.
// An empty tag passes; any unsupported tag or explicit out-of-scope flag
// rejects the whole turn. Rejections are unique by part key.
func Stage2(cands []Candidate) (Verdict, []Rejection) {
	var rejected []Rejection
	seen := make(map[string]bool)

	for _, c := range cands {
		tag := strings.ToLower(strings.TrimSpace(c.ApplianceType))
		if !c.OutOfScope && (tag == "" || Supported(tag)) {
			continue
		}

		key := strings.ToUpper(c.PSNumber)
		if seen[key] {
			continue
		}
		seen[key] = true

		if tag == "" {
			tag = "unknown"
		}
		rejected = append(rejected, Rejection{PSNumber: key, Name: c.Name, ApplianceType: tag})
	}

	if len(rejected) > 0 {
		return Reject, rejected
	}
	return Pass, nil
}

// RejectionMessage names each rejected part with its key and actual
// appliance type.
func RejectionMessage(rejected []Rejection) string {
	if len(rejected) == 0 {
		return OutOfScopeMessage
	}

	const footer = "I can only help with **refrigerator** and **dishwasher** parts and repairs. If you have questions about fridge or dishwasher parts, I'd be happy to help!"

	if len(rejected) == 1 {
		r := rejected[0]
		return fmt.Sprintf("I'm sorry, but **%s (%s)** is a part for a **%s**, not a refrigerator or dishwasher.\n\n%s",
			nameOr(r.Name, "This part"), r.PSNumber, title(r.ApplianceType), footer)
	}

	var b strings.Builder
	b.WriteString("I'm sorry, but the parts you asked about are not for refrigerators or dishwashers:\n\n")
	for _, r := range rejected {
		fmt.Fprintf(&b, "- **%s (%s)** - %s\n", nameOr(r.Name, "Part"), r.PSNumber, title(r.ApplianceType))
	}
	b.WriteString("\n")
	b.WriteString(footer)
	return b.String()
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}

func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
