package livefetch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bowerhall/partscout/internal/budget"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

// Classifier decides the appliance category of a bundle whose page did not
// state one. An empty tag means unknown.
type Classifier interface {
	Classify(ctx context.Context, b *partsdb.Bundle) (string, error)
}

const classifyPrompt = `You classify appliance replacement parts. Given the part information, reply with the appliance type the part is for as a single lowercase word such as refrigerator, dishwasher, washer, dryer, range or microwave. Reply "unknown" if the information is not enough.`

// sample sizes of annotations included in the prompt
const (
	promptReviews = 3
	promptQnA     = 3
	promptModels  = 5
)

var tagRe = regexp.MustCompile(`^[a-z][a-z ]{1,30}$`)

// LLMClassifier asks a language model and falls back to keyword counting
// when the model errors, answers unknown, or the token budget is spent.
type LLMClassifier struct {
	model    llm.LLM
	fallback KeywordClassifier

	budget   *budget.Tracker
	provider string
}

func NewLLMClassifier(model llm.LLM) *LLMClassifier {
	return &LLMClassifier{model: model}
}

// Metered counts classification calls against the shared token budget.
func (c *LLMClassifier) Metered(tracker *budget.Tracker, provider string) *LLMClassifier {
	c.budget = tracker
	c.provider = provider
	return c
}

func (c *LLMClassifier) Classify(ctx context.Context, b *partsdb.Bundle) (string, error) {
	if c.budget != nil && c.budget.Exhausted() {
		return c.fallback.Classify(ctx, b)
	}

	resp, err := c.model.ChatWithTools(ctx, classifyPrompt, []llm.Message{
		{Role: llm.RoleUser, Content: describe(b)},
	}, nil)
	if err != nil {
		tag, _ := c.fallback.Classify(ctx, b)
		return tag, fmt.Errorf("classify %s: %w", b.Part.PSNumber, err)
	}

	if c.budget != nil && resp.Usage != nil {
		c.budget.Record(ctx, budget.Call{
			Provider: c.provider,
			Model:    c.model.Model(),
			Purpose:  budget.PurposeClassify,
			Input:    resp.Usage.PromptTokens,
			Output:   resp.Usage.CompletionTokens,
		})
	}

	tag := strings.Trim(strings.ToLower(strings.TrimSpace(resp.Content)), ".\"'")
	if tag == "unknown" || !tagRe.MatchString(tag) {
		return c.fallback.Classify(ctx, b)
	}
	return tag, nil
}

func describe(b *partsdb.Bundle) string {
	var sb strings.Builder
	p := b.Part
	fmt.Fprintf(&sb, "Part name: %s\n", p.Name)
	if p.Manufacturer != "" {
		fmt.Fprintf(&sb, "Manufacturer: %s\n", p.Manufacturer)
	}
	if p.PartType != "" {
		fmt.Fprintf(&sb, "Part type: %s\n", p.PartType)
	}
	if p.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
	}

	for i, m := range b.Models {
		if i == promptModels {
			break
		}
		if m.Description != "" {
			fmt.Fprintf(&sb, "Fits model: %s %s (%s)\n", m.Brand, m.ModelNumber, m.Description)
		}
	}
	for i, r := range b.Texts(partsdb.KindReview) {
		if i == promptReviews {
			break
		}
		fmt.Fprintf(&sb, "Review: %s %s\n", r.Title, r.Body)
	}
	for i, q := range b.Texts(partsdb.KindQnA) {
		if i == promptQnA {
			break
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", q.Title, q.Body)
	}
	return sb.String()
}

// KeywordClassifier counts appliance words across the bundle text.
type KeywordClassifier struct{}

var applianceWords = []struct {
	tag string
	re  *regexp.Regexp
}{
	{"refrigerator", regexp.MustCompile(`(?i)\b(refrigerators?|fridges?|freezers?|ice ?makers?)\b`)},
	{"dishwasher", regexp.MustCompile(`(?i)\bdish ?washers?\b`)},
	{"washer", regexp.MustCompile(`(?i)\b(washing machines?|washers?)\b`)},
	{"dryer", regexp.MustCompile(`(?i)\bdryers?\b`)},
	{"range", regexp.MustCompile(`(?i)\b(ranges?|ovens?|stoves?|cooktops?)\b`)},
	{"microwave", regexp.MustCompile(`(?i)\bmicrowaves?\b`)},
}

func (KeywordClassifier) Classify(_ context.Context, b *partsdb.Bundle) (string, error) {
	text := describe(b)

	best, bestN := "", 0
	for _, w := range applianceWords {
		src := text
		if w.tag == "washer" {
			// "dish washer" must not count as a washing machine
			src = applianceWords[1].re.ReplaceAllString(text, "")
		}
		n := len(w.re.FindAllStringIndex(src, -1))
		if n > bestN {
			best, bestN = w.tag, n
		}
	}
	return best, nil
}
