package synth

import (
	"fmt"
	"strings"

	"github.com/bowerhall/partscout/pkg/partsdb"
)

const (
	maxListed   = 8
	maxTexts    = 2
	maxModels   = 5
	maxSymptoms = 5
	excerptLen  = 220
)

func renderSpecific(d *doc, in Input, ev *evidence) {
	p := ev.focus(in.Focus)
	if p != nil {
		renderPart(d, ev, *p)
	}

	for _, ri := range ev.instructions {
		if ri.PartType != "" {
			d.para("**How to check the %s** (%s, %s):", ri.PartType, strings.ToLower(ri.Symptom), ri.ApplianceType)
		} else {
			d.para("**What to check** (%s, %s):", strings.ToLower(ri.Symptom), ri.ApplianceType)
		}
		for i, step := range ri.Steps {
			d.line("%d. %s", i+1, strings.TrimSpace(step))
		}
		if ri.CategoryURL != "" {
			d.para("[More on this repair](%s)", ri.CategoryURL)
		}
	}

	if p == nil && len(ev.listed) > 0 {
		d.para("Parts of this type you might need:")
		listParts(d, ev.listed)
	}
}

// renderPart writes the detail block for one part: facts, install
// information and customer texts.
func renderPart(d *doc, ev *evidence, p partsdb.Part) {
	d.para("Here's what I found for %s:", d.cite(p))

	if s := price(p); s != "" {
		d.line("- Price: %s", s)
	}
	if p.Availability != "" {
		d.line("- Availability: %s", p.Availability)
	}
	if p.ManufacturerNumber != "" {
		d.line("- Manufacturer part number: %s", p.ManufacturerNumber)
	}
	if s := rating(p); s != "" {
		d.line("- Rating: %s", s)
	}
	if p.ApplianceType != "" {
		d.line("- Appliance: %s", p.ApplianceType)
	}

	if p.InstallDifficulty != "" || p.InstallTime != "" {
		var bits []string
		if p.InstallDifficulty != "" {
			bits = append(bits, fmt.Sprintf("rated *%s* to install", p.InstallDifficulty))
		}
		if p.InstallTime != "" {
			bits = append(bits, fmt.Sprintf("usually takes *%s*", p.InstallTime))
		}
		d.para("**Installation:** %s.", title(strings.Join(bits, " and ")))
	}
	if p.InstallVideoURL != "" {
		d.line("[Installation video](%s)", p.InstallVideoURL)
	}
	if p.URL != "" {
		d.line("[Product page](%s)", p.URL)
	}
	if ev.live[p.PSNumber] {
		d.para("_This part was looked up live on PartSelect._")
	}

	if m, ok := ev.models[p.PSNumber]; ok && m.Count > 0 {
		names := make([]string, 0, maxModels)
		for _, c := range m.Models {
			if len(names) == maxModels {
				break
			}
			names = append(names, c.ModelNumber)
		}
		more := ""
		if m.Count > len(names) {
			more = fmt.Sprintf(" and %d more", m.Count-len(names))
		}
		d.para("Fits %d models, including %s%s.", m.Count, strings.Join(names, ", "), more)
	}

	texts := ev.texts[p.PSNumber]
	if stories := texts[partsdb.KindStory]; len(stories) > 0 {
		d.para("**From customers who did this repair:**")
		for _, a := range first(stories, maxTexts) {
			var meta []string
			if a.Difficulty != "" {
				meta = append(meta, a.Difficulty)
			}
			if a.RepairTime != "" {
				meta = append(meta, a.RepairTime)
			}
			suffix := ""
			if len(meta) > 0 {
				suffix = " (" + strings.Join(meta, ", ") + ")"
			}
			d.line("- *%s*: %s%s", nonEmpty(a.Title, "Repair story"), excerpt(a.Body, excerptLen), suffix)
		}
	}
	if qna := texts[partsdb.KindQnA]; len(qna) > 0 {
		d.para("**Questions and answers:**")
		for _, a := range first(qna, maxTexts) {
			d.line("- Q: %s", excerpt(a.Title, excerptLen))
			d.line("  A: %s", excerpt(a.Body, excerptLen))
		}
	}
	if reviews := texts[partsdb.KindReview]; len(reviews) > 0 {
		d.para("**Reviews:**")
		for _, a := range first(reviews, maxTexts) {
			stars := ""
			if a.Rating > 0 {
				stars = fmt.Sprintf("%.0f/5 ", a.Rating)
			}
			d.line("- %s*%s*: %s", stars, nonEmpty(a.Title, "Review"), excerpt(a.Body, excerptLen))
		}
	}
}

func renderOverview(d *doc, in Input, ev *evidence) {
	if len(ev.symptoms) > 0 {
		appliance := ev.symptoms[0].ApplianceType
		if appliance == "" && in.Topic != nil {
			appliance = in.Topic.ApplianceType
		}
		d.para("Here are the most common causes for this %s problem:", nonEmpty(appliance, "appliance"))

		for _, s := range first(ev.symptoms, maxSymptoms) {
			d.printf("- **%s**", s.Name)
			if s.Percentage > 0 {
				d.printf(" (%.0f%% of reported repairs)", s.Percentage)
			}
			if len(s.PartTypes) > 0 {
				d.printf(": check the %s", strings.Join(s.PartTypes, ", "))
			}
			if s.Difficulty != "" {
				d.printf(". Difficulty: %s", s.Difficulty)
			}
			d.line("")
			if s.VideoURL != "" {
				d.line("  [Repair video](%s)", s.VideoURL)
			}
			if s.SymptomURL != "" {
				d.line("  [Troubleshooting guide](%s)", s.SymptomURL)
			}
		}
	}

	if len(ev.listed) > 0 {
		if len(ev.symptoms) > 0 {
			d.para("Parts that match:")
		} else {
			d.para("Here are the parts I found:")
		}
		listParts(d, ev.listed)
	}

	d.para("Tell me which part you want to look at, or share your model number, and I can walk you through checking or installing it.")
}

func renderCompatibility(d *doc, in Input, ev *evidence) {
	for _, c := range ev.compat {
		model := "**" + c.ModelNumber + "**"
		if c.Compatible {
			var about []string
			if c.Brand != "" {
				about = append(about, c.Brand)
			}
			if c.Description != "" {
				about = append(about, c.Description)
			}
			suffix := ""
			if len(about) > 0 {
				suffix = " (" + strings.Join(about, " ") + ")"
			}
			d.para("Yes, %s fits model %s%s.", d.cite(c.Part), model, suffix)
		} else {
			d.para("No, %s is not listed as compatible with model %s.", d.cite(c.Part), model)
			if c.Part.ApplianceType != "" {
				d.line("It is a %s part.", c.Part.ApplianceType)
			}
		}

		if s := summary(c.Part); s != "" {
			d.line("- %s", s)
		}
		if c.Part.URL != "" {
			d.line("[Product page](%s)", c.Part.URL)
		}
	}

	negative := false
	for _, c := range ev.compat {
		negative = negative || !c.Compatible
	}
	if negative {
		d.para("Double-check the model number on the appliance's rating plate. If it is right, I can look up the matching part for your model.")
	}
}

func renderComparison(d *doc, in Input, ev *evidence) {
	var parts []partsdb.Part
	if ev.comparison != nil {
		for _, pr := range ev.comparison.Parts {
			parts = append(parts, pr.Part)
		}
	} else {
		parts = ev.focusParts(in.Focus)
	}

	d.para("Here's how they compare:")
	for _, p := range parts {
		var bits []string
		if s := price(p); s != "" {
			bits = append(bits, s)
		}
		if s := rating(p); s != "" {
			bits = append(bits, "rated "+s)
		}
		if p.Availability != "" {
			bits = append(bits, p.Availability)
		}
		if p.InstallDifficulty != "" {
			bits = append(bits, "install: "+p.InstallDifficulty)
		}
		d.line("- %s: %s", d.cite(p), nonEmpty(strings.Join(bits, ", "), "no details listed"))
	}

	if cheap, ok := cheapest(parts); ok {
		d.para("The least expensive is %s at %s.", d.cite(cheap), price(cheap))
	}
	if best, ok := bestRated(parts); ok {
		d.line("The best rated is %s at %.1f/5.", d.cite(best), best.Rating)
	}

	if missing := ev.missingKeys(); len(missing) > 0 {
		d.para("I couldn't find %s.", strings.Join(missing, ", "))
	}
}

func renderExhausted(d *doc, in Input, ev *evidence) {
	if in.Exhausted {
		d.para("I wasn't able to finish answering this with the lookups available for one question, so I don't want to guess.")
	} else {
		d.para("I wasn't able to complete the lookup just now because a parts service timed out or failed.")
	}

	if parts := ev.gathered(); len(parts) > 0 {
		d.para("Here's what I did find:")
		listParts(d, parts)
	}
	d.para("Please try again, or ask about one part or model at a time.")
}

func renderNotFound(d *doc, in Input, ev *evidence) {
	if missing := ev.missingKeys(); len(missing) > 0 {
		d.para("I couldn't find %s in our catalog or on PartSelect.", strings.Join(missing, ", "))
	} else {
		d.para("I couldn't find anything matching that.")
	}
	d.para("Please double-check the number (PartSelect numbers look like PS11752778), or describe the part and the appliance it is for.")
}

func renderClarify(d *doc, in Input, ev *evidence) {
	switch {
	case len(ev.candidates) > 0:
		d.para("I found a few parts that could match. Which one do you mean?")
		listParts(d, ev.candidates)
	case in.Unresolved:
		d.para("Which part do you mean? Please share the PartSelect number (like PS11752778) or the manufacturer part number.")
	default:
		d.para("I can help with refrigerator and dishwasher parts: finding a part, checking it against your model, troubleshooting a symptom or installing it. What are you working on?")
	}
}

func listParts(d *doc, parts []partsdb.Part) {
	for _, p := range first(parts, maxListed) {
		if s := summary(p); s != "" {
			d.line("- %s: %s", d.cite(p), s)
		} else {
			d.line("- %s", d.cite(p))
		}
	}
}

func cheapest(parts []partsdb.Part) (partsdb.Part, bool) {
	var best partsdb.Part
	found, distinct := false, false
	for _, p := range parts {
		if p.Price <= 0 {
			continue
		}
		if found && p.Price != best.Price {
			distinct = true
		}
		if !found || p.Price < best.Price {
			best, found = p, true
		}
	}
	return best, found && distinct
}

func bestRated(parts []partsdb.Part) (partsdb.Part, bool) {
	var best partsdb.Part
	found, distinct := false, false
	for _, p := range parts {
		if p.Rating <= 0 {
			continue
		}
		if found && p.Rating != best.Rating {
			distinct = true
		}
		if !found || p.Rating > best.Rating {
			best, found = p, true
		}
	}
	return best, found && distinct
}

func first[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
