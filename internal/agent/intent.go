package agent

import (
	"regexp"
	"strings"
)

// intent is what a query asks for, read lexically. PlanDecider turns it into
// tool calls.
type intent struct {
	install  bool
	question bool
	review   bool
	models   bool
	compat   bool
	check    bool
	symptom  bool
	// filter narrows get_symptoms; empty lists every symptom
	filter   string
	partType string
}

var (
	installRe  = regexp.MustCompile(`(?i)\b(install(ation|ing)?|replac(e|ed|ing|ement)|put\s+in|swap)\b`)
	reviewRe   = regexp.MustCompile(`(?i)\b(reviews?|ratings?|rated|worth\s+it|any\s+good|quality|reliab(le|ility)|complaints?|should\s+i\s+buy|customers?\s+think)\b`)
	questionRe = regexp.MustCompile(`(?i)\b(q&a|questions?|does\s+(it|this)\s+come\s+with|included|dimensions?|size)\b`)
	modelsRe   = regexp.MustCompile(`(?i)\b(what|which)\s+(models?|dishwashers|refrigerators|fridges)\b.*\b(fit|work|compatible|use)\b|\bcompatible\s+models\b`)
	compatRe   = regexp.MustCompile(`(?i)\b(compatib(le|ility)|fits?|work\s+with|work\s+in|go\s+with)\b`)
	checkRe    = regexp.MustCompile(`(?i)\b(check|test|diagnos(e|ing)|inspect)\b`)
)

// symptomWords maps how customers describe a problem onto a word that occurs
// in the catalog's symptom names. Earlier entries win.
var symptomWords = []struct {
	re     *regexp.Regexp
	filter string
}{
	{regexp.MustCompile(`(?i)\bleak(s|ing|ed)?\b`), "leak"},
	{regexp.MustCompile(`(?i)\b(not|won'?t|will\s+not|isn'?t)\s+drain(ing)?\b`), "drain"},
	{regexp.MustCompile(`(?i)\b(not|won'?t|will\s+not|isn'?t)\s+(fill|filling)\b`), "fill"},
	{regexp.MustCompile(`(?i)\b(not|won'?t|isn'?t)\s+(clean|cleaning)\b`), "clean"},
	{regexp.MustCompile(`(?i)\b(not|won'?t|isn'?t)\s+(dry|drying)\b`), "dry"},
	{regexp.MustCompile(`(?i)\b(not|won'?t|will\s+not|doesn'?t)\s+(start|run|turn\s+on)\b`), "start"},
	{regexp.MustCompile(`(?i)\b(not|won'?t|isn'?t)\s+(making\s+ice|make\s+ice)\b|\bice\s*maker\b.*\bnot\s+working\b`), "ice"},
	{regexp.MustCompile(`(?i)\b(not|won'?t|isn'?t)\s+dispens(e|ing)\b`), "dispens"},
	{regexp.MustCompile(`(?i)\btoo\s+warm\b|\bnot\s+(cooling|cold)\b`), "warm"},
	{regexp.MustCompile(`(?i)\btoo\s+cold\b|\bfreezing\s+(food|everything)\b`), "cold"},
	{regexp.MustCompile(`(?i)\bnois(y|e)\b|\bloud\b|\brattl(e|ing)\b`), "nois"},
	{regexp.MustCompile(`(?i)\blatch\b.*\b(broken|fail|won'?t)\b|\bdoor\s+won'?t\s+(close|latch)\b`), "latch"},
	{regexp.MustCompile(`(?i)\bsweat(s|ing)?\b`), "sweat"},
	{regexp.MustCompile(`(?i)\blight\b.*\bnot\s+working\b`), "light"},
	{regexp.MustCompile(`(?i)\brunning\s+too\s+long\b|\bruns\s+constantly\b`), "running"},
	{regexp.MustCompile(`(?i)\b(not\s+working|broken|problem|issue|troubleshoot(ing)?)\b`), ""},
}

// partTypes are part nouns a browse can filter on, longest phrase first.
var partTypes = []string{
	"water inlet valve", "ice maker assembly", "defrost thermostat", "defrost heater",
	"evaporator fan motor", "condenser fan motor", "door shelf bin", "water filter",
	"ice maker", "door bin", "door gasket", "door seal", "door latch", "door hinge",
	"spray arm", "drain pump", "drain hose", "dishrack", "rack wheel", "control board",
	"crisper drawer", "thermistor", "thermostat", "water valve", "dispenser", "gasket",
	"shelf", "drawer", "rack", "wheel", "pump", "filter", "valve", "hinge", "latch",
	"fan", "heater", "motor", "seal", "basket", "tray", "timer",
}

var partTypeRes = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(partTypes))
	for i, pt := range partTypes {
		out[i] = regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(pt, " ", `\s+`) + `s?\b`)
	}
	return out
}()

func readIntent(query string) intent {
	var in intent

	in.install = installRe.MatchString(query)
	in.review = reviewRe.MatchString(query)
	in.question = questionRe.MatchString(query)
	in.models = modelsRe.MatchString(query)
	in.compat = compatRe.MatchString(query) && !in.models
	in.check = checkRe.MatchString(query)

	for _, sw := range symptomWords {
		if sw.re.MatchString(query) {
			in.symptom = true
			in.filter = sw.filter
			break
		}
	}

	for i, re := range partTypeRes {
		if re.MatchString(query) {
			in.partType = partTypes[i]
			break
		}
	}

	return in
}

type textSearch struct {
	tool  string
	query string
}

// textSearches are the narrative lookups a part question asks for.
func (in intent) textSearches(query string) []textSearch {
	var out []textSearch
	if in.install {
		out = append(out, textSearch{"search_repair_stories", "installation difficulty tools time"})
	}
	if in.review {
		out = append(out, textSearch{"search_reviews", "quality reliability durability"})
	}
	if in.question {
		out = append(out, textSearch{"search_qna", query})
	}
	return out
}
