package budget

import "strings"

// Rate is USD per million tokens.
type Rate struct {
	Input  float64
	Output float64
}

// rates covers the default models of each provider the decider and the
// classifier can run on. Keys are model name prefixes so dated snapshots
// share a rate.
var rates = []struct {
	prefix string
	rate   Rate
}{
	{"claude-3-5-haiku", Rate{0.80, 4.00}},
	{"claude-3-5-sonnet", Rate{3.00, 15.00}},
	{"claude-sonnet-4", Rate{3.00, 15.00}},
	{"gpt-4o-mini", Rate{0.15, 0.60}},
	{"gpt-4o", Rate{2.50, 10.00}},
	{"mistral-small", Rate{0.20, 0.60}},
	{"llama-3.1-8b-instant", Rate{0.05, 0.08}},
	{"deepseek-chat", Rate{0.27, 1.10}},
}

// fallback prices unknown hosted models on the high side.
var fallback = Rate{5.00, 15.00}

// localProviders run on the operator's hardware.
var localProviders = map[string]bool{"ollama": true}

func rateFor(provider, model string) Rate {
	if localProviders[provider] {
		return Rate{}
	}
	for _, r := range rates {
		if strings.HasPrefix(model, r.prefix) {
			return r.rate
		}
	}
	return fallback
}

// Cost prices one model call.
func Cost(provider, model string, inputTokens, outputTokens int) float64 {
	r := rateFor(provider, model)
	return (float64(inputTokens)*r.Input + float64(outputTokens)*r.Output) / 1_000_000
}
