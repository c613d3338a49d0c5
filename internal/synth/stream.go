package synth

import "unicode"

// Tokens splits answer text into word tokens for streaming. Each token
// keeps the whitespace that follows it, so concatenating the tokens in order
// reproduces text exactly.
func Tokens(text string) []string {
	var out []string
	start := 0
	inSpace := false

	for i, r := range text {
		space := unicode.IsSpace(r)
		if inSpace && !space {
			out = append(out, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
