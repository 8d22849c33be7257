package cleaner

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens provides a fast token count estimate without importing tiktoken.
//
// Heuristic: utf8 rune count / 3.
//
//   - English text averages ~4 chars/token, CJK text averages ~1.5 chars/token.
//   - Dividing by 3 is a reasonable middle-ground for mixed-language content
//     and over-estimates slightly, so the model budget is never exceeded.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	est := n / 3
	if est < 1 {
		return 1
	}
	return est
}

// TruncateTokens cuts text down to roughly maxTokens, breaking at the last
// line boundary before the limit so a Markdown block is never split mid-line.
// The second return reports whether anything was cut.
func TruncateTokens(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text, false
	}

	limit := maxTokens * 3 // inverse of the runes/3 estimate
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	cut := string(runes[:limit])

	if idx := strings.LastIndexByte(cut, '\n'); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, "\n "), true
}
