package segmenter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	manyNewlines  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	spaceRuns     = regexp.MustCompile(`[ \t]+`)
	leadingSpace  = regexp.MustCompile(`\n[ \t]+`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)

	sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)
	terminated  = regexp.MustCompile(`[.!?]$`)

	lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")
)

// normalize collapses 3+ newlines to a paragraph break, squeezes spaces and tabs,
// strips each line and trims the whole text.
func normalize(text string) string {
	text = lineBreaks.Replace(text)
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = leadingSpace.ReplaceAllString(text, "\n")
	text = trailingSpace.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// splitSentences cuts after every run of terminal punctuation followed by whitespace.
// Punctuation stays with its sentence. An unterminated final fragment gets a '.'.
func splitSentences(text string) []string {
	var out []string
	prev := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		end := m[0] + len(strings.TrimRight(text[m[0]:m[1]], " \t\n\f\r"))
		if s := strings.TrimSpace(text[prev:end]); s != "" {
			out = append(out, s)
		}
		prev = m[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		out = append(out, s)
	}
	if n := len(out); n > 0 && !terminated.MatchString(out[n-1]) {
		out[n-1] += "."
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// prefixRunes returns the first n runes of s.
func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// tailWords returns the longest suffix of text that starts at a word boundary,
// spans at most limit runes and is not the whole text.
func tailWords(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	total := runeLen(text)
	idx := 0
	prevSpace := false
	for pos, r := range text {
		space := unicode.IsSpace(r)
		if !space && prevSpace && total-idx <= limit {
			return text[pos:]
		}
		prevSpace = space
		idx++
	}
	return ""
}

// wordCount counts whitespace-separated words.
func wordCount(s string) int { return len(strings.Fields(s)) }
