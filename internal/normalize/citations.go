// Package normalize turns free-form model output into values the rest of the
// system can rely on: clickable citations, parsed JSON and closed-vocabulary
// intents. Every function here is pure and total.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var citationPattern = regexp.MustCompile(`\[Source: (.*?) \((https?://\S+)\)\]`)

// Citation is one "[Source: title (url)]" marker.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FormatCitations rewrites every citation marker of every sentence into an
// HTML anchor that opens in a new tab. Sentences are rejoined with single
// spaces. Applying it twice gives the same result as applying it once.
func FormatCitations(text string) string {
	sentences := SplitSentences(text)
	for i, s := range sentences {
		sentences[i] = citationPattern.ReplaceAllStringFunc(s, anchor)
	}
	return strings.Join(sentences, " ")
}

func anchor(marker string) string {
	m := citationPattern.FindStringSubmatch(marker)
	return fmt.Sprintf(`[<a href="%s" target="_blank">%s</a>]`, m[2], m[1])
}

// ExtractCitations returns every distinct marker in order of appearance.
func ExtractCitations(text string) []Citation {
	var out []Citation
	seen := map[string]bool{}
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		key := m[1] + "\x00" + m[2]
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Citation{Title: m[1], URL: m[2]})
	}
	return out
}

// SplitSentences splits after '.', '!' or '?' when followed by whitespace.
// The whitespace run is dropped; the punctuation stays with its sentence.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		out = append(out, string(runes[start:i+1]))
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	out = append(out, string(runes[start:]))
	return out
}
