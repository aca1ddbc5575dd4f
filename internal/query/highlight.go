package query

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Highlight wraps whole-word matches of the query terms in **bold** markdown
// so result previews show why a chunk matched. Text longer than maxLength is
// truncated; when a highlight exists the window is centered on the first one.
func Highlight(text string, terms []string, maxLength int) string {
	if len(terms) == 0 || text == "" {
		return cutAtRune(text, maxLength)
	}

	highlighted := text
	for _, term := range terms {
		if len(term) < 2 {
			continue
		}
		pattern, err := regexp.Compile(`(?i)\b(` + regexp.QuoteMeta(term) + `)\b`)
		if err != nil {
			continue
		}
		highlighted = pattern.ReplaceAllString(highlighted, "**$1**")
	}

	if len(highlighted) <= maxLength {
		return highlighted
	}

	first := strings.Index(highlighted, "**")
	if first <= 0 {
		return cutAtRune(highlighted, maxLength) + "..."
	}

	start := first - maxLength/2
	if start < 0 {
		start = 0
	}
	end := start + maxLength
	if end > len(highlighted) {
		end = len(highlighted)
	}
	for start > 0 && !utf8.RuneStart(highlighted[start]) {
		start--
	}
	for end < len(highlighted) && !utf8.RuneStart(highlighted[end]) {
		end--
	}

	snippet := highlighted[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(highlighted) {
		snippet += "..."
	}
	return snippet
}

// cutAtRune truncates s to at most n bytes without splitting a rune.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// MatchedTerms returns the query terms that actually occur in the text.
func MatchedTerms(text string, terms []string) []string {
	var matched []string
	lower := strings.ToLower(text)
	for _, term := range terms {
		if len(term) < 2 {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			matched = append(matched, term)
		}
	}
	return matched
}
