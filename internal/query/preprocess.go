// Package query provides query preprocessing, keyword extraction, and match
// highlighting for retrieval requests.
package query

import (
	"regexp"
	"strings"
)

// abbreviations maps common shorthand to its expansion.
var abbreviations = map[string]string{
	"pls":   "please",
	"thx":   "thanks",
	"ty":    "thank you",
	"btw":   "by the way",
	"fyi":   "for your information",
	"asap":  "as soon as possible",
	"imo":   "in my opinion",
	"imho":  "in my humble opinion",
	"tl;dr": "summary",
	"tldr":  "summary",
	"afaik": "as far as I know",
	"iirc":  "if I recall correctly",
	"etc":   "et cetera",
	"vs":    "versus",
	"e.g":   "for example",
	"i.e":   "that is",
}

// typos maps frequent misspellings to their corrections.
var typos = map[string]string{
	"teh":    "the",
	"taht":   "that",
	"waht":   "what",
	"dont":   "don't",
	"cant":   "can't",
	"wont":   "won't",
	"didnt":  "didn't",
	"doesnt": "doesn't",
}

// stopwords excluded from keyword extraction.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "should": {},
	"could": {}, "may": {}, "might": {}, "must": {}, "can": {}, "of": {},
	"to": {}, "in": {}, "on": {}, "at": {}, "by": {}, "for": {}, "with": {},
	"about": {}, "as": {}, "from": {}, "that": {}, "this": {}, "what": {},
	"which": {}, "who": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"it": {}, "its": {},
}

var (
	repeatedPunct   = regexp.MustCompile(`([.!?]){2,}`)
	spaceBeforePunc = regexp.MustCompile(`\s+([.!?,;:])`)
)

// Preprocess normalizes a raw query before caching and retrieval: whitespace
// is collapsed, common typos fixed, abbreviations expanded, and repeated
// punctuation reduced. Equivalent queries therefore share cache entries.
func Preprocess(q string) string {
	if q == "" {
		return q
	}

	words := strings.Fields(q)
	for i, w := range words {
		lower := strings.ToLower(w)
		if fixed, ok := typos[lower]; ok {
			words[i] = fixed
			continue
		}
		if expanded, ok := abbreviations[lower]; ok {
			words[i] = expanded
		}
	}

	out := strings.Join(words, " ")
	out = repeatedPunct.ReplaceAllString(out, "$1")
	out = spaceBeforePunc.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out)
}

// Keywords extracts the significant terms of a query for highlighting and
// analytics: lower-cased words longer than two characters that are not
// stopwords.
func Keywords(q string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(q)) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}
