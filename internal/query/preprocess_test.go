package query

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"collapses whitespace", "what   is\t\tthis", "what is this"},
		{"fixes typos", "waht is teh answer", "what is the answer"},
		{"expands abbreviations", "pls explain asap", "please explain as soon as possible"},
		{"reduces repeated punctuation", "really???", "really?"},
		{"removes space before punctuation", "how does it work ?", "how does it work?"},
		{"trims", "  hello  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preprocess(tt.input)
			if got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("What is the range of the Tesla Model S")

	want := []string{"range", "tesla", "model"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyword %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestKeywords_AllStopwords(t *testing.T) {
	if got := Keywords("what is the"); got != nil {
		t.Errorf("expected no keywords, got %v", got)
	}
}

func TestHighlight_WrapsTerms(t *testing.T) {
	got := Highlight("The Tesla Model S has a long range", []string{"tesla", "range"}, 200)

	if !strings.Contains(got, "**Tesla**") {
		t.Errorf("expected Tesla highlighted, got %q", got)
	}
	if !strings.Contains(got, "**range**") {
		t.Errorf("expected range highlighted, got %q", got)
	}
}

func TestHighlight_WholeWordsOnly(t *testing.T) {
	got := Highlight("cat category", []string{"cat"}, 200)

	if !strings.Contains(got, "**cat**") {
		t.Errorf("expected standalone word highlighted, got %q", got)
	}
	if strings.Contains(got, "**cat**egory") {
		t.Errorf("partial word must not be highlighted, got %q", got)
	}
}

func TestHighlight_TruncatesAroundMatch(t *testing.T) {
	text := strings.Repeat("filler ", 50) + "needle" + strings.Repeat(" filler", 50)

	got := Highlight(text, []string{"needle"}, 80)

	if !strings.Contains(got, "**needle**") {
		t.Errorf("expected the match inside the truncated window, got %q", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipses around a centered window, got %q", got)
	}
}

func TestHighlight_NoTerms(t *testing.T) {
	long := strings.Repeat("x", 300)

	got := Highlight(long, nil, 200)
	if len(got) != 200 {
		t.Errorf("expected plain truncation to 200, got %d chars", len(got))
	}
}

func TestHighlight_TruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes, so a byte limit of 200 lands mid-rune.
	long := strings.Repeat("日", 100)

	got := Highlight(long, nil, 200)
	if !utf8.ValidString(got) {
		t.Error("plain truncation produced invalid UTF-8")
	}

	got = Highlight(long, []string{"needle"}, 200)
	if !utf8.ValidString(got) {
		t.Error("no-match truncation produced invalid UTF-8")
	}

	got = Highlight(long+" needle "+long, []string{"needle"}, 80)
	if !utf8.ValidString(got) {
		t.Error("windowed truncation produced invalid UTF-8")
	}
}

func TestMatchedTerms(t *testing.T) {
	got := MatchedTerms("The Tesla Model S", []string{"tesla", "range"})

	if len(got) != 1 || got[0] != "tesla" {
		t.Errorf("expected only matching terms, got %v", got)
	}
}
