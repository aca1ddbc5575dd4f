// Package ingestion handles document processing: chunking and ingest orchestration.
package ingestion

import (
	"strings"
	"unicode"
)

// Chunk represents a piece of chunked content
type Chunk struct {
	Text  string
	Index int
}

// Config holds chunking configuration. Sizes are in words, a practical token
// proxy for the embedding models in use.
type Config struct {
	TargetSize int // target words per chunk
	Overlap    int // words repeated between adjacent chunks
}

// Chunker splits document text into overlapping chunks along sentence
// boundaries where possible.
type Chunker struct {
	config Config
}

// NewChunker creates a new Chunker with the given configuration
func NewChunker(config Config) *Chunker {
	// Apply defaults if not set
	if config.TargetSize <= 0 {
		config.TargetSize = 500
	}
	if config.Overlap <= 0 || config.Overlap >= config.TargetSize {
		config.Overlap = config.TargetSize / 5
	}

	return &Chunker{config: config}
}

// Chunk splits content into chunks. Sentences are packed greedily up to the
// target size; a sentence longer than the target is split on word boundaries.
func (c *Chunker) Chunk(content string) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var pieces []string
	for _, sentence := range splitSentences(content) {
		words := strings.Fields(sentence)
		if len(words) <= c.config.TargetSize {
			pieces = append(pieces, sentence)
			continue
		}
		// Oversized sentence: hard-split on word boundaries.
		for start := 0; start < len(words); start += c.config.TargetSize {
			end := start + c.config.TargetSize
			if end > len(words) {
				end = len(words)
			}
			pieces = append(pieces, strings.Join(words[start:end], " "))
		}
	}

	var chunks []Chunk
	var current []string
	var overlap []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		chunks = append(chunks, Chunk{Text: text, Index: len(chunks)})

		words := strings.Fields(text)
		if len(words) > c.config.Overlap {
			words = words[len(words)-c.config.Overlap:]
		}
		overlap = words
		current = nil
	}

	currentWords := 0
	for _, piece := range pieces {
		pieceWords := len(strings.Fields(piece))
		if currentWords > 0 && currentWords+pieceWords > c.config.TargetSize {
			flush()
			if len(overlap) > 0 {
				current = []string{strings.Join(overlap, " ")}
				currentWords = len(overlap)
			} else {
				currentWords = 0
			}
		}
		current = append(current, piece)
		currentWords += pieceWords
	}
	flush()

	return chunks
}

// splitSentences breaks text on sentence-ending punctuation followed by
// whitespace. Paragraph breaks also terminate a sentence.
func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		sb.WriteRune(r)

		terminal := r == '.' || r == '!' || r == '?'
		paragraph := r == '\n' && i+1 < len(runes) && runes[i+1] == '\n'
		if (terminal && (i+1 == len(runes) || unicode.IsSpace(runes[i+1]))) || paragraph {
			if s := strings.TrimSpace(sb.String()); s != "" {
				sentences = append(sentences, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
