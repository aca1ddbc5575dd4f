package search

import (
	"math"
	"strings"

	"github.com/knoguchi/kbase/internal/repository"
)

// Okapi BM25 parameters. The negative-IDF floor keeps very common terms from
// subtracting relevance.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// Tokenize lower-cases text and splits it on whitespace. No stemming and no
// stopword removal: the index is rebuilt per query over a small candidate
// batch, so exact-term matching is what BM25 contributes here.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// LexicalScores builds a BM25 index over the candidate batch and returns one
// score per chunk, in input order. Raw BM25 scores are unbounded, so they are
// min-max normalized against the batch maximum into [0,1] before any
// cross-signal use. If every raw score is zero all normalized scores are zero.
func LexicalScores(query string, chunks []repository.Chunk) []float64 {
	if len(chunks) == 0 {
		return nil
	}

	corpus := make([][]string, len(chunks))
	for i, chunk := range chunks {
		corpus[i] = Tokenize(chunk.Text)
	}

	index := newBM25Index(corpus)
	raw := index.Scores(Tokenize(query))

	maxScore := 0.0
	for _, s := range raw {
		if s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		maxScore = 1 // avoid division by zero, all scores stay 0
	}

	normalized := make([]float64, len(raw))
	for i, s := range raw {
		normalized[i] = s / maxScore
	}
	return normalized
}

// bm25Index is a per-query Okapi BM25 index over a tokenized corpus. There is
// no persistent incremental index: correctness over performance for batches
// of tens of candidates.
type bm25Index struct {
	termFreqs []map[string]int
	docLens   []int
	avgdl     float64
	idf       map[string]float64
}

func newBM25Index(corpus [][]string) *bm25Index {
	idx := &bm25Index{
		termFreqs: make([]map[string]int, len(corpus)),
		docLens:   make([]int, len(corpus)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, doc := range corpus {
		idx.docLens[i] = len(doc)
		totalLen += len(doc)

		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		idx.termFreqs[i] = tf

		for term := range tf {
			docFreq[term]++
		}
	}
	if len(corpus) > 0 {
		idx.avgdl = float64(totalLen) / float64(len(corpus))
	}

	// IDF with the Okapi correction: terms appearing in more than half the
	// corpus get a negative raw IDF, which is floored to a small positive
	// fraction of the average IDF.
	n := float64(len(corpus))
	var idfSum float64
	var negative []string
	for term, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	if len(docFreq) > 0 {
		avgIDF := idfSum / float64(len(docFreq))
		floor := bm25Epsilon * avgIDF
		for _, term := range negative {
			idx.idf[term] = floor
		}
	}

	return idx
}

// Scores returns the raw BM25 score of the query against every document.
func (idx *bm25Index) Scores(query []string) []float64 {
	scores := make([]float64, len(idx.termFreqs))
	for _, term := range query {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		for i, tf := range idx.termFreqs {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			dl := float64(idx.docLens[i])
			scores[i] += idf * (f * (bm25K1 + 1)) / (f + bm25K1*(1-bm25B+bm25B*dl/idx.avgdl))
		}
	}
	return scores
}
