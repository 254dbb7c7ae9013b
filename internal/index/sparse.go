package index

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters. Standard Okapi values; k1 controls term-frequency
// saturation, b controls length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75

	// minTokenLen drops single-rune noise tokens.
	minTokenLen = 2
)

// SparseIndex is an immutable Okapi BM25 posting index over a fixed
// chunk set. Mutations are modeled by building a replacement index and
// swapping it in under the Manager's write path, so readers never see
// partial state.
type SparseIndex struct {
	postings map[string]map[string]int // term -> chunkID -> tf
	docLen   map[string]int            // chunkID -> token count
	avgLen   float64
	n        int
}

// Tokenize lowercases text and splits it into alphanumeric runs,
// dropping tokens shorter than two runes. Shared by the sparse index
// and the lexical ranking stages so all stages agree on term identity.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// indexable is the minimal view of a chunk the sparse index needs.
type indexable struct {
	id   string
	text string
}

// BuildSparseIndex constructs a BM25 index over the given chunks.
func BuildSparseIndex(chunks []indexable) *SparseIndex {
	idx := &SparseIndex{
		postings: make(map[string]map[string]int),
		docLen:   make(map[string]int),
		n:        len(chunks),
	}

	var totalLen int
	for _, ch := range chunks {
		tokens := Tokenize(ch.text)
		idx.docLen[ch.id] = len(tokens)
		totalLen += len(tokens)
		for _, tok := range tokens {
			m, ok := idx.postings[tok]
			if !ok {
				m = make(map[string]int)
				idx.postings[tok] = m
			}
			m[ch.id]++
		}
	}
	if idx.n > 0 {
		idx.avgLen = float64(totalLen) / float64(idx.n)
	}
	return idx
}

// idf computes the BM25 inverse document frequency for a term. Terms
// appearing in more than half the corpus score negative, which is the
// standard Okapi behavior for stopword-like terms.
func (s *SparseIndex) idf(term string) float64 {
	df := len(s.postings[term])
	if df == 0 {
		return 0
	}
	return math.Log((float64(s.n) - float64(df) + 0.5) / (float64(df) + 0.5))
}

// Search scores all chunks containing at least one query term and
// returns the top k by BM25 score. Unknown terms contribute zero; a
// query with no known terms (or an empty index) yields an empty slice.
// Ordering is deterministic: score descending, chunk ID ascending on
// ties.
func (s *SparseIndex) Search(query string, k int) []Hit {
	if k <= 0 || s.n == 0 {
		return []Hit{}
	}

	scores := make(map[string]float64)
	for _, term := range Tokenize(query) {
		posting, ok := s.postings[term]
		if !ok {
			continue
		}
		idf := s.idf(term)
		for id, tf := range posting {
			norm := 1 - bm25B + bm25B*float64(s.docLen[id])/s.avgLen
			scores[id] += idf * (float64(tf) * (bm25K1 + 1)) / (float64(tf) + bm25K1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Count returns the number of indexed chunks.
func (s *SparseIndex) Count() int {
	return s.n
}
