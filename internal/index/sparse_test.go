package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "simple", in: "Hello World", want: []string{"hello", "world"}},
		{name: "punctuation split", in: "re-indexing, fast!", want: []string{"re", "indexing", "fast"}},
		{name: "short tokens dropped", in: "a b cd", want: []string{"cd"}},
		{name: "digits kept", in: "q3 2024 revenue", want: []string{"q3", "2024", "revenue"}},
		{name: "empty", in: "", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func testSparseIndex() *SparseIndex {
	return BuildSparseIndex([]indexable{
		{id: "d1-0000", text: "the solar array produces clean energy"},
		{id: "d1-0001", text: "battery storage smooths solar output overnight"},
		{id: "d2-0000", text: "quarterly revenue grew eight percent"},
		{id: "d2-0001", text: "operating expenses were flat quarter over quarter"},
		{id: "d3-0000", text: "annual report covers fiscal performance highlights"},
	})
}

func TestSparseSearchRanksMatchingChunks(t *testing.T) {
	idx := testSparseIndex()

	hits := idx.Search("solar energy", 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, "d1-0000", hits[0].ID)
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestSparseSearchUnknownTerms(t *testing.T) {
	idx := testSparseIndex()

	hits := idx.Search("zeppelin chromatography", 10)
	assert.Empty(t, hits)
}

func TestSparseSearchTruncatesToK(t *testing.T) {
	idx := testSparseIndex()

	hits := idx.Search("quarter revenue solar", 2)
	assert.Len(t, hits, 2)
}

func TestSparseSearchDeterministic(t *testing.T) {
	idx := testSparseIndex()

	first := idx.Search("solar quarter", 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, idx.Search("solar quarter", 10))
	}
}

func TestSparseSearchEmptyIndex(t *testing.T) {
	idx := BuildSparseIndex(nil)
	assert.Empty(t, idx.Search("anything", 5))
	assert.Equal(t, 0, idx.Count())
}

func TestSparseIDFRareTermWins(t *testing.T) {
	// "solar" appears in two chunks, "battery" in one. A chunk matching
	// the rarer term should outrank one matching only the common term.
	idx := testSparseIndex()

	hits := idx.Search("battery", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1-0001", hits[0].ID)

	battery := hits[0].Score
	solar := idx.Search("solar", 10)[0].Score
	assert.Greater(t, battery, solar)
}
