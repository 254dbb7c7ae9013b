package retriever

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/docqa/internal/analyzer"
	"github.com/fyrsmithlabs/docqa/internal/index"
)

// Strategy is the retrieval path chosen for a query.
type Strategy int

const (
	StrategyDense Strategy = iota
	StrategySparse
	StrategyHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyDense:
		return "dense"
	case StrategySparse:
		return "sparse"
	case StrategyHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

var (
	yearRe   = regexp.MustCompile(`\b\d{4}\b`)
	numberRe = regexp.MustCompile(`\$\d+|\d+%`)
)

// semanticTerms mark conceptual queries that dense retrieval handles
// better than term matching.
var semanticTerms = []string{"explain", "describe", "what is", "how does", "why", "similar", "related", "about"}

// SelectStrategy picks dense, sparse, or hybrid retrieval from query
// shape: keyword density over the domain keyword list plus entity
// presence. Short keyword-dense queries go sparse, entity-rich
// keyword-sparse queries go dense, everything else goes hybrid.
func SelectStrategy(query string, analysis analyzer.Analysis, domainKeywords []string) Strategy {
	lower := strings.ToLower(query)
	tokens := index.Tokenize(query)

	keywordSignals := 0
	if len(tokens) > 10 {
		keywordSignals++
	}
	if yearRe.MatchString(query) {
		keywordSignals++
	}
	if numberRe.MatchString(query) {
		keywordSignals++
	}
	if keywordDensity(tokens, domainKeywords) >= 0.5 {
		keywordSignals++
	}

	semanticSignals := 0
	for _, term := range semanticTerms {
		if strings.Contains(lower, term) {
			semanticSignals++
			break
		}
	}
	if len(tokens) <= 5 {
		semanticSignals++
	}
	if len(analysis.Entities) > 0 {
		semanticSignals++
	}

	switch {
	case keywordSignals >= 2:
		return StrategySparse
	case semanticSignals >= 2:
		return StrategyDense
	default:
		return StrategyHybrid
	}
}

// keywordDensity is the fraction of query tokens present in the domain
// keyword list.
func keywordDensity(tokens []string, domainKeywords []string) float64 {
	if len(tokens) == 0 || len(domainKeywords) == 0 {
		return 0
	}
	set := make(map[string]bool, len(domainKeywords))
	for _, k := range domainKeywords {
		set[strings.ToLower(k)] = true
	}
	hits := 0
	for _, t := range tokens {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}
