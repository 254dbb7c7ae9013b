// Package analyzer classifies queries and derives retrieval parameters.
//
// Analysis is a pure function of the query string plus a small reference
// table (known titles, alias map); it performs no I/O against the
// indices.
package analyzer

import (
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// QueryType classifies the intent of a query.
type QueryType string

const (
	TypeEntity         QueryType = "entity"
	TypeSummary        QueryType = "summary"
	TypeReasoning      QueryType = "reasoning"
	TypePersonSpecific QueryType = "person_specific"
	TypeGeneral        QueryType = "general"
)

// Complexity classifies how much synthesis a query demands.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Analysis is the result of analyzing one query.
type Analysis struct {
	Type       QueryType
	Complexity Complexity

	// Entities are capitalized or alias-matched names found in the query.
	Entities []string

	// Keywords are content-bearing query terms.
	Keywords []string

	// TopK is the recommended final candidate count, clamped to [2, 15].
	TopK int

	// BypassOverlapFilter signals that completeness outweighs precision
	// for this query type and the keyword-overlap filter should be
	// skipped.
	BypassOverlapFilter bool

	// Confidence is the classifier's confidence in [0, 1].
	Confidence float64
}

// Config holds the analyzer's reference tables.
type Config struct {
	// KnownTitles lists document titles; title words found in a query
	// are treated as entities.
	KnownTitles []string

	// Aliases maps abbreviations to canonical full names (both
	// directions are expanded). Keys and values are matched
	// case-insensitively as whole words.
	Aliases map[string]string

	// CompletenessFirstTypes are query types for which the
	// keyword-overlap filter is bypassed. Defaults to ["summary"]:
	// list-everything queries lose too much recall under aggressive
	// filtering.
	CompletenessFirstTypes []string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CompletenessFirstTypes == nil {
		c.CompletenessFirstTypes = []string{string(TypeSummary)}
	}
}

// pattern pairs a matcher with an optional exclusion: the pattern counts
// only when re matches and unless does not. Works around the lack of
// negative lookahead in RE2.
type pattern struct {
	re     *regexp.Regexp
	unless *regexp.Regexp
}

func pat(expr string) pattern { return pattern{re: regexp.MustCompile(expr)} }

func patUnless(expr, unlessExpr string) pattern {
	return pattern{re: regexp.MustCompile(expr), unless: regexp.MustCompile(unlessExpr)}
}

var (
	summaryPatterns = []pattern{
		pat(`\b(summarize|summary|overview)\b`),
		pat(`\b(tell me about|describe|explain)\b`),
		pat(`\b(compare|comparison|differences|similarities|versus|vs)\b`),
		pat(`\b(list|all|every)\b`),
	}

	reasoningPatterns = []pattern{
		pat(`\b(why|how|analyze|analysis|reason|because)\b`),
		pat(`\b(relationship|impact|effect|cause|result)\b`),
		pat(`\b(strategy|approach|methodology|process)\b`),
	}

	entityPatterns = []pattern{
		patUnless(`\b(who|when|where|which)\b`, `\b(who|when|where|which)\s+is\b`),
		pat(`\b(name|title|position|role|worked|experience|education|background)\b`),
		pat(`\bwhat\s+(position|job|role|title)\b`),
		pat(`\bwhat\s+did\b`),
	}

	complexIndicators = []pattern{
		pat(`\b(compare|contrast|analyze|evaluate|synthesize)\b`),
		pat(`\b(multiple|several|various|different)\b`),
		pat(`\b(relationship|correlation|impact|effect)\b`),
		pat(`\band\b.*\band\b`),
		pat(`\bor\b.*\bor\b`),
	}

	simpleIndicators = []pattern{
		pat(`^\s*(who|what|when|where|which)\b`),
	}

	wordRe = regexp.MustCompile(`[a-zA-Z]{3,}`)
)

// stopwords excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"get": true, "has": true, "him": true, "his": true, "how": true,
	"its": true, "may": true, "new": true, "now": true, "old": true,
	"see": true, "two": true, "who": true, "did": true, "she": true,
	"use": true, "way": true, "what": true, "when": true, "where": true,
	"which": true, "about": true, "tell": true, "does": true, "with": true,
	"that": true, "this": true, "from": true, "have": true, "were": true,
}

// questionWords are never treated as entity candidates even when they
// start a sentence capitalized.
var questionWords = map[string]bool{
	"who": true, "what": true, "when": true, "where": true, "which": true,
	"why": true, "how": true, "list": true, "tell": true, "describe": true,
	"explain": true, "summarize": true, "compare": true, "the": true,
	"does": true, "did": true, "is": true, "are": true, "was": true,
}

// Analyzer classifies queries against its reference tables.
type Analyzer struct {
	config       Config
	aliases      map[string]string // lowercased abbr -> canonical
	titleWords   map[string]bool
	completeness map[QueryType]bool
	logger       *zap.Logger
}

// New creates an Analyzer. A nil logger defaults to a no-op logger.
func New(config Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	aliases := make(map[string]string, len(config.Aliases))
	for abbr, canonical := range config.Aliases {
		aliases[strings.ToLower(abbr)] = canonical
	}

	titleWords := make(map[string]bool)
	for _, title := range config.KnownTitles {
		for _, w := range strings.Fields(strings.ToLower(title)) {
			if len(w) >= 3 {
				titleWords[w] = true
			}
		}
	}

	completeness := make(map[QueryType]bool, len(config.CompletenessFirstTypes))
	for _, t := range config.CompletenessFirstTypes {
		completeness[QueryType(t)] = true
	}

	return &Analyzer{
		config:       config,
		aliases:      aliases,
		titleWords:   titleWords,
		completeness: completeness,
		logger:       logger,
	}
}

func countMatches(text string, patterns []pattern) int {
	count := 0
	for _, p := range patterns {
		if p.re.MatchString(text) && (p.unless == nil || !p.unless.MatchString(text)) {
			count++
		}
	}
	return count
}

// Analyze classifies the query and derives retrieval parameters.
func (a *Analyzer) Analyze(query string) Analysis {
	lower := strings.ToLower(query)
	entities := a.extractEntities(query)
	keywords := a.extractKeywords(lower)

	queryType, typeConf := a.detectType(lower, entities)
	complexity, complexConf := detectComplexity(lower, query)

	analysis := Analysis{
		Type:                queryType,
		Complexity:          complexity,
		Entities:            entities,
		Keywords:            keywords,
		TopK:                optimalK(queryType, complexity),
		BypassOverlapFilter: a.completeness[queryType],
		Confidence:          (typeConf + complexConf) / 2,
	}

	a.logger.Debug("query analyzed",
		zap.String("type", string(queryType)),
		zap.String("complexity", string(complexity)),
		zap.Int("top_k", analysis.TopK),
		zap.Strings("entities", entities),
		zap.Float64("confidence", analysis.Confidence),
	)
	return analysis
}

func (a *Analyzer) detectType(lower string, entities []string) (QueryType, float64) {
	if score := countMatches(lower, summaryPatterns); score > 0 {
		return TypeSummary, minF(float64(score)/2, 1)
	}
	if score := countMatches(lower, reasoningPatterns); score > 0 {
		return TypeReasoning, minF(float64(score)/2, 1)
	}
	if score := countMatches(lower, entityPatterns); score > 0 {
		// A multi-word capitalized entity makes the query about a
		// specific person or organization rather than a generic lookup.
		for _, e := range entities {
			if strings.Contains(e, " ") {
				return TypePersonSpecific, minF(float64(score+1)/2, 1)
			}
		}
		return TypeEntity, minF(float64(score)/2, 1)
	}
	return TypeGeneral, 0.5
}

func detectComplexity(lower, original string) (Complexity, float64) {
	complexScore := countMatches(lower, complexIndicators)
	simpleScore := countMatches(lower, simpleIndicators)
	length := len(strings.Fields(original))

	switch {
	case simpleScore > 0 && length <= 10:
		return ComplexitySimple, 0.8
	case complexScore >= 2 || length > 25:
		return ComplexityComplex, 0.8
	default:
		return ComplexityMedium, 0.6
	}
}

// optimalK maps (type, complexity) to a recommended final candidate
// count, clamped to [2, 15].
func optimalK(queryType QueryType, complexity Complexity) int {
	base := map[QueryType]float64{
		TypeEntity:         3,
		TypePersonSpecific: 4,
		TypeGeneral:        3,
		TypeSummary:        6,
		TypeReasoning:      7,
	}[queryType]

	mult := map[Complexity]float64{
		ComplexitySimple:  0.8,
		ComplexityMedium:  1.0,
		ComplexityComplex: 1.5,
	}[complexity]

	k := int(base * mult)
	if k < 2 {
		k = 2
	}
	if k > 15 {
		k = 15
	}
	return k
}

// extractEntities finds capitalized word runs and alias-table matches.
// The query-initial question word is excluded.
func (a *Analyzer) extractEntities(query string) []string {
	words := strings.Fields(query)
	var entities []string
	seen := make(map[string]bool)

	add := func(e string) {
		key := strings.ToLower(e)
		if !seen[key] {
			seen[key] = true
			entities = append(entities, e)
		}
	}

	var run []string
	flush := func() {
		if len(run) > 0 {
			add(strings.Join(run, " "))
			run = nil
		}
	}

	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed == "" {
			flush()
			continue
		}

		lower := strings.ToLower(trimmed)
		if canonical, ok := a.aliases[lower]; ok {
			flush()
			add(trimmed)
			add(canonical)
			continue
		}

		first, _ := firstRune(trimmed)
		capitalized := unicode.IsUpper(first)
		if capitalized && !questionWords[lower] {
			run = append(run, trimmed)
		} else {
			flush()
		}
		if a.titleWords[lower] && !capitalized {
			add(trimmed)
		}
	}
	flush()
	return entities
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

func (a *Analyzer) extractKeywords(lower string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range wordRe.FindAllString(lower, -1) {
		if !stopwords[w] && !seen[w] {
			seen[w] = true
			keywords = append(keywords, w)
		}
	}
	return keywords
}

// ExpandAliases appends the counterpart of every alias-table entry found
// in text, in both directions: an abbreviation pulls in the canonical
// full name and vice versa. Matching is case-insensitive on whole words.
// Used before keyword-overlap computation so an abbreviation in a query
// counts as present when a candidate carries only the full name.
func (a *Analyzer) ExpandAliases(text string) string {
	lower := strings.ToLower(text)
	var additions []string
	for abbr, canonical := range a.aliases {
		if containsWord(lower, abbr) && !containsWord(lower, strings.ToLower(canonical)) {
			additions = append(additions, canonical)
		}
		if containsWord(lower, strings.ToLower(canonical)) && !containsWord(lower, abbr) {
			additions = append(additions, abbr)
		}
	}
	if len(additions) == 0 {
		return text
	}
	return text + " " + strings.Join(additions, " ")
}

// containsWord reports whether phrase appears in text on word
// boundaries. Both arguments must already be lowercased.
func containsWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end == len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
