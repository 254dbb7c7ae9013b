package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAnalyzer() *Analyzer {
	return New(Config{
		KnownTitles: []string{"Annual Sustainability Report"},
		Aliases: map[string]string{
			"WHO": "World Health Organization",
			"R&D": "research and development",
		},
	}, nil)
}

func TestAnalyzeClassification(t *testing.T) {
	a := testAnalyzer()

	tests := []struct {
		name     string
		query    string
		wantType QueryType
	}{
		{name: "summary", query: "Summarize the main findings of the report", wantType: TypeSummary},
		{name: "listing is summary", query: "List every safety requirement mentioned", wantType: TypeSummary},
		{name: "comparison", query: "Compare the two proposals", wantType: TypeSummary},
		{name: "reasoning", query: "Why did operating costs increase this year", wantType: TypeReasoning},
		{name: "entity", query: "When was the facility opened", wantType: TypeEntity},
		{name: "person specific", query: "What did Maria Santos work on", wantType: TypePersonSpecific},
		{name: "general", query: "quarterly revenue figures", wantType: TypeGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.query)
			assert.Equal(t, tt.wantType, got.Type)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestAnalyzeComplexity(t *testing.T) {
	a := testAnalyzer()

	simple := a.Analyze("Who is the director")
	assert.Equal(t, ComplexitySimple, simple.Complexity)

	complexQ := a.Analyze("Analyze and evaluate the relationship between multiple supplier contracts and their impact on different regional markets across several fiscal years")
	assert.Equal(t, ComplexityComplex, complexQ.Complexity)

	medium := a.Analyze("the supplier contract terms for the northern region")
	assert.Equal(t, ComplexityMedium, medium.Complexity)
}

func TestAnalyzeTopKBounds(t *testing.T) {
	a := testAnalyzer()

	queries := []string{
		"Who",
		"Summarize and compare the various strategies and analyze their combined impact on revenue and also evaluate the different regional differences over multiple years",
		"quarterly revenue",
		"Why did the process change",
	}
	for _, q := range queries {
		got := a.Analyze(q)
		assert.GreaterOrEqual(t, got.TopK, 2, "query %q", q)
		assert.LessOrEqual(t, got.TopK, 15, "query %q", q)
	}

	// Reasoning queries pull more context than entity lookups.
	reasoning := a.Analyze("Why did the approach change")
	entity := a.Analyze("When was the plant opened")
	assert.Greater(t, reasoning.TopK, entity.TopK)
}

func TestAnalyzeBypassFlag(t *testing.T) {
	a := testAnalyzer()

	assert.True(t, a.Analyze("List all certifications held by staff").BypassOverlapFilter)
	assert.False(t, a.Analyze("When was the facility opened").BypassOverlapFilter)

	custom := New(Config{CompletenessFirstTypes: []string{"summary", "reasoning"}}, nil)
	assert.True(t, custom.Analyze("Why did costs change").BypassOverlapFilter)
}

func TestExtractEntities(t *testing.T) {
	a := testAnalyzer()

	got := a.Analyze("What did Maria Santos do at Acme Logistics")
	assert.Contains(t, got.Entities, "Maria Santos")
	assert.Contains(t, got.Entities, "Acme Logistics")

	// Question-initial capitalized words are not entities.
	got = a.Analyze("Where is the warehouse")
	assert.Empty(t, got.Entities)
}

func TestExtractEntitiesAliases(t *testing.T) {
	a := testAnalyzer()

	got := a.Analyze("what does the WHO guidance say")
	assert.Contains(t, got.Entities, "WHO")
	assert.Contains(t, got.Entities, "World Health Organization")
}

func TestAnalyzeKeywords(t *testing.T) {
	a := testAnalyzer()

	got := a.Analyze("Describe the quarterly revenue trends")
	assert.Contains(t, got.Keywords, "quarterly")
	assert.Contains(t, got.Keywords, "revenue")
	assert.Contains(t, got.Keywords, "trends")
	assert.NotContains(t, got.Keywords, "the")
}

func TestExpandAliases(t *testing.T) {
	a := testAnalyzer()

	expanded := a.ExpandAliases("what does WHO recommend")
	assert.True(t, strings.Contains(expanded, "World Health Organization"))

	// Reverse direction: full name pulls in the abbreviation.
	expanded = a.ExpandAliases("the World Health Organization guidance")
	assert.True(t, strings.Contains(strings.ToLower(expanded), "who"))

	// No alias present: text unchanged.
	assert.Equal(t, "plain text", a.ExpandAliases("plain text"))

	// Both forms already present: nothing appended.
	both := "WHO and the World Health Organization"
	assert.Equal(t, both, a.ExpandAliases(both))
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := testAnalyzer()
	q := "Compare the World Health Organization guidance with internal policy"

	first := a.Analyze(q)
	for i := 0; i < 3; i++ {
		got := a.Analyze(q)
		assert.Equal(t, first.Type, got.Type)
		assert.Equal(t, first.Complexity, got.Complexity)
		assert.Equal(t, first.TopK, got.TopK)
		assert.Equal(t, first.Keywords, got.Keywords)
	}
}

func TestContainsWord(t *testing.T) {
	require.True(t, containsWord("the who guidance", "who"))
	require.False(t, containsWord("whose guidance", "who"))
	require.True(t, containsWord("world health organization", "world health organization"))
}
