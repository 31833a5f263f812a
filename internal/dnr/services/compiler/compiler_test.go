package compiler_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/repos/filterlist/bloom"
	"github.com/haukened/dnrc/internal/dnr/repos/filterlist/parsers"
	"github.com/haukened/dnrc/internal/dnr/services/compiler"
)

func directives(origin string, pats ...string) []domain.FilterDirective {
	out := make([]domain.FilterDirective, len(pats))
	for i, p := range pats {
		out[i] = domain.FilterDirective{Pattern: p, SourceOrigin: origin}
	}
	return out
}

func TestCompile_Empty(t *testing.T) {
	rules := compiler.Compile(nil)
	require.NotNil(t, rules)
	assert.Empty(t, rules)

	rules = compiler.Compile([][]domain.FilterDirective{{}, {}})
	assert.Empty(t, rules, "empty sources must not produce a match-everything rule")
}

func TestCompile_ScenarioSingleSource(t *testing.T) {
	sets := parsers.ParseAll([]domain.RawSource{{
		Origin: "list-a",
		Text:   "! comment\n||ads.example.com^\n||tracker.io^\nnot-a-rule-line",
	}}, log.NewNoopLogger())

	rules := compiler.Compile(sets)
	require.Len(t, rules, 2)

	assert.Equal(t, 2, rules[0].ID)
	assert.Equal(t, "ads.example.com", rules[0].Condition.URLFilter)
	assert.Equal(t, 3, rules[1].ID)
	assert.Equal(t, "tracker.io", rules[1].Condition.URLFilter)
	for _, r := range rules {
		assert.Equal(t, domain.ActionBlock, r.Action.Type)
		assert.Equal(t, 1, r.Priority)
		assert.ElementsMatch(t, domain.AllResourceTypes(), r.Condition.ResourceTypes)
		assert.NoError(t, r.Validate())
	}
}

func TestCompile_ScenarioTwoSources(t *testing.T) {
	sets := parsers.ParseAll([]domain.RawSource{
		{Origin: "a", Text: "! comment\n||ads.example.com^\n||tracker.io^\nnot-a-rule-line"},
		{Origin: "b", Text: "||evil.test^"},
	}, log.NewNoopLogger())

	rules := compiler.Compile(sets)
	require.Len(t, rules, 3)
	assert.Equal(t, []int{2, 3, 4}, domain.RuleIDs(rules))
	assert.Equal(t, "evil.test", rules[2].Condition.URLFilter)
}

func TestCompile_ContiguousIDsNeverOne(t *testing.T) {
	sets := [][]domain.FilterDirective{
		directives("a", "a1", "a2", "a3"),
		{},
		directives("b", "b1"),
		directives("c", "c1", "c2"),
	}
	rules, st := compiler.New(compiler.Options{}).Compile(sets)
	require.Len(t, rules, 6)
	for i, r := range rules {
		assert.Equal(t, i+2, r.ID)
		assert.NotEqual(t, domain.OverlayRuleID, r.ID)
	}
	assert.Equal(t, 4, st.Sources)
	assert.Equal(t, 6, st.Directives)
	assert.Equal(t, 6, st.Rules)
}

func TestCompile_PatternVerbatimAndDuplicatesKept(t *testing.T) {
	sets := [][]domain.FilterDirective{
		directives("a", "Ads.Example.com/path*", "dup.test"),
		directives("b", "dup.test"),
	}
	rules := compiler.Compile(sets)
	require.Len(t, rules, 3)
	assert.Equal(t, "Ads.Example.com/path*", rules[0].Condition.URLFilter)
	assert.Equal(t, "dup.test", rules[1].Condition.URLFilter)
	assert.Equal(t, "dup.test", rules[2].Condition.URLFilter)
	assert.Equal(t, []int{2, 3, 4}, domain.RuleIDs(rules))
}

func TestCompile_Dedup(t *testing.T) {
	for _, tc := range []struct {
		name  string
		bloom compiler.BloomFactory
	}{
		{"exact only", nil},
		{"bloom prefilter", bloom.NewFactory()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := compiler.New(compiler.Options{Dedup: true, Bloom: tc.bloom, FPRate: 0.01})
			sets := [][]domain.FilterDirective{
				directives("a", "x.test", "y.test", "x.test"),
				directives("b", "y.test", "z.test"),
			}
			rules, st := c.Compile(sets)
			require.Len(t, rules, 3)
			assert.Equal(t, []int{2, 3, 4}, domain.RuleIDs(rules))
			assert.Equal(t, "z.test", rules[2].Condition.URLFilter)
			assert.Equal(t, 2, st.Duplicates)
			assert.Equal(t, 5, st.Directives)
		})
	}
}

func TestCompile_DedupManyPatterns(t *testing.T) {
	var pats []string
	for i := 0; i < 2000; i++ {
		pats = append(pats, fmt.Sprintf("host%d.example", i))
	}
	c := compiler.New(compiler.Options{Dedup: true, Bloom: bloom.NewFactory(), FPRate: 0.001})
	rules, st := c.Compile([][]domain.FilterDirective{directives("a", pats...), directives("b", pats...)})
	assert.Len(t, rules, 2000)
	assert.Equal(t, 2000, st.Duplicates)
	assert.Equal(t, 2001, rules[len(rules)-1].ID)
}

func TestCompile_MaxRules(t *testing.T) {
	c := compiler.New(compiler.Options{MaxRules: 2})
	rules, st := c.Compile([][]domain.FilterDirective{directives("a", "a.test", "b.test", "c.test")})
	require.Len(t, rules, 2)
	assert.Equal(t, 1, st.Truncated)
	assert.Equal(t, []int{2, 3}, domain.RuleIDs(rules))
}

func TestCompile_ApexStats(t *testing.T) {
	_, st := compiler.New(compiler.Options{}).Compile([][]domain.FilterDirective{
		directives("a", "ads.example.com", "cdn.example.com/x", "tracker.co.uk", "*.wild", "path/only"),
	})
	assert.Equal(t, 2, st.ApexDomains)
}
