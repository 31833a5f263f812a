package matcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/repos/matchcache"
	"github.com/haukened/dnrc/internal/dnr/repos/ruleset/memory"
	"github.com/haukened/dnrc/internal/dnr/services/matcher"
)

const target = "https://oldsite.example.com"

func setup(t *testing.T, rules ...domain.CompiledRule) (*matcher.Matcher, *memory.Engine, matcher.DecisionCache) {
	t.Helper()
	eng := memory.New(0)
	if len(rules) > 0 {
		require.NoError(t, eng.UpdateRules(context.Background(), rules, nil))
	}
	cache, err := matchcache.New(16)
	require.NoError(t, err)
	return matcher.New(eng, cache, nil), eng, cache
}

func TestEvaluate_NoRules(t *testing.T) {
	m, _, _ := setup(t)
	d, err := m.Evaluate(context.Background(), "https://ads.example.com/", domain.ResourceScript)
	require.NoError(t, err)
	assert.False(t, d.Matched)
}

func TestEvaluate_BlockRule(t *testing.T) {
	m, _, _ := setup(t, domain.NewBlockRule(2, "ads.example.com"))
	d, err := m.Evaluate(context.Background(), "https://ads.example.com/x.js", domain.ResourceScript)
	require.NoError(t, err)
	assert.True(t, d.IsBlocked())
	assert.Equal(t, 2, d.RuleID)
	assert.Equal(t, "ads.example.com", d.Filter)
}

func TestEvaluate_OverlayOnlyForMainFrame(t *testing.T) {
	m, _, _ := setup(t, domain.NewOverlayRule(target))
	ctx := context.Background()

	d, err := m.Evaluate(ctx, "https://news.test/", domain.ResourceMainFrame)
	require.NoError(t, err)
	assert.True(t, d.IsRedirected())
	assert.Equal(t, target, d.Action.Redirect.URL)

	d, err = m.Evaluate(ctx, "https://news.test/app.js", domain.ResourceScript)
	require.NoError(t, err)
	assert.False(t, d.Matched)
}

func TestEvaluate_BlockBeatsRedirectAtEqualPriority(t *testing.T) {
	m, _, _ := setup(t, domain.NewOverlayRule(target), domain.NewBlockRule(2, "ads.example.com"))
	d, err := m.Evaluate(context.Background(), "https://ads.example.com/", domain.ResourceMainFrame)
	require.NoError(t, err)
	assert.True(t, d.IsBlocked())
	assert.Equal(t, 2, d.RuleID)
}

func TestEvaluate_HigherPriorityWins(t *testing.T) {
	hi := domain.NewOverlayRule(target)
	hi.Priority = 5
	m, _, _ := setup(t, hi, domain.NewBlockRule(2, "ads.example.com"))
	d, err := m.Evaluate(context.Background(), "https://ads.example.com/", domain.ResourceMainFrame)
	require.NoError(t, err)
	assert.True(t, d.IsRedirected())
}

func TestEvaluate_LowestIDBreaksTies(t *testing.T) {
	m, _, _ := setup(t, domain.NewBlockRule(9, "example.com"), domain.NewBlockRule(4, "ads.example.com"))
	d, err := m.Evaluate(context.Background(), "https://ads.example.com/", domain.ResourceImage)
	require.NoError(t, err)
	assert.Equal(t, 4, d.RuleID)
}

func TestEvaluate_InvalidInput(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()
	_, err := m.Evaluate(ctx, "not a url", domain.ResourceScript)
	assert.Error(t, err)
	_, err = m.Evaluate(ctx, "https://a.test/", domain.ResourceType("bogus"))
	assert.Error(t, err)
}

func TestEvaluate_CacheHitAndGenerationPurge(t *testing.T) {
	m, eng, cache := setup(t, domain.NewBlockRule(2, "ads.example.com"))
	ctx := context.Background()
	u := "https://ads.example.com/"

	_, err := m.Evaluate(ctx, u, domain.ResourceScript)
	require.NoError(t, err)
	_, err = m.Evaluate(ctx, u, domain.ResourceScript)
	require.NoError(t, err)
	hits, _, _ := cache.Stats()
	assert.Equal(t, uint64(1), hits)

	// a write bumps the generation: the stale decision must not be served
	require.NoError(t, eng.UpdateRules(ctx, nil, []int{2}))
	d, err := m.Evaluate(ctx, u, domain.ResourceScript)
	require.NoError(t, err)
	assert.False(t, d.Matched)
	assert.Equal(t, 1, cache.Len())
}

func TestEvaluate_NilCache(t *testing.T) {
	eng := memory.New(0)
	require.NoError(t, eng.UpdateRules(context.Background(), []domain.CompiledRule{domain.NewBlockRule(2, "x.test")}, nil))
	m := matcher.New(eng, nil, nil)
	d, err := m.Evaluate(context.Background(), "https://x.test/", domain.ResourceOther)
	require.NoError(t, err)
	assert.True(t, d.IsBlocked())
}
