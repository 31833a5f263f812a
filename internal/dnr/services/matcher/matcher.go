package matcher

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sync"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
)

const errBadURL = "invalid request url %q: %w"

type compiledRule struct {
	rule domain.CompiledRule
	re   *regexp.Regexp
}

// Matcher evaluates request URLs against the installed rules the way the
// filtering engine would. Rules are reloaded, and the decision cache
// purged, whenever the source generation moves.
type Matcher struct {
	src    RuleSource
	cache  DecisionCache
	logger log.Logger

	mu         sync.RWMutex
	generation uint64
	loaded     bool
	rules      []compiledRule
}

// New builds a Matcher over src. A nil cache disables caching.
func New(src RuleSource, cache DecisionCache, logger log.Logger) *Matcher {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Matcher{src: src, cache: cache, logger: logger}
}

// Evaluate returns the decision for a request to rawURL of resource type rt.
// Among matching rules the highest priority wins; ties go to block over
// redirect, then to the lowest id.
func (m *Matcher) Evaluate(ctx context.Context, rawURL string, rt domain.ResourceType) (domain.MatchDecision, error) {
	if !rt.IsValid() {
		return domain.NoMatch(), fmt.Errorf("unsupported resource type %q", rt)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.NoMatch(), fmt.Errorf(errBadURL, rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return domain.NoMatch(), fmt.Errorf(errBadURL, rawURL, fmt.Errorf("scheme and host are required"))
	}

	rules, err := m.current(ctx)
	if err != nil {
		return domain.NoMatch(), err
	}

	key := string(rt) + " " + rawURL
	if m.cache != nil {
		if d, ok := m.cache.Get(key); ok {
			return d, nil
		}
	}

	best := domain.NoMatch()
	var bestRule *domain.CompiledRule
	for i := range rules {
		cr := &rules[i]
		if !cr.rule.AppliesTo(rt) || !cr.re.MatchString(rawURL) {
			continue
		}
		if bestRule == nil || outranks(cr.rule, *bestRule) {
			bestRule = &cr.rule
		}
	}
	if bestRule != nil {
		best = domain.MatchDecision{
			Matched: true,
			RuleID:  bestRule.ID,
			Action:  bestRule.Action,
			Filter:  bestRule.Condition.URLFilter,
		}
	}
	if m.cache != nil {
		m.cache.Put(key, best)
	}
	m.logger.Debug(map[string]any{"url": rawURL, "type": string(rt), "matched": best.Matched, "rule_id": best.RuleID}, "match_evaluated")
	return best, nil
}

// current returns the compiled rules for the source's present generation.
func (m *Matcher) current(ctx context.Context) ([]compiledRule, error) {
	gen := m.src.Generation()
	m.mu.RLock()
	if m.loaded && m.generation == gen {
		rules := m.rules
		m.mu.RUnlock()
		return rules, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded && m.generation == gen {
		return m.rules, nil
	}
	installed, err := m.src.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	compiled := make([]compiledRule, 0, len(installed))
	for _, r := range installed {
		re, err := compileURLFilter(r.Condition.URLFilter)
		if err != nil {
			m.logger.Warn(map[string]any{"rule_id": r.ID, "filter": r.Condition.URLFilter, "error": err}, "Skipping rule with unusable urlFilter")
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, re: re})
	}
	m.rules = compiled
	m.generation = gen
	m.loaded = true
	if m.cache != nil {
		m.cache.Purge()
	}
	m.logger.Debug(map[string]any{"generation": gen, "rules": len(compiled)}, "matcher_reloaded")
	return compiled, nil
}

// outranks reports whether a beats b for the same request.
func outranks(a, b domain.CompiledRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if ra, rb := actionRank(a.Action.Type), actionRank(b.Action.Type); ra != rb {
		return ra < rb
	}
	return a.ID < b.ID
}

func actionRank(t domain.ActionType) int {
	if t == domain.ActionBlock {
		return 0
	}
	return 1
}
