package compiler

import (
	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/common/utils"
	"github.com/haukened/dnrc/internal/dnr/domain"
)

// Options configures a Compiler. The zero value reproduces the plain
// behavior: no dedup, no cap.
type Options struct {
	// Dedup drops repeated patterns; the first occurrence keeps its place.
	Dedup bool
	// MaxRules caps the emitted rule count. 0 means unlimited.
	MaxRules int
	// Bloom is the dedup prefilter factory. When nil, dedup uses the exact set alone.
	Bloom BloomFactory
	// FPRate is the prefilter's target false-positive rate.
	FPRate float64
	Logger log.Logger
}

// Stats summarizes one Compile call.
type Stats struct {
	Sources     int
	Directives  int
	Rules       int
	Duplicates  int
	Truncated   int
	ApexDomains int // distinct registrable domains among hostname-like patterns
}

// Compiler maps directive sequences to engine rules.
type Compiler struct {
	opts   Options
	logger log.Logger
}

// New constructs a Compiler.
func New(opts Options) *Compiler {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Compiler{opts: opts, logger: logger}
}

// Compile concatenates sets in source order and assigns ids starting at
// domain.FirstBulkRuleID, one per emitted rule. Id 1 is never assigned.
// Empty input yields an empty, non-nil result.
func (c *Compiler) Compile(sets [][]domain.FilterDirective) ([]domain.CompiledRule, Stats) {
	st := Stats{Sources: len(sets)}
	for _, set := range sets {
		st.Directives += len(set)
	}

	seen := c.newSeenSet(st.Directives)
	apexes := make(map[string]struct{})
	rules := make([]domain.CompiledRule, 0, st.Directives)
	id := domain.FirstBulkRuleID

	for _, set := range sets {
		for _, d := range set {
			if seen != nil && seen.seenBefore(d.Pattern) {
				st.Duplicates++
				c.logger.Debug(map[string]any{"pattern": d.Pattern, "source": d.SourceOrigin}, "compile_skip_duplicate")
				continue
			}
			if c.opts.MaxRules > 0 && len(rules) >= c.opts.MaxRules {
				st.Truncated++
				continue
			}
			rules = append(rules, domain.NewBlockRule(id, d.Pattern))
			id++
			if host := utils.PatternHost(d.Pattern); host != "" {
				apexes[utils.ApexDomain(host)] = struct{}{}
			}
		}
	}

	st.Rules = len(rules)
	st.ApexDomains = len(apexes)
	if st.Truncated > 0 {
		c.logger.Warn(map[string]any{"max_rules": c.opts.MaxRules, "truncated": st.Truncated}, "Compiled rule set truncated")
	}
	c.logger.Debug(map[string]any{
		"sources":      st.Sources,
		"directives":   st.Directives,
		"rules":        st.Rules,
		"duplicates":   st.Duplicates,
		"apex_domains": st.ApexDomains,
	}, "compile_done")
	return rules, st
}

// Compile runs a default Compiler: no dedup, no cap.
func Compile(sets [][]domain.FilterDirective) []domain.CompiledRule {
	rules, _ := New(Options{}).Compile(sets)
	return rules
}

// seenSet answers "was this pattern emitted already". The Bloom filter
// short-circuits definite misses; the exact set settles maybes.
type seenSet struct {
	bloom BloomFilter
	exact map[string]struct{}
}

func (c *Compiler) newSeenSet(capacity int) *seenSet {
	if !c.opts.Dedup {
		return nil
	}
	s := &seenSet{exact: make(map[string]struct{}, capacity)}
	if c.opts.Bloom != nil {
		s.bloom = c.opts.Bloom.New(uint64(capacity), c.opts.FPRate)
	}
	return s
}

// seenBefore records pattern and reports whether it had already been recorded.
func (s *seenSet) seenBefore(pattern string) bool {
	key := []byte(pattern)
	if s.bloom != nil && !s.bloom.MightContain(key) {
		s.bloom.Add(key)
		s.exact[pattern] = struct{}{}
		return false
	}
	if _, ok := s.exact[pattern]; ok {
		return true
	}
	if s.bloom != nil {
		s.bloom.Add(key)
	}
	s.exact[pattern] = struct{}{}
	return false
}
