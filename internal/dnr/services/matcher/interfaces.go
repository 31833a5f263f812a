package matcher

import (
	"context"

	"github.com/haukened/dnrc/internal/dnr/domain"
)

// RuleSource exposes the installed rules and a counter that changes on
// every successful write.
type RuleSource interface {
	Rules(ctx context.Context) ([]domain.CompiledRule, error)
	Generation() uint64
}

// DecisionCache caches match decisions keyed by resource type and URL.
type DecisionCache interface {
	Get(key string) (domain.MatchDecision, bool)
	Put(key string, d domain.MatchDecision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}
