package installer

import (
	"context"

	"github.com/haukened/dnrc/internal/dnr/domain"
)

// Engine is the request-filtering engine's rule table. It is only mutated
// through UpdateRules, which applies removals before additions as one
// atomic call. Adding an id that is installed and not removed in the same
// call is an error.
type Engine interface {
	UpdateRules(ctx context.Context, add []domain.CompiledRule, removeIDs []int) error
	Rules(ctx context.Context) ([]domain.CompiledRule, error)
}
