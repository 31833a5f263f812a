package overlay

import (
	"context"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/pipeline"
)

// Engine is the subset of the filtering engine the overlay manager drives.
type Engine interface {
	UpdateRules(ctx context.Context, add []domain.CompiledRule, removeIDs []int) error
	Rules(ctx context.Context) ([]domain.CompiledRule, error)
}

// BulkRunner performs one fetch, parse, compile and install cycle.
type BulkRunner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}
