package pipeline

import (
	"context"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/compiler"
	"github.com/haukened/dnrc/internal/dnr/services/installer"
)

// SourceFetcher retrieves raw filter-list text. Failed sources are left out
// of the result and reported through the error, which is not fatal.
type SourceFetcher interface {
	Fetch(ctx context.Context, locators []string) ([]domain.RawSource, error)
}

// ParseFunc turns fetched sources into one directive sequence per source.
type ParseFunc func(sources []domain.RawSource, logger log.Logger) [][]domain.FilterDirective

// RuleCompiler maps directive sequences to bulk rules.
type RuleCompiler interface {
	Compile(sets [][]domain.FilterDirective) ([]domain.CompiledRule, compiler.Stats)
}

// RuleInstaller swaps a bulk rule set into the engine.
type RuleInstaller interface {
	Install(ctx context.Context, rules []domain.CompiledRule) (installer.Result, error)
}
