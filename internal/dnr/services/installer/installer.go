package installer

import (
	"context"
	"errors"
	"fmt"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
)

const (
	errEngineRequired = "engine is required"
	errListInstalled  = "list installed rules: %w"
)

// Options configures an Installer.
type Options struct {
	Engine Engine
	// PruneStale also removes installed bulk ids (>= FirstBulkRuleID) that
	// are absent from the new set. Off by default: only the new set's own
	// ids are cleared, so a shrinking rule set leaves trailing ids behind.
	PruneStale bool
	Logger     log.Logger
}

// Result reports what one Install call asked the engine to do.
type Result struct {
	Added   int
	Removed int // ids sent for removal, including ones that were not installed
	Pruned  int // stale ids removed because PruneStale is set
}

// Installer swaps a compiled bulk rule set into the engine using replace-by-id.
type Installer struct {
	engine     Engine
	pruneStale bool
	logger     log.Logger
}

// New constructs an Installer.
func New(opts Options) (*Installer, error) {
	if opts.Engine == nil {
		return nil, errors.New(errEngineRequired)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Installer{engine: opts.Engine, pruneStale: opts.PruneStale, logger: logger}, nil
}

// Install asks the engine, in one call, to remove every id in rules and add
// rules. Repeating the call with the same rules leaves the engine unchanged.
// Bulk rules may not use the overlay id. Engine failures are wrapped with
// domain.ErrEngineWrite and returned without retry.
func (i *Installer) Install(ctx context.Context, rules []domain.CompiledRule) (Result, error) {
	for _, r := range rules {
		if r.ID == domain.OverlayRuleID {
			return Result{}, fmt.Errorf("%w: bulk rule uses id %d", domain.ErrReservedID, r.ID)
		}
	}

	removeIDs := domain.RuleIDs(rules)
	res := Result{Added: len(rules)}

	if i.pruneStale {
		stale, err := i.staleIDs(ctx, rules)
		if err != nil {
			return Result{}, err
		}
		res.Pruned = len(stale)
		removeIDs = append(removeIDs, stale...)
	}
	res.Removed = len(removeIDs)

	if err := i.engine.UpdateRules(ctx, rules, removeIDs); err != nil {
		i.logger.Error(map[string]any{"rules": len(rules), "error": err}, "Rule install failed")
		return Result{}, fmt.Errorf("%w: %w", domain.ErrEngineWrite, err)
	}

	i.logger.Info(map[string]any{
		"added":   res.Added,
		"removed": res.Removed,
		"pruned":  res.Pruned,
	}, "Bulk rules installed")
	return res, nil
}

// staleIDs lists installed bulk ids that the new set does not cover.
func (i *Installer) staleIDs(ctx context.Context, rules []domain.CompiledRule) ([]int, error) {
	installed, err := i.engine.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf(errListInstalled, err)
	}
	keep := make(map[int]struct{}, len(rules))
	for _, r := range rules {
		keep[r.ID] = struct{}{}
	}
	var stale []int
	for _, r := range installed {
		if r.ID < domain.FirstBulkRuleID {
			continue
		}
		if _, ok := keep[r.ID]; !ok {
			stale = append(stale, r.ID)
		}
	}
	return stale, nil
}
