package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/haukened/dnrc/internal/dnr/common/clock"
	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/compiler"
	"github.com/haukened/dnrc/internal/dnr/services/installer"
)

const errMissingDependency = "pipeline: %s is required"

// Pipeline runs one bulk cycle: fetch, parse, compile, install.
type Pipeline struct {
	locators  []string
	fetcher   SourceFetcher
	parse     ParseFunc
	compiler  RuleCompiler
	installer RuleInstaller
	clock     clock.Clock
	logger    log.Logger
}

// Options wires a Pipeline.
type Options struct {
	Locators  []string
	Fetcher   SourceFetcher
	Parse     ParseFunc
	Compiler  RuleCompiler
	Installer RuleInstaller
	Clock     clock.Clock
	Logger    log.Logger
}

// Report describes one bulk cycle.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Sources   int // locators requested
	Fetched   int // sources retrieved
	Compile   compiler.Stats
	Install   installer.Result
	Installed bool
	// FetchErr combines the per-source failures. It does not fail the run
	// unless every source failed.
	FetchErr error
}

// FailedSources returns how many locators could not be fetched.
func (r Report) FailedSources() int {
	return len(multierr.Errors(r.FetchErr))
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Fetcher == nil:
		return nil, fmt.Errorf(errMissingDependency, "fetcher")
	case opts.Parse == nil:
		return nil, fmt.Errorf(errMissingDependency, "parser")
	case opts.Compiler == nil:
		return nil, fmt.Errorf(errMissingDependency, "compiler")
	case opts.Installer == nil:
		return nil, fmt.Errorf(errMissingDependency, "installer")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Pipeline{
		locators:  append([]string(nil), opts.Locators...),
		fetcher:   opts.Fetcher,
		parse:     opts.Parse,
		compiler:  opts.Compiler,
		installer: opts.Installer,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}, nil
}

// Run executes one bulk cycle. Fetch failures are best effort: the sources
// that arrived are compiled and installed, and the failures are kept in the
// report. When every configured source fails nothing is installed, so the
// previously installed set stays in place, and the combined fetch error is
// returned. Install errors are returned as is.
func (p *Pipeline) Run(ctx context.Context) (rep Report, err error) {
	rep = Report{StartedAt: p.clock.Now(), Sources: len(p.locators)}
	defer func() { rep.Duration = p.clock.Now().Sub(rep.StartedAt) }()

	sources, fetchErr := p.fetcher.Fetch(ctx, p.locators)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return rep, ctxErr
	}
	rep.Fetched = len(sources)
	rep.FetchErr = fetchErr
	if fetchErr != nil {
		p.logger.Warn(map[string]any{
			"failed":  len(multierr.Errors(fetchErr)),
			"fetched": rep.Fetched,
			"error":   fetchErr,
		}, "Some sources could not be fetched")
	}
	if len(sources) == 0 && len(p.locators) > 0 {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("%w: no sources returned", domain.ErrSourceFetch)
		}
		p.logger.Error(map[string]any{"sources": len(p.locators)}, "All sources failed, keeping installed rules")
		return rep, fetchErr
	}

	sets := p.parse(sources, p.logger)
	rules, stats := p.compiler.Compile(sets)
	rep.Compile = stats

	res, err := p.installer.Install(ctx, rules)
	if err != nil {
		return rep, err
	}
	rep.Install = res
	rep.Installed = true

	p.logger.Info(map[string]any{
		"sources":      rep.Sources,
		"fetched":      rep.Fetched,
		"directives":   stats.Directives,
		"rules":        stats.Rules,
		"duplicates":   stats.Duplicates,
		"truncated":    stats.Truncated,
		"apex_domains": stats.ApexDomains,
	}, "Bulk cycle complete")
	return rep, nil
}
