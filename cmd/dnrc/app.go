package main

import (
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/dnrc/internal/dnr/common/clock"
	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/config"
	"github.com/haukened/dnrc/internal/dnr/gateways/fetcher"
	"github.com/haukened/dnrc/internal/dnr/repos/boltdb"
	"github.com/haukened/dnrc/internal/dnr/repos/filterlist/bloom"
	"github.com/haukened/dnrc/internal/dnr/repos/filterlist/parsers"
	"github.com/haukened/dnrc/internal/dnr/repos/matchcache"
	boltengine "github.com/haukened/dnrc/internal/dnr/repos/ruleset/bolt"
	"github.com/haukened/dnrc/internal/dnr/repos/togglestate"
	"github.com/haukened/dnrc/internal/dnr/services/compiler"
	"github.com/haukened/dnrc/internal/dnr/services/controller"
	"github.com/haukened/dnrc/internal/dnr/services/installer"
	"github.com/haukened/dnrc/internal/dnr/services/matcher"
	"github.com/haukened/dnrc/internal/dnr/services/overlay"
	"github.com/haukened/dnrc/internal/dnr/services/pipeline"
)

// Application holds the wired components behind the CLI commands.
type Application struct {
	config     *config.AppConfig
	db         *bbolt.DB
	engine     *boltengine.Engine
	toggles    *togglestate.Store
	overlay    *overlay.Manager
	controller *controller.Controller
	matcher    *matcher.Matcher
}

// buildApplication opens the database and wires every layer.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}

	db, err := boltdb.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	app := &Application{config: cfg, db: db}
	if err := app.wire(cfg, clk); err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func (app *Application) wire(cfg *config.AppConfig, clk clock.Clock) error {
	var err error

	// Build repository layer
	app.engine, err = boltengine.New(app.db, cfg.EngineMaxRules)
	if err != nil {
		return fmt.Errorf("failed to open rule engine: %w", err)
	}
	app.toggles, err = togglestate.New(app.db, clk)
	if err != nil {
		return fmt.Errorf("failed to open toggle store: %w", err)
	}
	cache, err := matchcache.New(cfg.MatchCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create match cache: %w", err)
	}

	// Build service layer
	inst, err := installer.New(installer.Options{
		Engine:     app.engine,
		PruneStale: cfg.PruneStale,
		Logger:     log.Component("installer"),
	})
	if err != nil {
		return err
	}
	bulk, err := pipeline.New(pipeline.Options{
		Locators:  cfg.Sources,
		Fetcher:   newFetcher(cfg),
		Parse:     parsers.ParseAll,
		Compiler:  newCompiler(cfg),
		Installer: inst,
		Clock:     clk,
		Logger:    log.Component("pipeline"),
	})
	if err != nil {
		return err
	}
	app.overlay, err = overlay.New(overlay.Options{
		Engine: app.engine,
		Bulk:   bulk,
		Target: cfg.RedirectURL,
		Logger: log.Component("overlay"),
	})
	if err != nil {
		return err
	}
	app.controller = controller.New(app.overlay, app.toggles, log.Component("controller"))
	app.matcher = matcher.New(app.engine, cache, log.Component("matcher"))

	log.Debug(map[string]any{
		"db_path":          cfg.DBPath,
		"sources":          len(cfg.Sources),
		"engine_max_rules": cfg.EngineMaxRules,
		"prune_stale":      cfg.PruneStale,
		"match_cache_size": cfg.MatchCacheSize,
	}, "application_wired")
	return nil
}

// Close releases the database handle.
func (app *Application) Close() error {
	return app.db.Close()
}

func newFetcher(cfg *config.AppConfig) *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{
		Timeout:     cfg.FetchTimeout,
		Concurrency: cfg.FetchConcurrency,
		UserAgent:   appName + "/" + version,
		Logger:      log.Component("fetcher"),
	})
}

func newCompiler(cfg *config.AppConfig) *compiler.Compiler {
	return compiler.New(compiler.Options{
		Dedup:    cfg.Dedup,
		MaxRules: cfg.MaxRules,
		Bloom:    bloom.NewFactory(),
		FPRate:   cfg.BloomFPRate,
		Logger:   log.Component("compiler"),
	})
}
