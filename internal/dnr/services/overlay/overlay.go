package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/pipeline"
)

const (
	errEngineRequired = "overlay: engine is required"
	errBulkRequired   = "overlay: bulk runner is required"
	errListInstalled  = "list installed rules: %w"
)

// Options configures a Manager.
type Options struct {
	Engine Engine
	Bulk   BulkRunner
	// Target is where the overlay rule redirects top-level navigations.
	Target string
	Logger log.Logger
}

// Manager installs and removes the overlay rule (id 1) and triggers the
// bulk cycle when the overlay is enabled. Callers serialize transitions.
type Manager struct {
	engine  Engine
	bulk    BulkRunner
	overlay domain.CompiledRule
	logger  log.Logger

	mu   sync.RWMutex
	mode domain.OverlayMode
}

// New validates opts and returns a Manager in ModeDisabled.
func New(opts Options) (*Manager, error) {
	if opts.Engine == nil {
		return nil, errors.New(errEngineRequired)
	}
	if opts.Bulk == nil {
		return nil, errors.New(errBulkRequired)
	}
	rule := domain.NewOverlayRule(opts.Target)
	if err := rule.Validate(); err != nil {
		return nil, fmt.Errorf("overlay target: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Manager{engine: opts.Engine, bulk: opts.Bulk, overlay: rule, logger: logger}, nil
}

// Mode reports the last mode reached by Enable or Disable.
func (m *Manager) Mode() domain.OverlayMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Rule returns the overlay rule this manager installs.
func (m *Manager) Rule() domain.CompiledRule {
	return m.overlay
}

// Enable replaces the overlay rule in one engine call, then runs a bulk
// cycle. Enabling twice leaves exactly one overlay rule installed. The mode
// becomes ModeEnabled once the overlay rule is written, even if the bulk
// cycle then fails; that failure is returned alongside its report.
func (m *Manager) Enable(ctx context.Context) (pipeline.Report, error) {
	add := []domain.CompiledRule{m.overlay}
	if err := m.engine.UpdateRules(ctx, add, []int{domain.OverlayRuleID}); err != nil {
		m.logger.Error(map[string]any{"error": err}, "Overlay install failed")
		return pipeline.Report{}, fmt.Errorf("%w: %w", domain.ErrEngineWrite, err)
	}
	m.setMode(domain.ModeEnabled)
	m.logger.Info(map[string]any{"target": m.overlay.Action.Redirect.URL}, "Overlay enabled")

	rep, err := m.bulk.Run(ctx)
	if err != nil {
		m.logger.Error(map[string]any{"error": err}, "Bulk cycle failed")
		return rep, err
	}
	return rep, nil
}

// Disable removes every installed rule, overlay and bulk, in one engine
// call. It makes no engine write when nothing is installed.
func (m *Manager) Disable(ctx context.Context) error {
	installed, err := m.engine.Rules(ctx)
	if err != nil {
		return fmt.Errorf(errListInstalled, err)
	}
	if len(installed) == 0 {
		m.setMode(domain.ModeDisabled)
		m.logger.Debug(nil, "overlay_disable_noop")
		return nil
	}
	ids := domain.RuleIDs(installed)
	if err := m.engine.UpdateRules(ctx, nil, ids); err != nil {
		m.logger.Error(map[string]any{"rules": len(ids), "error": err}, "Rule removal failed")
		return fmt.Errorf("%w: %w", domain.ErrEngineWrite, err)
	}
	m.setMode(domain.ModeDisabled)
	m.logger.Info(map[string]any{"removed": len(ids)}, "Overlay disabled")
	return nil
}

func (m *Manager) setMode(mode domain.OverlayMode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}
