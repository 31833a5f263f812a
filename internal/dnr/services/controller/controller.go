package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/pipeline"
)

// Outcome describes one applied transition.
type Outcome struct {
	State domain.ToggleState
	Mode  domain.OverlayMode
	// Bulk is set when the transition ran a bulk cycle.
	Bulk *pipeline.Report
}

// Controller turns toggle states into overlay transitions. Transitions
// share one admission lock, so at most one touches the engine at a time.
// Waiting requests are coalesced: when the lock frees, only the newest
// request runs and older waiters return domain.ErrSuperseded. A run that has
// started always completes.
type Controller struct {
	overlay  Overlay
	store    ToggleStore
	logger   log.Logger
	observer Observer

	admission sync.Mutex
	latest    atomic.Uint64
}

// New builds a Controller.
func New(overlay Overlay, store ToggleStore, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Controller{overlay: overlay, store: store, logger: logger}
}

// SetObserver attaches an observer for transition results.
func (c *Controller) SetObserver(o Observer) {
	c.observer = o
}

// Apply drives the overlay to the mode state requests.
func (c *Controller) Apply(ctx context.Context, state domain.ToggleState) (Outcome, error) {
	out, err := c.apply(ctx, state)
	if c.observer != nil {
		c.observer.ObserveTransition(state, out.Mode, resultOf(err))
		if out.Bulk != nil {
			c.observer.ObserveBulk(*out.Bulk)
		}
	}
	return out, err
}

func (c *Controller) apply(ctx context.Context, state domain.ToggleState) (Outcome, error) {
	ticket := c.latest.Add(1)

	c.admission.Lock()
	defer c.admission.Unlock()

	if ticket != c.latest.Load() {
		c.logger.Debug(map[string]any{"state": state.String(), "ticket": ticket}, "transition_superseded")
		return Outcome{State: state, Mode: c.overlay.Mode()}, fmt.Errorf("%w: toggle %s", domain.ErrSuperseded, state)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{State: state, Mode: c.overlay.Mode()}, err
	}

	out := Outcome{State: state}
	var err error
	switch domain.ModeFor(state) {
	case domain.ModeEnabled:
		var rep pipeline.Report
		rep, err = c.overlay.Enable(ctx)
		out.Bulk = &rep
	default:
		err = c.overlay.Disable(ctx)
	}
	out.Mode = c.overlay.Mode()
	return out, err
}

// Toggle persists state and applies it.
func (c *Controller) Toggle(ctx context.Context, state domain.ToggleState) (Outcome, error) {
	if _, err := c.store.Set(ctx, state); err != nil {
		return Outcome{State: state, Mode: c.overlay.Mode()}, fmt.Errorf("persist toggle: %w", err)
	}
	return c.Apply(ctx, state)
}

// Refresh re-applies the persisted state. When the toggle is on this
// re-fetches every source and reinstalls the bulk set.
func (c *Controller) Refresh(ctx context.Context) (Outcome, error) {
	cur, err := c.store.Get(ctx)
	if err != nil {
		return Outcome{Mode: c.overlay.Mode()}, fmt.Errorf("read toggle: %w", err)
	}
	return c.Apply(ctx, cur.State)
}

// Watch applies the persisted state once, then every toggle change until
// ctx is canceled. Transition errors are logged, not returned.
func (c *Controller) Watch(ctx context.Context) error {
	changes, cancel := c.store.Subscribe()
	defer cancel()

	c.report(c.Refresh(ctx))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			c.logger.Debug(map[string]any{"state": change.State.String(), "changed_at": change.ChangedAt}, "toggle_changed")
			c.report(c.Apply(ctx, change.State))
		}
	}
}

// resultOf maps a transition error onto a short result label.
func resultOf(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrSuperseded):
		return "superseded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}

// report logs the result of a transition.
func (c *Controller) report(out Outcome, err error) {
	fields := map[string]any{"state": out.State.String(), "mode": out.Mode.String()}
	if out.Bulk != nil {
		fields["fetched"] = out.Bulk.Fetched
		fields["failed_sources"] = out.Bulk.FailedSources()
		fields["rules"] = out.Bulk.Compile.Rules
	}
	switch {
	case err == nil:
		c.logger.Info(fields, "Transition applied")
	case errors.Is(err, domain.ErrSuperseded):
		c.logger.Debug(fields, "transition_skipped")
	case errors.Is(err, context.Canceled):
		c.logger.Warn(fields, "Transition canceled")
	default:
		fields["error"] = err
		c.logger.Error(fields, "Transition failed")
	}
}
