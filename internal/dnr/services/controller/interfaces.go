package controller

import (
	"context"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/pipeline"
)

// Overlay performs the engine side of a transition.
type Overlay interface {
	Enable(ctx context.Context) (pipeline.Report, error)
	Disable(ctx context.Context) error
	Mode() domain.OverlayMode
}

// ToggleStore persists the toggle and notifies on change.
type ToggleStore interface {
	Get(ctx context.Context) (domain.ToggleChange, error)
	Set(ctx context.Context, state domain.ToggleState) (bool, error)
	Subscribe() (<-chan domain.ToggleChange, func())
}

// Observer receives transition and bulk-cycle results, for metrics.
type Observer interface {
	ObserveTransition(state domain.ToggleState, mode domain.OverlayMode, result string)
	ObserveBulk(rep pipeline.Report)
}
