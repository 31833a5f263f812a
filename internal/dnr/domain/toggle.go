package domain

import "time"

// ToggleState is the process-wide on/off switch that drives the overlay and
// the bulk rule set.
type ToggleState bool

const (
	ToggleOff ToggleState = false
	ToggleOn  ToggleState = true
)

func (s ToggleState) String() string {
	if s {
		return "on"
	}
	return "off"
}

// ToggleChange is one notification from the toggle store.
type ToggleChange struct {
	State     ToggleState
	ChangedAt time.Time
}

// OverlayMode is the state of the overlay state machine.
type OverlayMode uint8

const (
	// ModeDisabled is the initial state: nothing installed by dnrc.
	ModeDisabled OverlayMode = iota
	// ModeEnabled means the overlay and the bulk rule set are installed.
	ModeEnabled
)

func (m OverlayMode) String() string {
	if m == ModeEnabled {
		return "enabled"
	}
	return "disabled"
}

// ModeFor maps a toggle state onto the overlay mode it requests.
func ModeFor(s ToggleState) OverlayMode {
	if s {
		return ModeEnabled
	}
	return ModeDisabled
}
