package domain

import "errors"

var (
	// ErrSourceFetch marks a single source that could not be fetched. It is
	// never fatal for a run; the source is left out of compilation.
	ErrSourceFetch = errors.New("source fetch failed")

	// ErrEngineWrite wraps any failure of the engine's update call.
	ErrEngineWrite = errors.New("engine write failed")

	// ErrInvalidRule is returned by engines that reject a malformed rule.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrQuotaExceeded is returned by engines when a write would exceed their rule limit.
	ErrQuotaExceeded = errors.New("rule quota exceeded")

	// ErrReservedID is returned when a bulk rule tries to use the overlay id.
	ErrReservedID = errors.New("rule id is reserved for the overlay")

	// ErrSuperseded is returned to a queued transition that a newer request
	// replaced before it could run.
	ErrSuperseded = errors.New("transition superseded by a newer request")
)
