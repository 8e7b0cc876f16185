package sampler

import "errors"

var (
	// ErrInvalidSchedule is returned for window/stride/overlap combinations
	// that cannot produce full-coverage context windows.
	ErrInvalidSchedule = errors.New("invalid context schedule configuration")

	// ErrUnsupportedControl is returned when a control chain link does not
	// implement the window-scope protocol. This is fatal: silently skipping
	// the link would feed the model spatially and temporally misaligned
	// control signals.
	ErrUnsupportedControl = errors.New("control does not support sliding context windows")

	// ErrShapeMismatch reports a shape violation inside a group that already
	// passed the mergeability check, or a denoise output that does not match
	// its input. It indicates a contract bug, not a recoverable condition.
	ErrShapeMismatch = errors.New("shape mismatch in batched conditioning group")
)
