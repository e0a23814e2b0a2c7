package schedule

import "errors"

var (
	// ErrValidation marks malformed selector/date/status literals. Rejected
	// at the boundary; nothing is partially applied.
	ErrValidation = errors.New("validation failed")

	// ErrCorruptState means a persisted state file exists but cannot be
	// parsed. Fatal to the calling operation; never silently overwritten.
	ErrCorruptState = errors.New("corrupt state file")

	// ErrConflict marks a mutation that would collide with an existing
	// entry, e.g. moving onto an occupied date.
	ErrConflict = errors.New("conflict")
)
