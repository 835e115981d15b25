package order

import "errors"

// Planning-time errors: the whole request is rejected, nothing is persisted.
var (
	ErrInvalidAmount         = errors.New("total amount must be positive")
	ErrInvalidScheduleLength = errors.New("invalid schedule length")
	ErrUnsupportedStrategy   = errors.New("unsupported strategy")
)

// ErrIllegalTransition marks a transition request not in the legal table.
// It is an invariant violation (or a lost race) and never reaches end users.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrDuplicateReport marks a fill that was already reported. Reporters
// suppress it and count it; collaborators see each fill exactly once.
var ErrDuplicateReport = errors.New("duplicate fill report")

// ErrNotFound is returned for unknown series or order identifiers.
var ErrNotFound = errors.New("not found")
