package engine

import "errors"

// Precondition violations. All are rejected atomically: the aggregate is
// untouched when any of these is returned.
var (
	ErrWrongPhase   = errors.New("engine: operation not allowed in current settlement phase")
	ErrTooEarly     = errors.New("engine: time precondition not met")
	ErrAlreadyDone  = errors.New("engine: operation already performed")
	ErrClosed       = errors.New("engine: game is closed")
	ErrPickLocked   = errors.New("engine: picks are locked for this week")
	ErrTicketNotFound = errors.New("engine: ticket not found")
	ErrNotFounder   = errors.New("engine: founding membership required")
	ErrDrawCap      = errors.New("engine: treasury draw cap exceeded for window")
	ErrBadProposal  = errors.New("engine: unknown or expired proposal")
)

// ErrRetryable wraps external-collaborator failures the caller may simply
// retry; the specific credit or operation was rolled back.
var ErrRetryable = errors.New("engine: retryable external failure")
