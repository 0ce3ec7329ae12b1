package rules

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the engine wraps exactly one of
// these so callers can decide how to surface it.
var (
	// ErrInvalidState marks a rejected command: no state was changed and the
	// caller must correct its selection.
	ErrInvalidState = errors.New("invalid state")
	// ErrPreconditionFailed marks a benign no-op such as undo on an empty history.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrConfiguration marks a rejected settings update; prior settings are kept.
	ErrConfiguration = errors.New("configuration error")
)

var (
	ErrFouledOut            = fmt.Errorf("%w: player has fouled out", ErrInvalidState)
	ErrEjected              = fmt.Errorf("%w: player has been ejected", ErrInvalidState)
	ErrNotOnCourt           = fmt.Errorf("%w: player is not on court", ErrInvalidState)
	ErrUnknownPlayer        = fmt.Errorf("%w: unknown player", ErrInvalidState)
	ErrInteractionPending   = fmt.Errorf("%w: another interaction is pending", ErrInvalidState)
	ErrSequenceActive       = fmt.Errorf("%w: a free throw sequence is in progress", ErrInvalidState)
	ErrInvalidSubstitution  = fmt.Errorf("%w: invalid substitution", ErrInvalidState)
	ErrGameNotActive        = fmt.Errorf("%w: game is not accepting stats", ErrInvalidState)
	ErrInvalidTransition    = fmt.Errorf("%w: invalid status transition", ErrInvalidState)
	ErrHasDependents        = fmt.Errorf("%w: event has dependent events", ErrInvalidState)
	ErrNoTimeouts           = fmt.Errorf("%w: no timeouts remaining", ErrInvalidState)
	ErrInvalidSelection     = fmt.Errorf("%w: selection is not offered", ErrInvalidState)
	ErrInvalidInput         = fmt.Errorf("%w: invalid input", ErrInvalidState)
	ErrNothingToUndo        = fmt.Errorf("%w: nothing to undo", ErrPreconditionFailed)
	ErrNoFreeThrowSequence  = fmt.Errorf("%w: no free throw sequence in progress", ErrPreconditionFailed)
	ErrNoPendingInteraction = fmt.Errorf("%w: no pending interaction", ErrPreconditionFailed)
)

