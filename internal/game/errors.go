package game

import (
	"errors"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// Error categories and the specific errors callers match on. They alias the
// rules package values so errors.Is works on either name.
var (
	ErrInvalidState       = rules.ErrInvalidState
	ErrPreconditionFailed = rules.ErrPreconditionFailed
	ErrConfiguration      = rules.ErrConfiguration

	ErrFouledOut            = rules.ErrFouledOut
	ErrEjected              = rules.ErrEjected
	ErrNotOnCourt           = rules.ErrNotOnCourt
	ErrUnknownPlayer        = rules.ErrUnknownPlayer
	ErrInteractionPending   = rules.ErrInteractionPending
	ErrSequenceActive       = rules.ErrSequenceActive
	ErrInvalidSubstitution  = rules.ErrInvalidSubstitution
	ErrGameNotActive        = rules.ErrGameNotActive
	ErrInvalidTransition    = rules.ErrInvalidTransition
	ErrHasDependents        = rules.ErrHasDependents
	ErrNoTimeouts           = rules.ErrNoTimeouts
	ErrInvalidSelection     = rules.ErrInvalidSelection
	ErrInvalidInput         = rules.ErrInvalidInput
	ErrNothingToUndo        = rules.ErrNothingToUndo
	ErrNoFreeThrowSequence  = rules.ErrNoFreeThrowSequence
	ErrNoPendingInteraction = rules.ErrNoPendingInteraction
	ErrInvalidSettings      = rules.ErrInvalidSettings
)

// ErrGameNotFound is returned by the Manager for unknown game IDs.
var ErrGameNotFound = errors.New("game not found")
