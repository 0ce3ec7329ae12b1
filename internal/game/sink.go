package game

import (
	"go.uber.org/zap"
)

// MutationKind names what a persisted mutation does.
type MutationKind string

const (
	// MutationEvent appends a committed event.
	MutationEvent MutationKind = "event"
	// MutationUndo removes the most recent event.
	MutationUndo MutationKind = "undo"
	// MutationGame updates game-level state only.
	MutationGame MutationKind = "game"
)

// Mutation is a unit of work handed to the persistence collaborator. Game is
// always the game state after the mutation.
type Mutation struct {
	Kind  MutationKind `json:"kind"`
	Game  GameInfo     `json:"game"`
	Event *Event       `json:"event,omitempty"`
}

// Sink receives mutations in commit order. Enqueue must not block the caller;
// durability is the sink's concern.
type Sink interface {
	Enqueue(m Mutation)
}

// NullSink drops every mutation after logging it.
type NullSink struct {
	logger *zap.Logger
}

// NewNullSink creates a sink that only logs.
func NewNullSink(logger *zap.Logger) *NullSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NullSink{logger: logger}
}

// Enqueue logs the mutation.
func (n *NullSink) Enqueue(m Mutation) {
	fields := []zap.Field{
		zap.String("game_id", m.Game.ID),
		zap.String("mutation", string(m.Kind)),
		zap.String("status", string(m.Game.Status)),
	}
	if m.Event != nil {
		fields = append(fields,
			zap.Int64("seq", m.Event.Seq),
			zap.String("event_kind", string(m.Event.Kind())),
		)
	}
	n.logger.Debug("null sink dropped mutation", fields...)
}
