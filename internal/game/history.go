package game

import (
	"fmt"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// History is the append-only list of committed events of a game.
type History struct {
	events []Event
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{events: make([]Event, 0, 128)}
}

// Record appends a committed event.
func (h *History) Record(e Event) {
	h.events = append(h.events, e)
}

// Len returns the number of committed events.
func (h *History) Len() int { return len(h.events) }

// Last returns the most recent event.
func (h *History) Last() (Event, bool) {
	if len(h.events) == 0 {
		return Event{}, false
	}
	return h.events[len(h.events)-1], true
}

// Events returns a deep copy of the committed events in order.
func (h *History) Events() []Event {
	events := make([]Event, len(h.events))
	for i, e := range h.events {
		events[i] = e.Clone()
	}
	return events
}

// Dependents returns the IDs of events whose parent is id.
func (h *History) Dependents(id string) []string {
	var ids []string
	for _, e := range h.events {
		if e.ParentID == id {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// UndoLast removes the most recent event and applies its inverse to the
// ledger. An event that other events still depend on is not undone.
func (h *History) UndoLast(l *Ledger) (Event, error) {
	last, ok := h.Last()
	if !ok {
		return Event{}, rules.ErrNothingToUndo
	}
	if deps := h.Dependents(last.ID); len(deps) > 0 {
		return Event{}, fmt.Errorf("%w: undo %v first", rules.ErrHasDependents, deps)
	}
	if err := l.apply(last.Delta.Inverse()); err != nil {
		return Event{}, fmt.Errorf("failed to reverse %s event %d: %w", last.Kind(), last.Seq, err)
	}
	h.events = h.events[:len(h.events)-1]
	return last, nil
}
