// Package store persists games, rosters and event logs. A session can be
// rehydrated from LoadGame, Roster and Events alone.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/courtside/scorekeeper-server-go/internal/game"
)

// EventStore is the persistence collaborator of the game engine.
type EventStore interface {
	SaveGame(ctx context.Context, info game.GameInfo) error
	LoadGame(ctx context.Context, gameID string) (game.GameInfo, error)
	ListGames(ctx context.Context) ([]game.GameInfo, error)
	SaveRoster(ctx context.Context, gameID string, roster []game.RosterEntry) error
	Roster(ctx context.Context, gameID string) ([]game.RosterEntry, error)
	// AppendEvent stores ev. Appending an event that is already stored is a no-op.
	AppendEvent(ctx context.Context, ev game.Event) error
	// DeleteEvent removes an undone event.
	DeleteEvent(ctx context.Context, gameID, eventID string) error
	// Events returns the event log of a game in sequence order.
	Events(ctx context.Context, gameID string) ([]game.Event, error)
	Ping(ctx context.Context) error
	Close() error
}

// Load reads everything needed to restore a game.
func Load(ctx context.Context, st EventStore, gameID string) (game.Archive, error) {
	info, err := st.LoadGame(ctx, gameID)
	if err != nil {
		return game.Archive{}, err
	}
	roster, err := st.Roster(ctx, gameID)
	if err != nil {
		return game.Archive{}, err
	}
	events, err := st.Events(ctx, gameID)
	if err != nil {
		return game.Archive{}, err
	}
	return game.Archive{Game: info, Roster: roster, Events: events}, nil
}

func notFound(gameID string) error {
	return fmt.Errorf("%w: %s", game.ErrGameNotFound, gameID)
}

func encodeGame(info game.GameInfo) ([]byte, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshaling game %s: %w", info.ID, err)
	}
	return data, nil
}

func decodeGame(data []byte) (game.GameInfo, error) {
	var info game.GameInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return game.GameInfo{}, fmt.Errorf("unmarshaling game: %w", err)
	}
	return info, nil
}

func decodeEvent(data []byte) (game.Event, error) {
	var ev game.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return game.Event{}, fmt.Errorf("unmarshaling event: %w", err)
	}
	return ev, nil
}
