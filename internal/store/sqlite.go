package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/courtside/scorekeeper-server-go/internal/game"

	_ "modernc.org/sqlite" // SQLite driver.
)

// SQLite is a single-file event store for offline scoring and the CLI.
type SQLite struct {
	db *sql.DB
}

var _ EventStore = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS roster (
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			name TEXT NOT NULL,
			number TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (game_id, player_id)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_game_seq ON events(game_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveGame inserts or replaces the game record.
func (s *SQLite) SaveGame(ctx context.Context, info game.GameInfo) error {
	data, err := encodeGame(info)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (id, status, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data, updated_at = excluded.updated_at`,
		info.ID, string(info.Status), string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// LoadGame returns the game record.
func (s *SQLite) LoadGame(ctx context.Context, gameID string) (game.GameInfo, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM games WHERE id = ?`, gameID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return game.GameInfo{}, notFound(gameID)
	}
	if err != nil {
		return game.GameInfo{}, err
	}
	return decodeGame([]byte(data))
}

// ListGames returns every stored game, most recently updated first.
func (s *SQLite) ListGames(ctx context.Context) ([]game.GameInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM games ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []game.GameInfo
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		info, err := decodeGame([]byte(data))
		if err != nil {
			return nil, err
		}
		games = append(games, info)
	}
	return games, rows.Err()
}

// SaveRoster replaces the roster of a game.
func (s *SQLite) SaveRoster(ctx context.Context, gameID string, roster []game.RosterEntry) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM roster WHERE game_id = ?`, gameID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO roster (game_id, player_id, team_id, name, number, position) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range roster {
		if _, err = stmt.ExecContext(ctx, gameID, e.PlayerID, e.TeamID, e.Name, e.Number, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Roster returns the roster of a game in the order it was saved.
func (s *SQLite) Roster(ctx context.Context, gameID string) ([]game.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, team_id, name, number FROM roster WHERE game_id = ? ORDER BY position`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []game.RosterEntry
	for rows.Next() {
		var e game.RosterEntry
		if err := rows.Scan(&e.PlayerID, &e.TeamID, &e.Name, &e.Number); err != nil {
			return nil, err
		}
		roster = append(roster, e)
	}
	return roster, rows.Err()
}

// AppendEvent stores a committed event.
func (s *SQLite) AppendEvent(ctx context.Context, ev game.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, game_id, seq, kind, parent_id, data) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		ev.ID, ev.GameID, ev.Seq, string(ev.Kind()), ev.ParentID, string(data),
	)
	return err
}

// DeleteEvent removes an undone event.
func (s *SQLite) DeleteEvent(ctx context.Context, gameID, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE game_id = ? AND id = ?`, gameID, eventID)
	return err
}

// Events returns the event log of a game in sequence order.
func (s *SQLite) Events(ctx context.Context, gameID string) ([]game.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM events WHERE game_id = ? ORDER BY seq`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []game.Event
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		ev, err := decodeEvent([]byte(data))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
