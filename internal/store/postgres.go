package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game"
)

// Postgres is the server event store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ EventStore = (*Postgres)(nil)

// OpenPostgres connects to url, verifies the connection and applies
// migrations.
func OpenPostgres(ctx context.Context, url string, maxConns int32, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	p := &Postgres{pool: pool, logger: logger}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	stats := pool.Stat()
	logger.Info("database connection pool initialized",
		zap.Int32("total_conns", stats.TotalConns()),
		zap.Int32("max_conns", stats.MaxConns()),
	)
	return p, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping checks the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS roster (
			game_id TEXT NOT NULL REFERENCES games(id),
			player_id TEXT NOT NULL,
			team_id TEXT NOT NULL,
			name TEXT NOT NULL,
			number TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (game_id, player_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL REFERENCES games(id),
			seq BIGINT NOT NULL,
			kind TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			data JSONB NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_game_seq ON events(game_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// SaveGame inserts or updates the game record.
func (p *Postgres) SaveGame(ctx context.Context, info game.GameInfo) error {
	data, err := encodeGame(info)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO games (id, status, data, updated_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, updated_at = now()`,
		info.ID, string(info.Status), data,
	)
	return err
}

// LoadGame returns the game record.
func (p *Postgres) LoadGame(ctx context.Context, gameID string) (game.GameInfo, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM games WHERE id = $1`, gameID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.GameInfo{}, notFound(gameID)
	}
	if err != nil {
		return game.GameInfo{}, err
	}
	return decodeGame(data)
}

// ListGames returns every stored game, most recently updated first.
func (p *Postgres) ListGames(ctx context.Context) ([]game.GameInfo, error) {
	rows, err := p.pool.Query(ctx, `SELECT data FROM games ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.GameInfo, error) {
		var data []byte
		if err := row.Scan(&data); err != nil {
			return game.GameInfo{}, err
		}
		return decodeGame(data)
	})
}

// SaveRoster replaces the roster of a game.
func (p *Postgres) SaveRoster(ctx context.Context, gameID string, roster []game.RosterEntry) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM roster WHERE game_id = $1`, gameID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, e := range roster {
			batch.Queue(
				`INSERT INTO roster (game_id, player_id, team_id, name, number, position) VALUES ($1, $2, $3, $4, $5, $6)`,
				gameID, e.PlayerID, e.TeamID, e.Name, e.Number, i,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// Roster returns the roster of a game in the order it was saved.
func (p *Postgres) Roster(ctx context.Context, gameID string) ([]game.RosterEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT player_id, team_id, name, number FROM roster WHERE game_id = $1 ORDER BY position`, gameID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.RosterEntry, error) {
		var e game.RosterEntry
		err := row.Scan(&e.PlayerID, &e.TeamID, &e.Name, &e.Number)
		return e, err
	})
}

// AppendEvent stores a committed event.
func (p *Postgres) AppendEvent(ctx context.Context, ev game.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO events (id, game_id, seq, kind, parent_id, data) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.GameID, ev.Seq, string(ev.Kind()), ev.ParentID, data,
	)
	return err
}

// DeleteEvent removes an undone event.
func (p *Postgres) DeleteEvent(ctx context.Context, gameID, eventID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM events WHERE game_id = $1 AND id = $2`, gameID, eventID)
	return err
}

// Events returns the event log of a game in sequence order.
func (p *Postgres) Events(ctx context.Context, gameID string) ([]game.Event, error) {
	rows, err := p.pool.Query(ctx, `SELECT data FROM events WHERE game_id = $1 ORDER BY seq`, gameID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (game.Event, error) {
		var data []byte
		if err := row.Scan(&data); err != nil {
			return game.Event{}, err
		}
		return decodeEvent(data)
	})
}
