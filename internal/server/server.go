// Package server exposes game sessions over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game"
	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
	"github.com/courtside/scorekeeper-server-go/internal/store"
	"github.com/courtside/scorekeeper-server-go/internal/stream"
)

// Options wires a Server. Store and Publisher are optional.
type Options struct {
	Manager   *game.Manager
	Bus       *game.Bus
	Store     store.EventStore
	Publisher *stream.Publisher
	// Rules is the ruleset of games created without their own settings.
	Rules       rules.Settings
	CORSOrigins []string
	Logger      *zap.Logger
}

// Server handles the scorekeeper API.
type Server struct {
	manager   *game.Manager
	store     store.EventStore
	publisher *stream.Publisher
	rules     rules.Settings
	origins   []string
	logger    *zap.Logger
	hub       *Hub
}

// New creates a server and subscribes its websocket hub to opts.Bus. The bus
// must be the one the manager's sessions publish on.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		manager:   opts.Manager,
		store:     opts.Store,
		publisher: opts.Publisher,
		rules:     opts.Rules,
		origins:   opts.CORSOrigins,
		logger:    logger,
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.hub = newHub(s)
	if opts.Bus != nil {
		opts.Bus.Subscribe(s.hub.Notify)
	}
	return s
}

// Run runs the websocket hub until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1/games", func(r chi.Router) {
		r.Get("/", s.handleListGames)
		r.Post("/", s.handleCreateGame)
		r.Route("/{gameID}", func(r chi.Router) {
			r.Get("/", s.handleGetGame)
			r.Delete("/", s.handleUnloadGame)
			r.Get("/events", s.handleEvents)
			r.Get("/checksum", s.handleChecksum)
			r.Get("/boxscore", s.handleBoxScore)
			r.Post("/commands", s.handleCommand)
			r.Get("/ws", s.handleWS)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"games":        len(s.manager.List()),
		"active_games": s.manager.ActiveCount(),
		"clients":      s.hub.ClientCount(),
		"timestamp":    time.Now().UTC(),
	})
}

// CreateGameRequest is the body of a create game request.
type CreateGameRequest struct {
	ID           string             `json:"id,omitempty"`
	HomeTeamID   string             `json:"home_team_id"`
	AwayTeamID   string             `json:"away_team_id"`
	HomeTeamName string             `json:"home_team_name,omitempty"`
	AwayTeamName string             `json:"away_team_name,omitempty"`
	Settings     *rules.Settings    `json:"settings,omitempty"`
	Roster       []game.RosterEntry `json:"roster"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, fmt.Errorf("%w: %v", errBadCommand, err))
		return
	}
	settings := s.rules
	if req.Settings != nil {
		settings = *req.Settings
	}
	info := game.GameInfo{
		ID:           req.ID,
		HomeTeamID:   req.HomeTeamID,
		AwayTeamID:   req.AwayTeamID,
		HomeTeamName: req.HomeTeamName,
		AwayTeamName: req.AwayTeamName,
		Settings:     settings,
	}
	sess, err := s.manager.Create(info, req.Roster)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var view game.View
	_ = s.manager.Do(sess.ID(), func(sess *game.Session) error {
		view = sess.View()
		return nil
	})
	if s.store != nil {
		if err := s.store.SaveGame(r.Context(), view.Game); err != nil {
			s.respondError(w, fmt.Errorf("failed to save game: %w", err))
			return
		}
		if err := s.store.SaveRoster(r.Context(), view.Game.ID, req.Roster); err != nil {
			s.respondError(w, fmt.Errorf("failed to save roster: %w", err))
			return
		}
	}
	s.respondJSON(w, http.StatusCreated, view)
}

// GameSummary is one entry of the game list.
type GameSummary struct {
	game.GameInfo
	Loaded bool `json:"loaded"`
}

// handleListGames lists loaded games first, then persisted games that are not
// in memory.
func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games := make([]GameSummary, 0)
	loaded := make(map[string]bool)
	for _, id := range s.manager.List() {
		_ = s.manager.Do(id, func(sess *game.Session) error {
			games = append(games, GameSummary{GameInfo: sess.Game(), Loaded: true})
			loaded[id] = true
			return nil
		})
	}
	if s.store != nil {
		stored, err := s.store.ListGames(r.Context())
		if err != nil {
			s.respondError(w, fmt.Errorf("failed to list games: %w", err))
			return
		}
		for _, info := range stored {
			if !loaded[info.ID] {
				games = append(games, GameSummary{GameInfo: info})
			}
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"games": games, "count": len(games)})
}

// load makes sure gameID is in memory, restoring it from the store if needed.
func (s *Server) load(ctx context.Context, gameID string) error {
	if _, ok := s.manager.Get(gameID); ok {
		return nil
	}
	if s.store == nil {
		return fmt.Errorf("%w: %s", game.ErrGameNotFound, gameID)
	}
	archive, err := store.Load(ctx, s.store, gameID)
	if err != nil {
		return err
	}
	_, err = s.manager.Restore(archive.Game, archive.Roster, archive.Events)
	if errors.Is(err, game.ErrInvalidState) {
		// Restored concurrently by another request.
		if _, ok := s.manager.Get(gameID); ok {
			return nil
		}
	}
	return err
}

// withSession loads the game and runs fn with exclusive access to it.
func (s *Server) withSession(ctx context.Context, gameID string, fn func(*game.Session) error) error {
	if err := s.load(ctx, gameID); err != nil {
		return err
	}
	return s.manager.Do(gameID, fn)
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	var view game.View
	err := s.withSession(r.Context(), chi.URLParam(r, "gameID"), func(sess *game.Session) error {
		view = sess.View()
		return nil
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleUnloadGame(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(chi.URLParam(r, "gameID")); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var events []game.Event
	err := s.withSession(r.Context(), chi.URLParam(r, "gameID"), func(sess *game.Session) error {
		events = sess.Events()
		return nil
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	if events == nil {
		events = []game.Event{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) handleChecksum(w http.ResponseWriter, r *http.Request) {
	var sum game.Checksum
	err := s.withSession(r.Context(), chi.URLParam(r, "gameID"), func(sess *game.Session) error {
		var err error
		sum, err = sess.Checksum()
		return err
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sum)
}

// handleBoxScore serves the live ledger of a loaded game, falling back to the
// Redis cache for games that are not in memory.
func (s *Server) handleBoxScore(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	var box stream.BoxScore
	err := s.manager.Do(gameID, func(sess *game.Session) error {
		box = stream.BoxScore{Game: sess.Game(), Ledger: sess.Ledger().Snapshot(), UpdatedAt: time.Now().UTC()}
		return nil
	})
	if errors.Is(err, game.ErrGameNotFound) && s.publisher != nil {
		cached, cacheErr := s.publisher.BoxScore(r.Context(), gameID)
		if cacheErr == nil {
			s.respondJSON(w, http.StatusOK, cached)
			return
		}
		if !errors.Is(cacheErr, stream.ErrNoBoxScore) {
			s.logger.Warn("failed to read cached box score", zap.String("game_id", gameID), zap.Error(cacheErr))
		}
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, box)
}

// CommandResponse is the reply to a command.
type CommandResponse struct {
	Result any       `json:"result,omitempty"`
	View   game.View `json:"view"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.respondError(w, fmt.Errorf("%w: %v", errBadCommand, err))
		return
	}
	resp, err := s.execute(r.Context(), chi.URLParam(r, "gameID"), cmd)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// execute runs cmd with exclusive access to the game.
func (s *Server) execute(ctx context.Context, gameID string, cmd Command) (CommandResponse, error) {
	var resp CommandResponse
	err := s.withSession(ctx, gameID, func(sess *game.Session) error {
		result, err := dispatch(sess, cmd)
		if err != nil {
			return err
		}
		resp = CommandResponse{Result: result, View: sess.View()}
		return nil
	})
	if err != nil {
		s.logger.Debug("command rejected",
			zap.String("game_id", gameID),
			zap.String("command", string(cmd.Type)),
			zap.Error(err),
		)
		return CommandResponse{}, err
	}
	if s.publisher != nil {
		s.publisher.CacheBoxScore(resp.View.Game, resp.View.Ledger)
	}
	return resp, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if err := s.load(r.Context(), gameID); err != nil {
		s.respondError(w, err)
		return
	}
	s.hub.serveWS(w, r, gameID)
}
