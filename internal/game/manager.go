package game

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type managedSession struct {
	mu      sync.Mutex
	session *Session
}

// Manager is the registry of live sessions. Commands on one session are
// serialised; different sessions run independently.
type Manager struct {
	sessions   map[string]*managedSession
	mu         sync.RWMutex
	logger     *zap.Logger
	opts       []Option
	archiveDir string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionOptions applies opts to every session the manager creates or
// restores.
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(m *Manager) { m.opts = append(m.opts, opts...) }
}

// WithArchiveDir makes Remove write an archive of the session into dir.
func WithArchiveDir(dir string) ManagerOption {
	return func(m *Manager) { m.archiveDir = dir }
}

// NewManager creates an empty registry.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		sessions: make(map[string]*managedSession),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) sessionOptions(extra []Option) []Option {
	opts := make([]Option, 0, len(m.opts)+len(extra)+1)
	opts = append(opts, WithLogger(m.logger))
	opts = append(opts, m.opts...)
	return append(opts, extra...)
}

// Create starts a new session and registers it.
func (m *Manager) Create(info GameInfo, roster []RosterEntry, opts ...Option) (*Session, error) {
	s, err := NewSession(info, roster, m.sessionOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := m.add(s); err != nil {
		return nil, err
	}
	m.logger.Info("created game session",
		zap.String("game_id", s.ID()),
		zap.String("home_team_id", info.HomeTeamID),
		zap.String("away_team_id", info.AwayTeamID),
		zap.Int("roster_size", len(roster)),
	)
	s.gameChanged(NotifyStatus)
	return s, nil
}

// Restore rebuilds a session from persisted state and registers it.
func (m *Manager) Restore(info GameInfo, roster []RosterEntry, events []Event, opts ...Option) (*Session, error) {
	s, err := Restore(info, roster, events, m.sessionOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := m.add(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID()]; exists {
		return fmt.Errorf("%w: game %s is already loaded", ErrInvalidState, s.ID())
	}
	m.sessions[s.ID()] = &managedSession{session: s}
	return nil
}

// Get returns a registered session. Use Do to run commands on it.
func (m *Manager) Get(gameID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[gameID]
	if !ok {
		return nil, false
	}
	return ms.session, true
}

// Do runs fn with exclusive access to the session.
func (m *Manager) Do(gameID string, fn func(*Session) error) error {
	m.mu.RLock()
	ms, ok := m.sessions[gameID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return fn(ms.session)
}

// Remove unregisters a session, archiving it first when an archive
// directory is configured. A running clock is stopped so the remaining time
// reaches the sink before the session is dropped.
func (m *Manager) Remove(gameID string) error {
	m.mu.Lock()
	ms, ok := m.sessions[gameID]
	delete(m.sessions, gameID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}

	ms.mu.Lock()
	ms.session.PauseClock()
	var archive Archive
	if m.archiveDir != "" {
		archive = ms.session.Archive()
	}
	ms.mu.Unlock()

	m.logger.Info("removed game session", zap.String("game_id", gameID))
	if m.archiveDir == "" {
		return nil
	}
	path, err := SaveArchiveFile(m.archiveDir, archive)
	if err != nil {
		return fmt.Errorf("failed to archive game %s: %w", gameID, err)
	}
	m.logger.Info("archived game session",
		zap.String("game_id", gameID),
		zap.Int("events", len(archive.Events)),
		zap.String("path", path),
	)
	return nil
}

// List returns the IDs of the registered sessions in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveCount returns how many registered games are in progress.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	sessions := make([]*managedSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		sessions = append(sessions, ms)
	}
	m.mu.RUnlock()

	count := 0
	for _, ms := range sessions {
		ms.mu.Lock()
		if ms.session.CanRecordStats() {
			count++
		}
		ms.mu.Unlock()
	}
	return count
}

// TickAll advances the clock of every registered session.
func (m *Manager) TickAll() {
	for _, id := range m.List() {
		_ = m.Do(id, func(s *Session) error {
			s.Tick()
			return nil
		})
	}
}
