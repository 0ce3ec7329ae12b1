package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game/clock"
	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// Status is the lifecycle state of a game.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// GameInfo is the game-level record shared with the persistence collaborator.
type GameInfo struct {
	ID                    string         `json:"id"`
	HomeTeamID            string         `json:"home_team_id"`
	AwayTeamID            string         `json:"away_team_id"`
	HomeTeamName          string         `json:"home_team_name,omitempty"`
	AwayTeamName          string         `json:"away_team_name,omitempty"`
	Status                Status         `json:"status"`
	CurrentQuarter        int            `json:"current_quarter"`
	ClockSecondsRemaining int            `json:"clock_seconds_remaining"`
	HomeScore             int            `json:"home_score"`
	AwayScore             int            `json:"away_score"`
	Settings              rules.Settings `json:"settings"`
	CreatedAt             time.Time      `json:"created_at"`
}

// IsOvertime reports whether the game is past regulation.
func (g GameInfo) IsOvertime() bool {
	return g.Settings.IsOvertime(g.CurrentQuarter)
}

// Session is the live state of one game: the clock, the ledger, the pending
// interactions and the undo history. A session is not safe for concurrent
// use; the Manager serialises access.
type Session struct {
	info     GameInfo
	status   Status
	clock    *clock.Clock
	ledger   *Ledger
	workflow *rules.AttributionWorkflow
	throws   *rules.FreeThrowController
	history  *History
	seq      int64

	logger *zap.Logger
	sink   Sink
	bus    *Bus
	now    func() time.Time
	newID  func() string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSink sets the persistence sink.
func WithSink(sink Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithBus shares a notification bus with the session.
func WithBus(bus *Bus) Option {
	return func(s *Session) {
		if bus != nil {
			s.bus = bus
		}
	}
}

// WithNow overrides the wall clock used for the game clock and timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how event and sequence IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Session) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewSession creates a session for a scheduled game with the given roster.
func NewSession(info GameInfo, roster []RosterEntry, opts ...Option) (*Session, error) {
	s := &Session{
		logger:   zap.NewNop(),
		bus:      NewBus(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		workflow: rules.NewAttributionWorkflow(),
		throws:   rules.NewFreeThrowController(),
		history:  NewHistory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = NewNullSink(s.logger)
	}
	if info.ID == "" {
		info.ID = s.newID()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = s.now()
	}
	if info.Status == "" {
		info.Status = StatusScheduled
	}

	ledger, err := NewLedger(info.HomeTeamID, info.AwayTeamID, info.Settings)
	if err != nil {
		return nil, err
	}
	for _, entry := range roster {
		if err := ledger.AddPlayer(entry); err != nil {
			return nil, err
		}
	}
	s.ledger = ledger
	s.info = info
	s.status = info.Status
	s.clock = clock.New(info.Settings.PeriodLength(1), clock.WithNow(s.now))
	s.clock.OnPeriodEnd = s.periodEnded
	s.logger = s.logger.With(zap.String("game_id", info.ID))
	return s, nil
}

// Restore rebuilds a session from the persisted game record, roster and
// event log. Pending interactions are transient and start out empty.
func Restore(info GameInfo, roster []RosterEntry, events []Event, opts ...Option) (*Session, error) {
	status := info.Status
	info.Status = StatusScheduled
	s, err := NewSession(info, roster, opts...)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Payload == nil {
			return nil, fmt.Errorf("event %d has no payload", ev.Seq)
		}
		if err := s.ledger.apply(ev.Delta); err != nil {
			return nil, fmt.Errorf("failed to restore event %d (%s): %w", ev.Seq, ev.Kind(), err)
		}
		s.history.Record(ev)
		s.seq = max(s.seq, ev.Seq)
	}
	if status != "" {
		s.status = status
	}

	quarter := s.ledger.Quarter()
	if info.CurrentQuarter != 0 && info.CurrentQuarter != quarter {
		s.logger.Warn("stored quarter disagrees with event log",
			zap.Int("stored", info.CurrentQuarter),
			zap.Int("folded", quarter),
		)
	}
	if err := s.clock.SetQuarter(quarter); err != nil {
		return nil, err
	}
	seconds := info.ClockSecondsRemaining
	if len(events) == 0 && seconds == 0 {
		seconds = info.Settings.PeriodLength(quarter)
	}
	if err := s.clock.Reset(seconds); err != nil {
		return nil, err
	}

	home, away := s.ledger.Score()
	if home != info.HomeScore || away != info.AwayScore {
		s.logger.Warn("stored score disagrees with event log",
			zap.Int("stored_home", info.HomeScore),
			zap.Int("stored_away", info.AwayScore),
			zap.Int("folded_home", home),
			zap.Int("folded_away", away),
		)
	}
	s.logger.Info("restored game session",
		zap.Int("events", len(events)),
		zap.String("status", string(s.status)),
		zap.Int("quarter", quarter),
	)
	return s, nil
}

// ID returns the game ID.
func (s *Session) ID() string { return s.info.ID }

// Status returns the lifecycle state.
func (s *Session) Status() Status { return s.status }

// Bus returns the notification bus.
func (s *Session) Bus() *Bus { return s.bus }

// Ledger returns the session's ledger. Callers must not hold it across
// commands.
func (s *Session) Ledger() *Ledger { return s.ledger }

// Game returns the current game record.
func (s *Session) Game() GameInfo {
	info := s.info
	info.Status = s.status
	info.Settings = s.ledger.Settings()
	info.CurrentQuarter = s.clock.Quarter()
	info.ClockSecondsRemaining = s.clock.SecondsRemaining()
	info.HomeScore, info.AwayScore = s.ledger.Score()
	return info
}

// IsActive reports whether the game is in progress and not paused.
func (s *Session) IsActive() bool { return s.status == StatusActive }

// CanRecordStats reports whether stat commands are accepted.
func (s *Session) CanRecordStats() bool {
	return s.status == StatusActive || s.status == StatusPaused
}

// Events returns the committed events in order.
func (s *Session) Events() []Event { return s.history.Events() }

func (s *Session) requireRecording() error {
	if !s.CanRecordStats() {
		return fmt.Errorf("%w: game is %s", rules.ErrGameNotActive, s.status)
	}
	return nil
}

// requireNoPending rejects commands that would interleave with an open
// prompt or free throw sequence.
func (s *Session) requireNoPending() error {
	if !s.workflow.Idle() {
		return fmt.Errorf("%w: %s is open", rules.ErrInteractionPending, s.workflow.State())
	}
	if s.throws.Active() {
		return rules.ErrSequenceActive
	}
	return nil
}

// commit plans, applies and records an event. Nothing changes when planning
// fails.
func (s *Session) commit(p Payload, parentID string) (Event, error) {
	delta, err := p.plan(s.ledger)
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		ID:        s.newID(),
		GameID:    s.info.ID,
		Seq:       s.seq + 1,
		Timestamp: s.now(),
		Clock:     s.clock.Snapshot(),
		ParentID:  parentID,
		Delta:     delta,
		Payload:   p,
	}
	if err := s.ledger.apply(delta); err != nil {
		return Event{}, err
	}
	s.seq = ev.Seq
	s.history.Record(ev)

	actor, secondary := p.Actors()
	s.logger.Debug("committed event",
		zap.Int64("seq", ev.Seq),
		zap.String("kind", string(ev.Kind())),
		zap.String("actor", actor),
		zap.String("secondary", secondary),
		zap.Int("quarter", ev.Clock.Quarter),
		zap.Int("clock", ev.Clock.SecondsRemaining),
	)
	committed := ev
	s.sink.Enqueue(Mutation{Kind: MutationEvent, Game: s.Game(), Event: &committed})
	s.bus.Publish(Notification{Type: NotifyCommitted, GameID: s.info.ID, Event: &committed})
	return ev, nil
}

func (s *Session) gameChanged(typ NotificationType) {
	s.sink.Enqueue(Mutation{Kind: MutationGame, Game: s.Game()})
	s.bus.Publish(Notification{Type: typ, GameID: s.info.ID})
}

func (s *Session) transition(to Status, from ...Status) error {
	if !slices.Contains(from, s.status) {
		return fmt.Errorf("%w: cannot move from %s to %s", rules.ErrInvalidTransition, s.status, to)
	}
	prev := s.status
	s.status = to
	s.logger.Info("game status changed",
		zap.String("from", string(prev)),
		zap.String("to", string(to)),
	)
	s.gameChanged(NotifyStatus)
	return nil
}

// Start moves a scheduled game to active. Both teams must have a full
// starting lineup. The clock is not started.
func (s *Session) Start() error {
	if s.status == StatusScheduled {
		for _, team := range []string{s.ledger.HomeTeamID(), s.ledger.AwayTeamID()} {
			if n := len(s.ledger.OnCourt(team)); n != PlayersOnCourt {
				return fmt.Errorf("%w: team %s has %d of %d starters", rules.ErrInvalidSubstitution, team, n, PlayersOnCourt)
			}
		}
	}
	return s.transition(StatusActive, StatusScheduled)
}

// Pause suspends an active game and stops the clock.
func (s *Session) Pause() error {
	if s.status != StatusActive {
		return fmt.Errorf("%w: cannot pause a %s game", rules.ErrInvalidTransition, s.status)
	}
	s.clock.Pause()
	return s.transition(StatusPaused, StatusActive)
}

// Resume reactivates a paused game.
func (s *Session) Resume() error {
	return s.transition(StatusActive, StatusPaused)
}

// End completes the game. Completed games accept no further commands.
func (s *Session) End() error {
	if s.status != StatusActive && s.status != StatusPaused {
		return fmt.Errorf("%w: cannot end a %s game", rules.ErrInvalidTransition, s.status)
	}
	s.clock.Pause()
	_, _ = s.workflow.Cancel()
	_, _ = s.throws.Cancel()
	return s.transition(StatusCompleted, StatusActive, StatusPaused)
}

// StartClock starts the game clock.
func (s *Session) StartClock() error {
	if !s.IsActive() {
		return fmt.Errorf("%w: clock can only run in an active game", rules.ErrGameNotActive)
	}
	if s.clock.Expired() {
		return fmt.Errorf("%w: period %d has ended", rules.ErrInvalidState, s.clock.Quarter())
	}
	s.clock.Start()
	s.bus.Publish(Notification{Type: NotifyClock, GameID: s.info.ID})
	return nil
}

// PauseClock stops the game clock.
func (s *Session) PauseClock() {
	if !s.clock.Running() {
		return
	}
	s.clock.Pause()
	s.gameChanged(NotifyClock)
}

// ResetClock stops the clock and sets it to the length of the current period.
func (s *Session) ResetClock() error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if err := s.clock.Reset(s.ledger.Settings().PeriodLength(s.clock.Quarter())); err != nil {
		return err
	}
	s.gameChanged(NotifyClock)
	return nil
}

// SetClockTime corrects the remaining time.
func (s *Session) SetClockTime(seconds int) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if limit := s.ledger.Settings().PeriodLength(s.clock.Quarter()); seconds > limit {
		return fmt.Errorf("%w: %d seconds exceeds the period length of %d", rules.ErrInvalidInput, seconds, limit)
	}
	if err := s.clock.SetTime(seconds); err != nil {
		return fmt.Errorf("%w: %v", rules.ErrInvalidInput, err)
	}
	s.gameChanged(NotifyClock)
	return nil
}

// Tick advances the clock by the wall time elapsed since the previous tick.
// It reports whether the period ended on this tick.
func (s *Session) Tick() bool {
	return s.clock.Tick()
}

// Clock returns the current clock reading and whether it is running.
func (s *Session) Clock() (clock.Snapshot, bool) {
	return s.clock.Snapshot(), s.clock.Running()
}

func (s *Session) periodEnded(quarter int) {
	s.logger.Info("period ended", zap.Int("quarter", quarter))
	s.gameChanged(NotifyPeriodEnded)
}

// AdvanceQuarter commits the move to the next quarter or overtime period and
// resets the clock for it.
func (s *Session) AdvanceQuarter() (Event, error) {
	if err := s.requireRecording(); err != nil {
		return Event{}, err
	}
	if err := s.requireNoPending(); err != nil {
		return Event{}, err
	}
	s.clock.Pause()
	from := s.ledger.Quarter()
	payload := &PeriodPayload{
		From:     from,
		To:       from + 1,
		Overtime: s.ledger.Settings().IsOvertime(from + 1),
	}
	ev, err := s.commit(payload, "")
	if err != nil {
		return Event{}, err
	}
	s.enterPeriod(payload.To, s.ledger.Settings().PeriodLength(payload.To))
	s.logger.Info("period started",
		zap.Int("quarter", payload.To),
		zap.Bool("overtime", payload.Overtime),
	)
	return ev, nil
}

func (s *Session) enterPeriod(quarter, seconds int) {
	// Both values come from the ledger and settings, which are already valid.
	_ = s.clock.SetQuarter(quarter)
	_ = s.clock.Reset(seconds)
	s.gameChanged(NotifyClock)
}

// UpdateSettings replaces the ruleset. Invalid settings, or settings that
// would disqualify a player on the court, are rejected and the prior
// settings kept.
func (s *Session) UpdateSettings(settings rules.Settings) error {
	if s.status == StatusCompleted {
		return fmt.Errorf("%w: game is completed", rules.ErrGameNotActive)
	}
	if err := s.ledger.setSettings(settings); err != nil {
		return err
	}
	if s.status == StatusScheduled && !s.clock.Running() {
		_ = s.clock.Reset(settings.PeriodLength(s.clock.Quarter()))
	}
	s.logger.Info("settings updated",
		zap.Int("foul_limit", settings.FoulLimitPerPlayer),
		zap.Int("bonus_threshold", settings.TeamFoulBonusThreshold),
		zap.String("bonus_format", string(settings.BonusFormat)),
	)
	s.gameChanged(NotifySettings)
	return nil
}

// ToggleStarter puts a player into or takes them out of the starting lineup.
// It is only available before the game starts.
func (s *Session) ToggleStarter(playerID string) (Event, error) {
	if s.status != StatusScheduled {
		return Event{}, fmt.Errorf("%w: starters are picked before the game starts", rules.ErrInvalidSubstitution)
	}
	p, ok := s.ledger.Player(playerID)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, playerID)
	}
	return s.commit(&StarterPayload{PlayerID: playerID, TeamID: p.TeamID, OnCourt: !p.IsOnCourt}, "")
}

// Undo reverses the most recent event and restores the pending state that
// depended on it.
func (s *Session) Undo() (Event, error) {
	if s.status == StatusCompleted {
		return Event{}, fmt.Errorf("%w: game is completed", rules.ErrGameNotActive)
	}
	last, ok := s.history.Last()
	if !ok {
		return Event{}, rules.ErrNothingToUndo
	}
	if ft, isFT := last.Payload.(*FreeThrowPayload); isFT {
		// Rewinding the sequence must not leave it open beside an unrelated prompt.
		if !s.workflow.Idle() && !s.workflow.References(last.ID) {
			return Event{}, fmt.Errorf("%w: %s is open", rules.ErrInteractionPending, s.workflow.State())
		}
		if seq := s.throws.Sequence(); seq != nil && seq.ID != ft.SequenceID {
			return Event{}, fmt.Errorf("%w: cancel the current free throws first", rules.ErrSequenceActive)
		}
	}
	ev, err := s.history.UndoLast(s.ledger)
	if err != nil {
		return Event{}, err
	}
	s.restorePending(ev)
	s.logger.Info("undid event",
		zap.Int64("seq", ev.Seq),
		zap.String("kind", string(ev.Kind())),
	)
	undone := ev
	s.sink.Enqueue(Mutation{Kind: MutationUndo, Game: s.Game(), Event: &undone})
	s.bus.Publish(Notification{Type: NotifyUndone, GameID: s.info.ID, Event: &undone})
	return ev, nil
}

func (s *Session) restorePending(ev Event) {
	switch p := ev.Payload.(type) {
	case *ShotPayload:
		if s.workflow.References(ev.ID) {
			_, _ = s.workflow.Cancel()
		}
	case *AssistPayload:
		if s.workflow.Idle() {
			_ = s.workflow.OpenAssist(rules.PendingAssist{
				ShotEventID: ev.ParentID,
				ScorerID:    p.ScorerID,
				TeamID:      p.TeamID,
				Options:     s.ledger.OnCourt(p.TeamID),
			})
		}
	case *ReboundPayload:
		if !s.workflow.Idle() {
			return
		}
		if shooterID, teamID, ok := s.shotContext(ev.ParentID); ok {
			_ = s.workflow.OpenRebound(s.reboundPrompt(ev.ParentID, shooterID, teamID))
		}
	case *FreeThrowPayload:
		if s.workflow.References(ev.ID) {
			_, _ = s.workflow.Cancel()
		}
		seq := rules.FreeThrowSequence{
			ID:          p.SequenceID,
			ShooterID:   p.ShooterID,
			FoulEventID: ev.ParentID,
			Total:       p.Total,
			OneAndOne:   p.OneAndOne,
			Live:        p.Live,
			Results:     append(slices.Clone(p.Prior), p.Made),
		}
		_ = s.throws.Resume(seq, p.Attempt)
	case *FoulPayload:
		if seq := s.throws.Sequence(); seq != nil && seq.FoulEventID == ev.ID {
			_, _ = s.throws.Cancel()
		}
	case *PeriodPayload:
		s.clock.Pause()
		_ = s.clock.SetQuarter(p.From)
		_ = s.clock.Reset(ev.Clock.SecondsRemaining)
	}
}

// shotContext returns the shooter and team of a shot or free throw event.
func (s *Session) shotContext(eventID string) (shooterID, teamID string, ok bool) {
	for _, e := range slices.Backward(s.history.events) {
		if e.ID != eventID {
			continue
		}
		switch p := e.Payload.(type) {
		case *ShotPayload:
			return p.ShooterID, p.TeamID, true
		case *FreeThrowPayload:
			return p.ShooterID, p.TeamID, true
		}
		return "", "", false
	}
	return "", "", false
}

func (s *Session) reboundPrompt(sourceID, shooterID, teamID string) rules.PendingRebound {
	home, away := s.ledger.HomeTeamID(), s.ledger.AwayTeamID()
	return rules.PendingRebound{
		SourceEventID:  sourceID,
		ShooterID:      shooterID,
		ShootingTeamID: teamID,
		Options:        append(s.ledger.OnCourt(home), s.ledger.OnCourt(away)...),
		TeamOptions:    []string{home, away},
	}
}

// View is the session state handed to presentation.
type View struct {
	Game             GameInfo                 `json:"game"`
	ClockRunning     bool                     `json:"clock_running"`
	Ledger           LedgerSnapshot           `json:"ledger"`
	AttributionState string                   `json:"attribution_state"`
	PendingShot      *rules.PendingShot       `json:"pending_shot,omitempty"`
	PendingAssist    *rules.PendingAssist     `json:"pending_assist,omitempty"`
	PendingRebound   *rules.PendingRebound    `json:"pending_rebound,omitempty"`
	FreeThrows       *rules.FreeThrowSequence `json:"free_throw_sequence,omitempty"`
	NeedsReplacement map[string][]string      `json:"needs_replacement,omitempty"`
	IsActive         bool                     `json:"is_active"`
	CanRecordStats   bool                     `json:"can_record_stats"`
	CanUndo          bool                     `json:"can_undo"`
	EventCount       int                      `json:"event_count"`
}

// View returns a snapshot of the session for presentation.
func (s *Session) View() View {
	v := View{
		Game:             s.Game(),
		ClockRunning:     s.clock.Running(),
		Ledger:           s.ledger.Snapshot(),
		AttributionState: s.workflow.State().String(),
		PendingShot:      s.workflow.Shot(),
		PendingAssist:    s.workflow.Assist(),
		PendingRebound:   s.workflow.Rebound(),
		FreeThrows:       s.throws.Sequence(),
		IsActive:         s.IsActive(),
		CanRecordStats:   s.CanRecordStats(),
		CanUndo:          s.status != StatusCompleted && s.history.Len() > 0,
		EventCount:       s.history.Len(),
	}
	if s.status != StatusScheduled {
		for _, team := range []string{s.ledger.HomeTeamID(), s.ledger.AwayTeamID()} {
			if ids := s.ledger.NeedsReplacement(team); len(ids) > 0 {
				if v.NeedsReplacement == nil {
					v.NeedsReplacement = make(map[string][]string, 2)
				}
				v.NeedsReplacement[team] = ids
			}
		}
	}
	return v
}
