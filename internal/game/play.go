package game

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// BeginShot opens a shot prompt at a court location. loc may be nil when the
// scorekeeper picks the shot type directly.
func (s *Session) BeginShot(loc *rules.Location, shotType rules.ShotType) (*rules.PendingShot, error) {
	if err := s.requireRecording(); err != nil {
		return nil, err
	}
	if s.throws.Active() {
		return nil, rules.ErrSequenceActive
	}
	shot, err := s.workflow.BeginShot(s.newID(), loc, shotType)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(Notification{Type: NotifyPending, GameID: s.info.ID})
	return shot, nil
}

// ShotResult is the outcome of resolving a shot prompt.
type ShotResult struct {
	Event Event `json:"event"`
	// Next is the prompt opened by the shot, if any.
	Next rules.AttributionState `json:"next"`
}

// ResolveShot commits the pending shot for shooterID. A make opens the assist
// prompt, a miss opens the rebound prompt.
func (s *Session) ResolveShot(shooterID string, made bool) (ShotResult, error) {
	if err := s.requireRecording(); err != nil {
		return ShotResult{}, err
	}
	if s.throws.Active() {
		return ShotResult{}, rules.ErrSequenceActive
	}
	pending := s.workflow.Shot()
	if pending == nil {
		return ShotResult{}, fmt.Errorf("%w: no shot is pending", rules.ErrNoPendingInteraction)
	}
	shooter, ok := s.ledger.Player(shooterID)
	if !ok {
		return ShotResult{}, fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, shooterID)
	}
	payload := &ShotPayload{
		ShooterID: shooterID,
		TeamID:    shooter.TeamID,
		ShotType:  pending.ShotType,
		Made:      made,
		Zone:      pending.Zone,
		Location:  pending.Location,
	}
	// Validate before taking the prompt so a rejected shooter keeps it open.
	if _, err := payload.plan(s.ledger); err != nil {
		return ShotResult{}, err
	}
	if _, err := s.workflow.TakeShot(); err != nil {
		return ShotResult{}, err
	}
	ev, err := s.commit(payload, "")
	if err != nil {
		return ShotResult{}, err
	}

	if made {
		options := slices.DeleteFunc(s.ledger.OnCourt(shooter.TeamID), func(id string) bool { return id == shooterID })
		if len(options) > 0 {
			_ = s.workflow.OpenAssist(rules.PendingAssist{
				ShotEventID: ev.ID,
				ScorerID:    shooterID,
				TeamID:      shooter.TeamID,
				Options:     options,
			})
		}
	} else {
		_ = s.workflow.OpenRebound(s.reboundPrompt(ev.ID, shooterID, shooter.TeamID))
	}
	s.bus.Publish(Notification{Type: NotifyPending, GameID: s.info.ID})
	return ShotResult{Event: ev, Next: s.workflow.State()}, nil
}

// ResolveAssist credits the open assist prompt to assisterID.
func (s *Session) ResolveAssist(assisterID string) (Event, error) {
	if err := s.requireRecording(); err != nil {
		return Event{}, err
	}
	prompt, err := s.workflow.CheckAssister(assisterID)
	if err != nil {
		return Event{}, err
	}
	ev, err := s.commit(&AssistPayload{
		AssisterID: assisterID,
		ScorerID:   prompt.ScorerID,
		TeamID:     prompt.TeamID,
	}, prompt.ShotEventID)
	if err != nil {
		return Event{}, err
	}
	s.workflow.Complete()
	return ev, nil
}

// NoAssist closes the open assist prompt without crediting anyone.
func (s *Session) NoAssist() error {
	if s.workflow.State() != rules.AttributionPendingAssist {
		return fmt.Errorf("%w: no assist is pending", rules.ErrNoPendingInteraction)
	}
	s.workflow.Complete()
	s.bus.Publish(Notification{Type: NotifyPending, GameID: s.info.ID})
	return nil
}

// ResolveRebound credits the open rebound prompt to playerID.
func (s *Session) ResolveRebound(playerID string) (Event, error) {
	if err := s.requireRecording(); err != nil {
		return Event{}, err
	}
	prompt, err := s.workflow.CheckRebounder(playerID)
	if err != nil {
		return Event{}, err
	}
	p, ok := s.ledger.Player(playerID)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, playerID)
	}
	ev, err := s.commit(&ReboundPayload{
		PlayerID:  playerID,
		TeamID:    p.TeamID,
		Offensive: p.TeamID == prompt.ShootingTeamID,
	}, prompt.SourceEventID)
	if err != nil {
		return Event{}, err
	}
	s.workflow.Complete()
	return ev, nil
}

// ResolveTeamRebound credits the open rebound prompt to a team.
func (s *Session) ResolveTeamRebound(teamID string) (Event, error) {
	if err := s.requireRecording(); err != nil {
		return Event{}, err
	}
	prompt, err := s.workflow.CheckTeamRebound(teamID)
	if err != nil {
		return Event{}, err
	}
	ev, err := s.commit(&ReboundPayload{
		TeamID:    teamID,
		Offensive: teamID == prompt.ShootingTeamID,
	}, prompt.SourceEventID)
	if err != nil {
		return Event{}, err
	}
	s.workflow.Complete()
	return ev, nil
}

// CancelPending closes the open shot, assist or rebound prompt. Nothing
// committed is affected.
func (s *Session) CancelPending() (rules.AttributionState, error) {
	prev, err := s.workflow.Cancel()
	if err != nil {
		return prev, err
	}
	s.logger.Debug("cancelled pending interaction", zap.String("state", prev.String()))
	s.bus.Publish(Notification{Type: NotifyPending, GameID: s.info.ID})
	return prev, nil
}

// FoulInput describes a foul to record.
type FoulInput struct {
	// FoulerID may be empty for a technical charged to the bench.
	FoulerID       string                 `json:"fouler_id,omitempty"`
	TeamID         string                 `json:"team_id"`
	FoulType       rules.FoulType         `json:"foul_type"`
	Shooting       *rules.ShootingContext `json:"shooting,omitempty"`
	FouledPlayerID string                 `json:"fouled_player_id,omitempty"`
	// ShooterID picks the free throw shooter. It defaults to the fouled player.
	ShooterID string `json:"shooter_id,omitempty"`
}

// FoulResult is the outcome of recording a foul.
type FoulResult struct {
	Event       Event                    `json:"event"`
	Entitlement rules.Entitlement        `json:"entitlement"`
	FreeThrows  *rules.FreeThrowSequence `json:"free_throws,omitempty"`
	FouledOut   bool                     `json:"fouled_out"`
	Ejected     bool                     `json:"ejected"`
	InBonus     bool                     `json:"in_bonus"`
}

// RecordFoul commits a foul and opens the free throw sequence it awards.
func (s *Session) RecordFoul(in FoulInput) (FoulResult, error) {
	if err := s.requireRecording(); err != nil {
		return FoulResult{}, err
	}
	if err := s.requireNoPending(); err != nil {
		return FoulResult{}, err
	}
	if in.TeamID == "" && in.FoulerID != "" {
		if p, ok := s.ledger.Player(in.FoulerID); ok {
			in.TeamID = p.TeamID
		}
	}
	fouledID := in.FouledPlayerID
	if fouledID == "" && in.Shooting != nil {
		fouledID = in.Shooting.FouledPlayerID
	}
	payload := &FoulPayload{
		FoulerID:       in.FoulerID,
		TeamID:         in.TeamID,
		FoulType:       in.FoulType,
		Shooting:       in.Shooting,
		FouledPlayerID: fouledID,
	}
	delta, err := payload.plan(s.ledger)
	if err != nil {
		return FoulResult{}, err
	}
	if fouledID != "" {
		if err := s.checkOpponent(fouledID, in.TeamID); err != nil {
			return FoulResult{}, err
		}
	}

	team, _ := s.ledger.Team(in.TeamID)
	teamFouls := team.TeamFoulsThisQuarter + delta.Teams[in.TeamID].TeamFoulsThisQuarter
	award, err := s.ledger.Settings().FreeThrowEntitlement(in.FoulType, in.Shooting, teamFouls)
	if err != nil {
		return FoulResult{}, err
	}
	payload.Entitlement = award

	var seq *rules.FreeThrowSequence
	if !award.None() {
		shooterID := in.ShooterID
		if shooterID == "" {
			shooterID = fouledID
		}
		if shooterID == "" {
			return FoulResult{}, fmt.Errorf("%w: a free throw shooter is required", rules.ErrInvalidInput)
		}
		if err := s.checkOpponent(shooterID, in.TeamID); err != nil {
			return FoulResult{}, err
		}
		if _, err := s.ledger.activePlayer(shooterID); err != nil {
			return FoulResult{}, err
		}
		seq = &rules.FreeThrowSequence{
			ID:        s.newID(),
			ShooterID: shooterID,
			Total:     award.FreeThrows,
			OneAndOne: award.OneAndOne,
			// Technical and flagrant free throws are followed by a dead ball.
			Live: award.Live,
		}
	}

	ev, err := s.commit(payload, "")
	if err != nil {
		return FoulResult{}, err
	}
	result := FoulResult{Event: ev, Entitlement: award}
	if seq != nil {
		seq.FoulEventID = ev.ID
		if err := s.throws.Start(*seq); err != nil {
			s.logger.Error("failed to open free throws", zap.Error(err))
		} else {
			result.FreeThrows = s.throws.Sequence()
		}
	}
	if in.FoulerID != "" {
		fouler, _ := s.ledger.Player(in.FoulerID)
		result.FouledOut, result.Ejected = fouler.FouledOut, fouler.Ejected
		if fouler.Disqualified() {
			s.logger.Info("player disqualified",
				zap.String("player_id", in.FoulerID),
				zap.Bool("fouled_out", fouler.FouledOut),
				zap.Bool("ejected", fouler.Ejected),
				zap.Int("fouls", fouler.Fouls),
			)
		}
	}
	team, _ = s.ledger.Team(in.TeamID)
	result.InBonus = team.InBonus
	return result, nil
}

func (s *Session) checkOpponent(playerID, foulingTeamID string) error {
	p, ok := s.ledger.Player(playerID)
	if !ok {
		return fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, playerID)
	}
	if p.TeamID == foulingTeamID {
		return fmt.Errorf("%w: %s plays for the fouling team", rules.ErrInvalidInput, playerID)
	}
	return nil
}

// StartFreeThrows opens a free throw sequence that no foul event awarded,
// such as a technical whose shooter is picked after the foul.
func (s *Session) StartFreeThrows(shooterID string, total int, oneAndOne, live bool) (*rules.FreeThrowSequence, error) {
	if err := s.requireRecording(); err != nil {
		return nil, err
	}
	if err := s.requireNoPending(); err != nil {
		return nil, err
	}
	if _, err := s.ledger.activePlayer(shooterID); err != nil {
		return nil, err
	}
	if err := s.throws.Start(rules.FreeThrowSequence{
		ID:        s.newID(),
		ShooterID: shooterID,
		Total:     total,
		OneAndOne: oneAndOne,
		Live:      live,
	}); err != nil {
		return nil, err
	}
	s.bus.Publish(Notification{Type: NotifyPending, GameID: s.info.ID})
	return s.throws.Sequence(), nil
}

// FreeThrowResult is the outcome of one free throw.
type FreeThrowResult struct {
	Event   Event                  `json:"event"`
	Attempt rules.FreeThrowAttempt `json:"attempt"`
	// Remaining is the sequence still awaiting results, nil when it ended.
	Remaining *rules.FreeThrowSequence `json:"remaining,omitempty"`
}

// RecordFreeThrow commits the result of the next attempt of the active
// sequence. A missed final live attempt opens the rebound prompt.
func (s *Session) RecordFreeThrow(made bool) (FreeThrowResult, error) {
	if err := s.requireRecording(); err != nil {
		return FreeThrowResult{}, err
	}
	seq := s.throws.Sequence()
	if seq == nil {
		return FreeThrowResult{}, rules.ErrNoFreeThrowSequence
	}
	attempt, err := s.throws.Plan(made)
	if err != nil {
		return FreeThrowResult{}, err
	}
	if attempt.LiveMiss && !s.workflow.Idle() {
		return FreeThrowResult{}, fmt.Errorf("%w: %s is open", rules.ErrInteractionPending, s.workflow.State())
	}
	shooter, ok := s.ledger.Player(seq.ShooterID)
	if !ok {
		return FreeThrowResult{}, fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, seq.ShooterID)
	}
	ev, err := s.commit(&FreeThrowPayload{
		ShooterID:  seq.ShooterID,
		TeamID:     shooter.TeamID,
		Made:       made,
		SequenceID: seq.ID,
		Attempt:    attempt.Number,
		Total:      seq.Total,
		OneAndOne:  seq.OneAndOne,
		Live:       seq.Live,
		Prior:      seq.Results,
		Final:      attempt.Final,
	}, seq.FoulEventID)
	if err != nil {
		return FreeThrowResult{}, err
	}
	if _, err := s.throws.Record(made); err != nil {
		return FreeThrowResult{}, err
	}
	if attempt.LiveMiss {
		_ = s.workflow.OpenRebound(s.reboundPrompt(ev.ID, seq.ShooterID, shooter.TeamID))
	}
	s.bus.Publish(Notification{Type: NotifyPending, GameID: s.info.ID})
	return FreeThrowResult{Event: ev, Attempt: attempt, Remaining: s.throws.Sequence()}, nil
}

// CancelFreeThrows abandons the active sequence. Attempts already recorded
// stay committed.
func (s *Session) CancelFreeThrows() (*rules.FreeThrowSequence, error) {
	seq, err := s.throws.Cancel()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("cancelled free throws",
		zap.String("sequence_id", seq.ID),
		zap.Int("recorded", len(seq.Results)),
		zap.Int("total", seq.Total),
	)
	s.bus.Publish(Notification{Type: NotifyPending, GameID: s.info.ID})
	return seq, nil
}

// RecordStat commits a steal, block or turnover.
func (s *Session) RecordStat(playerID string, stat StatKind) (Event, error) {
	if err := s.requireRecording(); err != nil {
		return Event{}, err
	}
	p, ok := s.ledger.Player(playerID)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, playerID)
	}
	return s.commit(&StatPayload{PlayerID: playerID, TeamID: p.TeamID, Stat: stat}, "")
}

// RecordTimeout charges a timeout to a team and stops the clock.
func (s *Session) RecordTimeout(teamID string) (Event, error) {
	if err := s.requireRecording(); err != nil {
		return Event{}, err
	}
	ev, err := s.commit(&TimeoutPayload{TeamID: teamID}, "")
	if err != nil {
		return Event{}, err
	}
	s.PauseClock()
	return ev, nil
}

// Substitute swaps outID for inID. When outID has fouled out or been ejected
// and their spot is empty, inID fills it.
func (s *Session) Substitute(outID, inID, teamID string) (Event, error) {
	if err := s.requireRecording(); err != nil {
		return Event{}, err
	}
	if teamID == "" {
		if p, ok := s.ledger.Player(outID); ok {
			teamID = p.TeamID
		}
	}
	return s.commit(&SubstitutionPayload{OutPlayerID: outID, InPlayerID: inID, TeamID: teamID}, "")
}
