package game

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/courtside/scorekeeper-server-go/internal/game/clock"
	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// Kind identifies the variant of an event.
type Kind string

const (
	KindShot          Kind = "shot"
	KindFoul          Kind = "foul"
	KindFreeThrow     Kind = "free_throw"
	KindRebound       Kind = "rebound"
	KindAssist        Kind = "assist"
	KindSubstitution  Kind = "substitution"
	KindTimeout       Kind = "timeout"
	KindQuarterChange Kind = "quarter_change"
	KindOvertimeStart Kind = "overtime_start"
	KindStat          Kind = "stat"
	KindStarter       Kind = "starter"
)

// Payload is the variant-specific body of an event. The set of variants is
// closed: every payload plans its own delta against the ledger.
type Payload interface {
	Kind() Kind
	// Actors returns the acting player and the secondary player involved
	// (assister, fouled player, incoming substitute), either may be empty.
	Actors() (actor, secondary string)
	plan(l *Ledger) (Delta, error)
}

// Event is an immutable committed action.
type Event struct {
	ID        string         `json:"id"`
	GameID    string         `json:"game_id"`
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Clock     clock.Snapshot `json:"clock"`
	// ParentID names the event this one depends on, such as the shot an
	// assist credits.
	ParentID string  `json:"parent_id,omitempty"`
	Delta    Delta   `json:"delta"`
	Payload  Payload `json:"-"`
}

// Kind returns the event variant.
func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// ActorPlayerID returns the acting player, if any.
func (e Event) ActorPlayerID() string {
	if e.Payload == nil {
		return ""
	}
	actor, _ := e.Payload.Actors()
	return actor
}

// SecondaryPlayerID returns the other player involved, if any.
func (e Event) SecondaryPlayerID() string {
	if e.Payload == nil {
		return ""
	}
	_, secondary := e.Payload.Actors()
	return secondary
}

// Clone returns a copy of e that shares no maps, slices or payload with it.
func (e Event) Clone() Event {
	c := e
	c.Delta = e.Delta.Clone()
	c.Payload = clonePayload(e.Payload)
	return c
}

func clonePayload(p Payload) Payload {
	switch p := p.(type) {
	case *ShotPayload:
		c := *p
		if p.Location != nil {
			loc := *p.Location
			c.Location = &loc
		}
		return &c
	case *AssistPayload:
		c := *p
		return &c
	case *ReboundPayload:
		c := *p
		return &c
	case *FreeThrowPayload:
		c := *p
		c.Prior = slices.Clone(p.Prior)
		return &c
	case *FoulPayload:
		c := *p
		if p.Shooting != nil {
			shooting := *p.Shooting
			c.Shooting = &shooting
		}
		return &c
	case *StatPayload:
		c := *p
		return &c
	case *SubstitutionPayload:
		c := *p
		return &c
	case *StarterPayload:
		c := *p
		return &c
	case *TimeoutPayload:
		c := *p
		return &c
	case *PeriodPayload:
		c := *p
		return &c
	}
	return p
}

type eventJSON struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Seq       int64           `json:"seq"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Clock     clock.Snapshot  `json:"clock"`
	ParentID  string          `json:"parent_id,omitempty"`
	Delta     Delta           `json:"delta"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the event with a kind discriminator.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %s has no payload", e.ID)
	}
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", e.Kind(), err)
	}
	return json.Marshal(eventJSON{
		ID:        e.ID,
		GameID:    e.GameID,
		Seq:       e.Seq,
		Kind:      e.Kind(),
		Timestamp: e.Timestamp,
		Clock:     e.Clock,
		ParentID:  e.ParentID,
		Delta:     e.Delta,
		Payload:   body,
	})
}

// UnmarshalJSON decodes an event written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := DecodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        raw.ID,
		GameID:    raw.GameID,
		Seq:       raw.Seq,
		Timestamp: raw.Timestamp,
		Clock:     raw.Clock,
		ParentID:  raw.ParentID,
		Delta:     raw.Delta,
		Payload:   payload,
	}
	return nil
}

// DecodePayload decodes the JSON body of a payload of the given kind.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	var p Payload
	switch kind {
	case KindShot:
		p = &ShotPayload{}
	case KindFoul:
		p = &FoulPayload{}
	case KindFreeThrow:
		p = &FreeThrowPayload{}
	case KindRebound:
		p = &ReboundPayload{}
	case KindAssist:
		p = &AssistPayload{}
	case KindSubstitution:
		p = &SubstitutionPayload{}
	case KindTimeout:
		p = &TimeoutPayload{}
	case KindQuarterChange, KindOvertimeStart:
		p = &PeriodPayload{}
	case KindStat:
		p = &StatPayload{}
	case KindStarter:
		p = &StarterPayload{}
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return p, nil
}

// ShotPayload is a field goal attempt.
type ShotPayload struct {
	ShooterID string          `json:"shooter_id"`
	TeamID    string          `json:"team_id"`
	ShotType  rules.ShotType  `json:"shot_type"`
	Made      bool            `json:"made"`
	Zone      rules.Zone      `json:"zone"`
	Location  *rules.Location `json:"location,omitempty"`
}

func (p *ShotPayload) Kind() Kind { return KindShot }
func (p *ShotPayload) Actors() (string, string) { return p.ShooterID, "" }
func (p *ShotPayload) plan(l *Ledger) (Delta, error) {
	if _, err := l.activePlayer(p.ShooterID); err != nil {
		return Delta{}, err
	}
	if !p.ShotType.Valid() {
		return Delta{}, fmt.Errorf("%w: unknown shot type %q", rules.ErrInvalidInput, p.ShotType)
	}
	line := StatLine{FieldGoalsAttempted: 1}
	if p.ShotType == rules.ShotThree {
		line.ThreePointersAttempted = 1
	}
	var d Delta
	if p.Made {
		line.FieldGoalsMade = 1
		line.Points = p.ShotType.Points()
		if p.ShotType == rules.ShotThree {
			line.ThreePointersMade = 1
		}
		d.addTeam(p.TeamID, TeamLine{Points: line.Points})
	}
	d.addPlayer(p.ShooterID, line)
	return d, nil
}

// AssistPayload credits the pass leading to a made shot.
type AssistPayload struct {
	AssisterID string `json:"assister_id"`
	ScorerID   string `json:"scorer_id"`
	TeamID     string `json:"team_id"`
}

func (p *AssistPayload) Kind() Kind { return KindAssist }
func (p *AssistPayload) Actors() (string, string) { return p.AssisterID, p.ScorerID }
func (p *AssistPayload) plan(l *Ledger) (Delta, error) {
	assister, err := l.activePlayer(p.AssisterID)
	if err != nil {
		return Delta{}, err
	}
	if assister.TeamID != p.TeamID || p.AssisterID == p.ScorerID {
		return Delta{}, fmt.Errorf("%w: %s cannot assist %s", rules.ErrInvalidSelection, p.AssisterID, p.ScorerID)
	}
	var d Delta
	d.addPlayer(p.AssisterID, StatLine{Assists: 1})
	return d, nil
}

// ReboundPayload credits a rebound to a player or, when PlayerID is empty,
// to the team.
type ReboundPayload struct {
	PlayerID  string `json:"player_id,omitempty"`
	TeamID    string `json:"team_id"`
	Offensive bool   `json:"offensive"`
}

// IsTeamRebound reports whether the rebound is credited to the team.
func (p *ReboundPayload) IsTeamRebound() bool { return p.PlayerID == "" }

func (p *ReboundPayload) Kind() Kind { return KindRebound }
func (p *ReboundPayload) Actors() (string, string) { return p.PlayerID, "" }
func (p *ReboundPayload) plan(l *Ledger) (Delta, error) {
	var d Delta
	if p.IsTeamRebound() {
		if _, err := l.team(p.TeamID); err != nil {
			return Delta{}, err
		}
		d.addTeam(p.TeamID, TeamLine{TeamRebounds: 1})
		return d, nil
	}
	if _, err := l.activePlayer(p.PlayerID); err != nil {
		return Delta{}, err
	}
	if p.Offensive {
		d.addPlayer(p.PlayerID, StatLine{OffensiveRebounds: 1})
	} else {
		d.addPlayer(p.PlayerID, StatLine{DefensiveRebounds: 1})
	}
	return d, nil
}

// FreeThrowPayload is one free throw attempt of a sequence.
type FreeThrowPayload struct {
	ShooterID  string `json:"shooter_id"`
	TeamID     string `json:"team_id"`
	Made       bool   `json:"made"`
	SequenceID string `json:"sequence_id"`
	Attempt    int    `json:"attempt"`
	Total      int    `json:"total"`
	OneAndOne  bool   `json:"one_and_one"`
	Live       bool   `json:"live"`
	// Prior holds the results of the earlier attempts of the sequence.
	Prior []bool `json:"prior,omitempty"`
	Final bool   `json:"final"`
}

func (p *FreeThrowPayload) Kind() Kind { return KindFreeThrow }
func (p *FreeThrowPayload) Actors() (string, string) { return p.ShooterID, "" }
func (p *FreeThrowPayload) plan(l *Ledger) (Delta, error) {
	if _, err := l.activePlayer(p.ShooterID); err != nil {
		return Delta{}, err
	}
	line := StatLine{FreeThrowsAttempted: 1}
	var d Delta
	if p.Made {
		line.FreeThrowsMade = 1
		line.Points = 1
		d.addTeam(p.TeamID, TeamLine{Points: 1})
	}
	d.addPlayer(p.ShooterID, line)
	return d, nil
}

// FoulPayload is a foul with its context and the award it produced.
type FoulPayload struct {
	// FoulerID may be empty for a technical charged to the bench.
	FoulerID       string                 `json:"fouler_id,omitempty"`
	TeamID         string                 `json:"team_id"`
	FoulType       rules.FoulType         `json:"foul_type"`
	Shooting       *rules.ShootingContext `json:"shooting,omitempty"`
	FouledPlayerID string                 `json:"fouled_player_id,omitempty"`
	Entitlement    rules.Entitlement      `json:"entitlement"`
}

func (p *FoulPayload) Kind() Kind { return KindFoul }
func (p *FoulPayload) Actors() (string, string) { return p.FoulerID, p.FouledPlayerID }
func (p *FoulPayload) plan(l *Ledger) (Delta, error) {
	if !p.FoulType.Valid() {
		return Delta{}, fmt.Errorf("%w: unknown foul type %q", rules.ErrInvalidInput, p.FoulType)
	}
	if _, err := l.team(p.TeamID); err != nil {
		return Delta{}, err
	}
	counting := l.settings.CountFoul(p.FoulType)
	var d Delta
	if counting.TeamFoul {
		d.addTeam(p.TeamID, TeamLine{TeamFoulsThisQuarter: 1, TeamFoulsTotal: 1})
	}
	if p.FoulerID == "" {
		if !p.FoulType.IsTechnical() {
			return Delta{}, fmt.Errorf("%w: only technical fouls may be charged to the bench", rules.ErrInvalidInput)
		}
		return d, nil
	}
	fouler, err := l.eligiblePlayer(p.FoulerID)
	if err != nil {
		return Delta{}, err
	}
	if fouler.TeamID != p.TeamID {
		return Delta{}, fmt.Errorf("%w: player %s does not play for %s", rules.ErrInvalidInput, p.FoulerID, p.TeamID)
	}
	if !fouler.IsOnCourt && !p.FoulType.IsTechnical() {
		return Delta{}, fmt.Errorf("%w: %s", rules.ErrNotOnCourt, p.FoulerID)
	}
	line := StatLine{}
	if counting.Personal {
		line.Fouls = 1
	}
	if counting.Technical {
		line.TechnicalFouls = 1
	}
	if counting.Flagrant {
		line.FlagrantFouls = 1
	}
	if counting.Ejection {
		line.Flagrant2Fouls = 1
	}
	d.addPlayer(p.FoulerID, line)

	after := fouler.StatLine.add(line, 1)
	if fouler.IsOnCourt && l.disqualified(after) {
		d.move(p.FoulerID, true, false)
	}
	return d, nil
}

// StatKind names a simple counting stat.
type StatKind string

const (
	StatSteal    StatKind = "steal"
	StatBlock    StatKind = "block"
	StatTurnover StatKind = "turnover"
)

// StatPayload records a steal, block or turnover.
type StatPayload struct {
	PlayerID string   `json:"player_id"`
	TeamID   string   `json:"team_id"`
	Stat     StatKind `json:"stat"`
}

func (p *StatPayload) Kind() Kind { return KindStat }
func (p *StatPayload) Actors() (string, string) { return p.PlayerID, "" }
func (p *StatPayload) plan(l *Ledger) (Delta, error) {
	if _, err := l.activePlayer(p.PlayerID); err != nil {
		return Delta{}, err
	}
	var line StatLine
	switch p.Stat {
	case StatSteal:
		line.Steals = 1
	case StatBlock:
		line.Blocks = 1
	case StatTurnover:
		line.Turnovers = 1
	default:
		return Delta{}, fmt.Errorf("%w: unknown stat %q", rules.ErrInvalidInput, p.Stat)
	}
	var d Delta
	d.addPlayer(p.PlayerID, line)
	return d, nil
}

// SubstitutionPayload swaps a player on the court for one off it.
type SubstitutionPayload struct {
	OutPlayerID string `json:"out_player_id"`
	InPlayerID  string `json:"in_player_id"`
	TeamID      string `json:"team_id"`
}

func (p *SubstitutionPayload) Kind() Kind { return KindSubstitution }
func (p *SubstitutionPayload) Actors() (string, string) { return p.OutPlayerID, p.InPlayerID }
func (p *SubstitutionPayload) plan(l *Ledger) (Delta, error) {
	return l.planSwap(p.OutPlayerID, p.InPlayerID, p.TeamID)
}

// StarterPayload adds or removes a player from the starting lineup.
type StarterPayload struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	OnCourt  bool   `json:"on_court"`
}

func (p *StarterPayload) Kind() Kind { return KindStarter }
func (p *StarterPayload) Actors() (string, string) { return p.PlayerID, "" }
func (p *StarterPayload) plan(l *Ledger) (Delta, error) {
	return l.planStarter(p.PlayerID, p.TeamID, p.OnCourt)
}

// TimeoutPayload charges a timeout to a team.
type TimeoutPayload struct {
	TeamID string `json:"team_id"`
}

func (p *TimeoutPayload) Kind() Kind { return KindTimeout }
func (p *TimeoutPayload) Actors() (string, string) { return "", "" }
func (p *TimeoutPayload) plan(l *Ledger) (Delta, error) {
	team, err := l.team(p.TeamID)
	if err != nil {
		return Delta{}, err
	}
	if team.TimeoutsRemaining <= 0 {
		return Delta{}, fmt.Errorf("%w: team %s", rules.ErrNoTimeouts, p.TeamID)
	}
	var d Delta
	d.addTeam(p.TeamID, TeamLine{TimeoutsUsed: 1})
	return d, nil
}

// PeriodPayload moves the game to the next quarter or overtime.
type PeriodPayload struct {
	From     int  `json:"from"`
	To       int  `json:"to"`
	Overtime bool `json:"overtime"`
}

func (p *PeriodPayload) Kind() Kind {
	if p.Overtime {
		return KindOvertimeStart
	}
	return KindQuarterChange
}
func (p *PeriodPayload) Actors() (string, string) { return "", "" }
func (p *PeriodPayload) plan(l *Ledger) (Delta, error) {
	if p.From != l.quarter || p.To != p.From+1 {
		return Delta{}, fmt.Errorf("%w: cannot move from quarter %d to %d (current %d)",
			rules.ErrInvalidInput, p.From, p.To, l.quarter)
	}
	d := Delta{Quarter: 1}
	if l.settings.ResetsTeamFouls(p.To) {
		for _, id := range l.teamOrder {
			if fouls := l.teams[id].TeamFoulsThisQuarter; fouls != 0 {
				d.addTeam(id, TeamLine{TeamFoulsThisQuarter: -fouls})
			}
		}
	}
	return d, nil
}
