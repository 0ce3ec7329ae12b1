package game

import (
	"fmt"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// RosterEntry adds a player to a game.
type RosterEntry struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	Name     string `json:"name,omitempty"`
	Number   string `json:"number,omitempty"`
}

// PlayerStat is the box score line of one player in one game.
type PlayerStat struct {
	PlayerID   string `json:"player_id"`
	TeamID     string `json:"team_id"`
	IsHomeTeam bool   `json:"is_home_team"`
	Name       string `json:"name,omitempty"`
	Number     string `json:"number,omitempty"`
	StatLine
	IsOnCourt bool `json:"is_on_court"`
	FouledOut bool `json:"fouled_out"`
	Ejected   bool `json:"ejected"`
}

// Disqualified reports whether the player may no longer play.
func (p PlayerStat) Disqualified() bool {
	return p.FouledOut || p.Ejected
}

// TeamGameStat is the team-level line of one team in one game.
type TeamGameStat struct {
	TeamID     string `json:"team_id"`
	IsHomeTeam bool   `json:"is_home_team"`
	TeamLine
	TimeoutsRemaining int  `json:"timeouts_remaining"`
	InBonus           bool `json:"in_bonus"`
	InDoubleBonus     bool `json:"in_double_bonus"`
}

// LedgerSnapshot is a deep copy of the ledger in roster order.
type LedgerSnapshot struct {
	Quarter   int            `json:"quarter"`
	HomeScore int            `json:"home_score"`
	AwayScore int            `json:"away_score"`
	Players   []PlayerStat   `json:"players"`
	Teams     []TeamGameStat `json:"teams"`
}

// Ledger holds the cumulative counters of a game. Counters change only by
// applying event deltas; derived flags are recomputed from the counters after
// every change.
type Ledger struct {
	settings    rules.Settings
	quarter     int
	players     map[string]*PlayerStat
	playerOrder []string
	teams       map[string]*TeamGameStat
	// teamOrder is home first, then away.
	teamOrder []string
}

// NewLedger creates an empty ledger for a game between two teams.
func NewLedger(homeTeamID, awayTeamID string, settings rules.Settings) (*Ledger, error) {
	if homeTeamID == "" || awayTeamID == "" || homeTeamID == awayTeamID {
		return nil, fmt.Errorf("%w: a game needs two distinct teams", rules.ErrInvalidInput)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		settings:  settings,
		quarter:   1,
		players:   make(map[string]*PlayerStat),
		teams:     make(map[string]*TeamGameStat, 2),
		teamOrder: []string{homeTeamID, awayTeamID},
	}
	l.teams[homeTeamID] = &TeamGameStat{TeamID: homeTeamID, IsHomeTeam: true}
	l.teams[awayTeamID] = &TeamGameStat{TeamID: awayTeamID}
	l.recompute()
	return l, nil
}

// AddPlayer adds a player to the roster, off the court with empty counters.
func (l *Ledger) AddPlayer(e RosterEntry) error {
	if e.PlayerID == "" {
		return fmt.Errorf("%w: player id is required", rules.ErrInvalidInput)
	}
	team, ok := l.teams[e.TeamID]
	if !ok {
		return fmt.Errorf("%w: team %s is not playing in this game", rules.ErrInvalidInput, e.TeamID)
	}
	if _, exists := l.players[e.PlayerID]; exists {
		return fmt.Errorf("%w: player %s is already on the roster", rules.ErrInvalidInput, e.PlayerID)
	}
	l.players[e.PlayerID] = &PlayerStat{
		PlayerID:   e.PlayerID,
		TeamID:     e.TeamID,
		IsHomeTeam: team.IsHomeTeam,
		Name:       e.Name,
		Number:     e.Number,
	}
	l.playerOrder = append(l.playerOrder, e.PlayerID)
	return nil
}

// Roster returns the roster entries in the order players were added.
func (l *Ledger) Roster() []RosterEntry {
	roster := make([]RosterEntry, 0, len(l.playerOrder))
	for _, id := range l.playerOrder {
		p := l.players[id]
		roster = append(roster, RosterEntry{PlayerID: p.PlayerID, TeamID: p.TeamID, Name: p.Name, Number: p.Number})
	}
	return roster
}

// Settings returns the ruleset in force.
func (l *Ledger) Settings() rules.Settings { return l.settings }

// Quarter returns the current period.
func (l *Ledger) Quarter() int { return l.quarter }

// HomeTeamID returns the home team.
func (l *Ledger) HomeTeamID() string { return l.teamOrder[0] }

// AwayTeamID returns the away team.
func (l *Ledger) AwayTeamID() string { return l.teamOrder[1] }

// Opponent returns the other team of the game.
func (l *Ledger) Opponent(teamID string) string {
	if teamID == l.teamOrder[0] {
		return l.teamOrder[1]
	}
	return l.teamOrder[0]
}

// Score returns the home and away points.
func (l *Ledger) Score() (home, away int) {
	return l.teams[l.teamOrder[0]].Points, l.teams[l.teamOrder[1]].Points
}

// Player returns a copy of a player's line.
func (l *Ledger) Player(id string) (PlayerStat, bool) {
	p, ok := l.players[id]
	if !ok {
		return PlayerStat{}, false
	}
	return *p, true
}

// Team returns a copy of a team's line.
func (l *Ledger) Team(id string) (TeamGameStat, bool) {
	t, ok := l.teams[id]
	if !ok {
		return TeamGameStat{}, false
	}
	return *t, true
}

func (l *Ledger) player(id string) (*PlayerStat, error) {
	p, ok := l.players[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, id)
	}
	return p, nil
}

func (l *Ledger) team(id string) (*TeamGameStat, error) {
	t, ok := l.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: team %s is not playing in this game", rules.ErrInvalidInput, id)
	}
	return t, nil
}

// eligiblePlayer returns a player who has not fouled out or been ejected.
func (l *Ledger) eligiblePlayer(id string) (*PlayerStat, error) {
	p, err := l.player(id)
	if err != nil {
		return nil, err
	}
	if p.Ejected {
		return nil, fmt.Errorf("%w: %s", rules.ErrEjected, id)
	}
	if p.FouledOut {
		return nil, fmt.Errorf("%w: %s", rules.ErrFouledOut, id)
	}
	return p, nil
}

// activePlayer returns an eligible player who is on the court.
func (l *Ledger) activePlayer(id string) (*PlayerStat, error) {
	p, err := l.eligiblePlayer(id)
	if err != nil {
		return nil, err
	}
	if !p.IsOnCourt {
		return nil, fmt.Errorf("%w: %s", rules.ErrNotOnCourt, id)
	}
	return p, nil
}

func (l *Ledger) disqualified(line StatLine) bool {
	fouledOut, ejected := disqualification(l.settings, line)
	return fouledOut || ejected
}

func disqualification(s rules.Settings, line StatLine) (fouledOut, ejected bool) {
	return s.FouledOut(line.Fouls), s.Ejected(line.TechnicalFouls, line.Flagrant2Fouls)
}

// apply adds d to the counters and recomputes the derived flags. The delta is
// checked against the roster first so a bad delta changes nothing.
func (l *Ledger) apply(d Delta) error {
	for id := range d.Players {
		if _, ok := l.players[id]; !ok {
			return fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, id)
		}
	}
	for id := range d.Teams {
		if _, ok := l.teams[id]; !ok {
			return fmt.Errorf("%w: team %s is not playing in this game", rules.ErrInvalidInput, id)
		}
	}
	onCourt := make(map[string]bool, len(d.Lineup))
	for _, c := range d.Lineup {
		p, ok := l.players[c.PlayerID]
		if !ok {
			return fmt.Errorf("%w: %s", rules.ErrUnknownPlayer, c.PlayerID)
		}
		current, seen := onCourt[c.PlayerID]
		if !seen {
			current = p.IsOnCourt
		}
		if current != c.Was {
			return fmt.Errorf("%w: lineup change for %s does not match the court", rules.ErrInvalidState, c.PlayerID)
		}
		onCourt[c.PlayerID] = c.OnCourt
	}
	if l.quarter+d.Quarter < 1 {
		return fmt.Errorf("%w: quarter would drop below 1", rules.ErrInvalidState)
	}

	for id, line := range d.Players {
		p := l.players[id]
		p.StatLine = p.StatLine.add(line, 1)
	}
	for id, line := range d.Teams {
		t := l.teams[id]
		t.TeamLine = t.TeamLine.add(line, 1)
	}
	for id, on := range onCourt {
		l.players[id].IsOnCourt = on
	}
	l.quarter += d.Quarter
	l.recompute()
	return nil
}

// recompute derives every flag from the counters alone.
func (l *Ledger) recompute() {
	for _, p := range l.players {
		p.FouledOut, p.Ejected = disqualification(l.settings, p.StatLine)
	}
	for _, t := range l.teams {
		t.TimeoutsRemaining = l.settings.TimeoutsPerTeam - t.TimeoutsUsed
		t.InBonus = l.settings.InBonus(t.TeamFoulsThisQuarter)
		t.InDoubleBonus = l.settings.InDoubleBonus(t.TeamFoulsThisQuarter)
	}
}

// setSettings swaps the ruleset. It is rejected when the new ruleset would
// disqualify a player currently on the court or grant a team fewer timeouts
// than it has already used.
func (l *Ledger) setSettings(s rules.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, id := range l.teamOrder {
		if used := l.teams[id].TimeoutsUsed; used > s.TimeoutsPerTeam {
			return fmt.Errorf("%w: team %s has already used %d timeouts", rules.ErrInvalidSettings, id, used)
		}
	}
	for _, id := range l.playerOrder {
		p := l.players[id]
		if !p.IsOnCourt {
			continue
		}
		if fouledOut, ejected := disqualification(s, p.StatLine); fouledOut || ejected {
			return fmt.Errorf("%w: player %s on the court would be disqualified", rules.ErrInvalidSettings, id)
		}
	}
	l.settings = s
	l.recompute()
	return nil
}

// Snapshot returns a deep copy of the ledger.
func (l *Ledger) Snapshot() LedgerSnapshot {
	home, away := l.Score()
	snap := LedgerSnapshot{
		Quarter:   l.quarter,
		HomeScore: home,
		AwayScore: away,
		Players:   make([]PlayerStat, 0, len(l.playerOrder)),
		Teams:     make([]TeamGameStat, 0, len(l.teamOrder)),
	}
	for _, id := range l.playerOrder {
		snap.Players = append(snap.Players, *l.players[id])
	}
	for _, id := range l.teamOrder {
		snap.Teams = append(snap.Teams, *l.teams[id])
	}
	return snap
}

// Fold rebuilds a ledger from an empty state by applying every event delta
// in order.
func Fold(homeTeamID, awayTeamID string, settings rules.Settings, roster []RosterEntry, events []Event) (*Ledger, error) {
	l, err := NewLedger(homeTeamID, awayTeamID, settings)
	if err != nil {
		return nil, err
	}
	for _, e := range roster {
		if err := l.AddPlayer(e); err != nil {
			return nil, err
		}
	}
	for _, ev := range events {
		if err := l.apply(ev.Delta); err != nil {
			return nil, fmt.Errorf("failed to fold event %d (%s): %w", ev.Seq, ev.Kind(), err)
		}
	}
	return l, nil
}
