package game

import (
	"maps"
	"sort"
)

// StatLine holds the cumulative counters of one player. It doubles as the
// per-player part of an event delta.
type StatLine struct {
	Points                 int `json:"points"`
	FieldGoalsMade         int `json:"field_goals_made"`
	FieldGoalsAttempted    int `json:"field_goals_attempted"`
	ThreePointersMade      int `json:"three_pointers_made"`
	ThreePointersAttempted int `json:"three_pointers_attempted"`
	FreeThrowsMade         int `json:"free_throws_made"`
	FreeThrowsAttempted    int `json:"free_throws_attempted"`
	OffensiveRebounds      int `json:"offensive_rebounds"`
	DefensiveRebounds      int `json:"defensive_rebounds"`
	Assists                int `json:"assists"`
	Steals                 int `json:"steals"`
	Blocks                 int `json:"blocks"`
	Turnovers              int `json:"turnovers"`
	Fouls                  int `json:"fouls"`
	TechnicalFouls         int `json:"technical_fouls"`
	FlagrantFouls          int `json:"flagrant_fouls"`
	// Flagrant2Fouls is tracked separately because one ejects the player.
	Flagrant2Fouls int `json:"flagrant2_fouls"`
}

// Rebounds returns the total rebounds.
func (s StatLine) Rebounds() int {
	return s.OffensiveRebounds + s.DefensiveRebounds
}

func (s StatLine) add(o StatLine, sign int) StatLine {
	s.Points += sign * o.Points
	s.FieldGoalsMade += sign * o.FieldGoalsMade
	s.FieldGoalsAttempted += sign * o.FieldGoalsAttempted
	s.ThreePointersMade += sign * o.ThreePointersMade
	s.ThreePointersAttempted += sign * o.ThreePointersAttempted
	s.FreeThrowsMade += sign * o.FreeThrowsMade
	s.FreeThrowsAttempted += sign * o.FreeThrowsAttempted
	s.OffensiveRebounds += sign * o.OffensiveRebounds
	s.DefensiveRebounds += sign * o.DefensiveRebounds
	s.Assists += sign * o.Assists
	s.Steals += sign * o.Steals
	s.Blocks += sign * o.Blocks
	s.Turnovers += sign * o.Turnovers
	s.Fouls += sign * o.Fouls
	s.TechnicalFouls += sign * o.TechnicalFouls
	s.FlagrantFouls += sign * o.FlagrantFouls
	s.Flagrant2Fouls += sign * o.Flagrant2Fouls
	return s
}

// TeamLine holds the team-level counters touched by events.
type TeamLine struct {
	Points               int `json:"points"`
	TeamFoulsThisQuarter int `json:"team_fouls_this_quarter"`
	TeamFoulsTotal       int `json:"team_fouls_total"`
	TimeoutsUsed         int `json:"timeouts_used"`
	TeamRebounds         int `json:"team_rebounds"`
}

func (t TeamLine) add(o TeamLine, sign int) TeamLine {
	t.Points += sign * o.Points
	t.TeamFoulsThisQuarter += sign * o.TeamFoulsThisQuarter
	t.TeamFoulsTotal += sign * o.TeamFoulsTotal
	t.TimeoutsUsed += sign * o.TimeoutsUsed
	t.TeamRebounds += sign * o.TeamRebounds
	return t
}

// LineupChange moves one player on or off the court.
type LineupChange struct {
	PlayerID string `json:"player_id"`
	Was      bool   `json:"was"`
	OnCourt  bool   `json:"on_court"`
}

// Delta is the exact change an event applies to the ledger. Its inverse
// undoes the event.
type Delta struct {
	Players map[string]StatLine `json:"players,omitempty"`
	Teams   map[string]TeamLine `json:"teams,omitempty"`
	Lineup  []LineupChange      `json:"lineup,omitempty"`
	// Quarter is the change to the current quarter.
	Quarter int `json:"quarter,omitempty"`
}

func (d *Delta) addPlayer(id string, line StatLine) {
	if d.Players == nil {
		d.Players = make(map[string]StatLine)
	}
	d.Players[id] = d.Players[id].add(line, 1)
}

func (d *Delta) addTeam(id string, line TeamLine) {
	if d.Teams == nil {
		d.Teams = make(map[string]TeamLine)
	}
	d.Teams[id] = d.Teams[id].add(line, 1)
}

func (d *Delta) move(playerID string, was, onCourt bool) {
	d.Lineup = append(d.Lineup, LineupChange{PlayerID: playerID, Was: was, OnCourt: onCourt})
}

// Inverse returns the delta that undoes d.
func (d Delta) Inverse() Delta {
	inv := Delta{Quarter: -d.Quarter}
	if len(d.Players) > 0 {
		inv.Players = make(map[string]StatLine, len(d.Players))
		for id, line := range d.Players {
			inv.Players[id] = StatLine{}.add(line, -1)
		}
	}
	if len(d.Teams) > 0 {
		inv.Teams = make(map[string]TeamLine, len(d.Teams))
		for id, line := range d.Teams {
			inv.Teams[id] = TeamLine{}.add(line, -1)
		}
	}
	for i := len(d.Lineup) - 1; i >= 0; i-- {
		c := d.Lineup[i]
		inv.Lineup = append(inv.Lineup, LineupChange{PlayerID: c.PlayerID, Was: c.OnCourt, OnCourt: c.Was})
	}
	return inv
}

// Clone returns a deep copy of d.
func (d Delta) Clone() Delta {
	c := Delta{Quarter: d.Quarter}
	if d.Players != nil {
		c.Players = maps.Clone(d.Players)
	}
	if d.Teams != nil {
		c.Teams = maps.Clone(d.Teams)
	}
	if d.Lineup != nil {
		c.Lineup = append([]LineupChange(nil), d.Lineup...)
	}
	return c
}

// PlayerIDs returns the players touched by d in sorted order.
func (d Delta) PlayerIDs() []string {
	ids := make([]string, 0, len(d.Players))
	for id := range d.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
