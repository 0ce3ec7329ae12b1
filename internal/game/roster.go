package game

import (
	"fmt"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// PlayersOnCourt is the size of a full lineup.
const PlayersOnCourt = 5

// OnCourt returns the players of a team currently on the court, in roster order.
func (l *Ledger) OnCourt(teamID string) []string {
	var ids []string
	for _, id := range l.playerOrder {
		p := l.players[id]
		if p.TeamID == teamID && p.IsOnCourt {
			ids = append(ids, id)
		}
	}
	return ids
}

// Bench returns the players of a team who are off the court and still
// eligible to enter.
func (l *Ledger) Bench(teamID string) []string {
	var ids []string
	for _, id := range l.playerOrder {
		p := l.players[id]
		if p.TeamID == teamID && !p.IsOnCourt && !p.Disqualified() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Vacancies returns how many lineup spots of a team are empty because of
// foul-outs or ejections. Before tip-off this is the number of starters still
// to be picked.
func (l *Ledger) Vacancies(teamID string) int {
	return max(PlayersOnCourt-len(l.OnCourt(teamID)), 0)
}

// NeedsReplacement returns the disqualified players of a team whose spots are
// still empty, most recent first.
func (l *Ledger) NeedsReplacement(teamID string) []string {
	n := l.Vacancies(teamID)
	var ids []string
	for i := len(l.playerOrder) - 1; i >= 0 && len(ids) < n; i-- {
		p := l.players[l.playerOrder[i]]
		if p.TeamID == teamID && p.Disqualified() {
			ids = append(ids, p.PlayerID)
		}
	}
	return ids
}

func (l *Ledger) rosterPair(outID, inID, teamID string) (*PlayerStat, *PlayerStat, error) {
	if _, err := l.team(teamID); err != nil {
		return nil, nil, err
	}
	if outID == inID {
		return nil, nil, fmt.Errorf("%w: %s cannot replace themselves", rules.ErrInvalidSubstitution, outID)
	}
	out, err := l.player(outID)
	if err != nil {
		return nil, nil, err
	}
	in, err := l.player(inID)
	if err != nil {
		return nil, nil, err
	}
	if out.TeamID != teamID || in.TeamID != teamID {
		return nil, nil, fmt.Errorf("%w: both players must play for team %s", rules.ErrInvalidSubstitution, teamID)
	}
	return out, in, nil
}

// planSwap validates a substitution and returns its lineup delta. A regular
// swap keeps the lineup at five. When out has fouled out or been ejected and
// their spot is empty, in fills the vacancy instead.
func (l *Ledger) planSwap(outID, inID, teamID string) (Delta, error) {
	out, in, err := l.rosterPair(outID, inID, teamID)
	if err != nil {
		return Delta{}, err
	}
	if in.IsOnCourt {
		return Delta{}, fmt.Errorf("%w: %s is already on the court", rules.ErrInvalidSubstitution, inID)
	}
	if in.Disqualified() {
		return Delta{}, fmt.Errorf("%w: %s may not re-enter the game", rules.ErrInvalidSubstitution, inID)
	}
	count := len(l.OnCourt(teamID))
	var d Delta
	switch {
	case out.IsOnCourt:
		if count != PlayersOnCourt {
			return Delta{}, fmt.Errorf("%w: team %s has %d players on the court", rules.ErrInvalidSubstitution, teamID, count)
		}
		d.move(outID, true, false)
		d.move(inID, false, true)
	case out.Disqualified() && count < PlayersOnCourt:
		d.move(inID, false, true)
	default:
		return Delta{}, fmt.Errorf("%w: %s is not on the court", rules.ErrInvalidSubstitution, outID)
	}
	return d, nil
}

// planStarter validates a starting lineup change and returns its delta.
func (l *Ledger) planStarter(playerID, teamID string, onCourt bool) (Delta, error) {
	if _, err := l.team(teamID); err != nil {
		return Delta{}, err
	}
	p, err := l.eligiblePlayer(playerID)
	if err != nil {
		return Delta{}, err
	}
	if p.TeamID != teamID {
		return Delta{}, fmt.Errorf("%w: %s does not play for team %s", rules.ErrInvalidSubstitution, playerID, teamID)
	}
	if p.IsOnCourt == onCourt {
		return Delta{}, fmt.Errorf("%w: %s is already in that lineup state", rules.ErrInvalidSubstitution, playerID)
	}
	if onCourt && len(l.OnCourt(teamID)) >= PlayersOnCourt {
		return Delta{}, fmt.Errorf("%w: team %s already has %d starters", rules.ErrInvalidSubstitution, teamID, PlayersOnCourt)
	}
	var d Delta
	d.move(playerID, p.IsOnCourt, onCourt)
	return d, nil
}
