package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Checksum is a deterministic digest of a ledger snapshot. Two ledgers with
// the same counters, lineup and derived flags have the same checksum.
type Checksum struct {
	Hash    string `json:"hash"`
	Version int    `json:"version"`
}

// Checksum computes the digest of the snapshot. Players are hashed sorted by
// ID so roster order does not matter.
func (snap LedgerSnapshot) Checksum() (Checksum, error) {
	h := sha256.New()
	if _, err := h.Write(snap.canonical()); err != nil {
		return Checksum{}, fmt.Errorf("failed to compute hash: %w", err)
	}
	return Checksum{Hash: hex.EncodeToString(h.Sum(nil)), Version: 1}, nil
}

func (snap LedgerSnapshot) canonical() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GAME:%d|%d|%d\n", snap.Quarter, snap.HomeScore, snap.AwayScore)

	teams := append([]TeamGameStat(nil), snap.Teams...)
	sort.Slice(teams, func(i, j int) bool { return teams[i].TeamID < teams[j].TeamID })
	for _, t := range teams {
		fmt.Fprintf(&buf, "TEAM:%s|%t|%d|%d|%d|%d|%d|%d|%t|%t\n",
			t.TeamID, t.IsHomeTeam,
			t.Points, t.TeamFoulsThisQuarter, t.TeamFoulsTotal, t.TimeoutsUsed, t.TeamRebounds,
			t.TimeoutsRemaining, t.InBonus, t.InDoubleBonus,
		)
	}

	players := append([]PlayerStat(nil), snap.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })
	for _, p := range players {
		s := p.StatLine
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%d|%t|%t|%t\n",
			p.PlayerID, p.TeamID,
			s.Points, s.FieldGoalsMade, s.FieldGoalsAttempted,
			s.ThreePointersMade, s.ThreePointersAttempted,
			s.FreeThrowsMade, s.FreeThrowsAttempted,
			s.OffensiveRebounds, s.DefensiveRebounds,
			s.Assists, s.Steals, s.Blocks, s.Turnovers,
			s.Fouls, s.TechnicalFouls, s.FlagrantFouls, s.Flagrant2Fouls,
			p.IsOnCourt, p.FouledOut, p.Ejected,
		)
	}
	return buf.Bytes()
}

// Checksum returns the digest of the session's current ledger.
func (s *Session) Checksum() (Checksum, error) {
	return s.ledger.Snapshot().Checksum()
}

// Reconcile compares the session's ledger with one folded from an
// authoritative event log and reports whether they agree.
func (s *Session) Reconcile(events []Event) (bool, error) {
	folded, err := Fold(s.ledger.HomeTeamID(), s.ledger.AwayTeamID(), s.ledger.Settings(), s.ledger.Roster(), events)
	if err != nil {
		return false, err
	}
	local, err := s.Checksum()
	if err != nil {
		return false, err
	}
	remote, err := folded.Snapshot().Checksum()
	if err != nil {
		return false, err
	}
	return local.Hash == remote.Hash, nil
}
