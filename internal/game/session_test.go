package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

const (
	home = "home"
	away = "away"
)

type recordingSink struct {
	mutations []Mutation
}

func (r *recordingSink) Enqueue(m Mutation) { r.mutations = append(r.mutations, m) }

func testRoster() []RosterEntry {
	var roster []RosterEntry
	for i := 1; i <= 8; i++ {
		roster = append(roster,
			RosterEntry{PlayerID: fmt.Sprintf("h%d", i), TeamID: home, Number: fmt.Sprint(i)},
			RosterEntry{PlayerID: fmt.Sprintf("a%d", i), TeamID: away, Number: fmt.Sprint(i)},
		)
	}
	return roster
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newScheduledSession(t *testing.T, settings rules.Settings, opts ...Option) *Session {
	t.Helper()
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	base := []Option{WithLogger(zaptest.NewLogger(t)), WithIDGenerator(ids)}
	s, err := NewSession(GameInfo{
		ID:         "game-1",
		HomeTeamID: home,
		AwayTeamID: away,
		Settings:   settings,
	}, testRoster(), append(base, opts...)...)
	require.NoError(t, err)
	return s
}

// newActiveSession returns a started game with h1-h5 and a1-a5 on the court.
func newActiveSession(t *testing.T, settings rules.Settings, opts ...Option) *Session {
	t.Helper()
	s := newScheduledSession(t, settings, opts...)
	pickStarters(t, s, home, 5)
	pickStarters(t, s, away, 5)
	require.NoError(t, s.Start())
	return s
}

// pickStarters puts players 1 to n of a team into the starting lineup.
func pickStarters(t *testing.T, s *Session, teamID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := s.ToggleStarter(fmt.Sprintf("%c%d", teamID[0], i))
		require.NoError(t, err)
	}
}

func player(t *testing.T, s *Session, id string) PlayerStat {
	t.Helper()
	p, ok := s.Ledger().Player(id)
	require.True(t, ok, "player %s", id)
	return p
}

func team(t *testing.T, s *Session, id string) TeamGameStat {
	t.Helper()
	tm, ok := s.Ledger().Team(id)
	require.True(t, ok, "team %s", id)
	return tm
}

func checksum(t *testing.T, s *Session) string {
	t.Helper()
	sum, err := s.Checksum()
	require.NoError(t, err)
	return sum.Hash
}

func shoot(t *testing.T, s *Session, shooter string, shotType rules.ShotType, made bool) ShotResult {
	t.Helper()
	_, err := s.BeginShot(nil, shotType)
	require.NoError(t, err)
	res, err := s.ResolveShot(shooter, made)
	require.NoError(t, err)
	return res
}

func personalFoul(t *testing.T, s *Session, fouler, fouled string) FoulResult {
	t.Helper()
	res, err := s.RecordFoul(FoulInput{FoulerID: fouler, FoulType: rules.FoulPersonal, FouledPlayerID: fouled})
	require.NoError(t, err)
	return res
}

func TestBonusReachedOnFifthTeamFoul(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	for i := 1; i <= 4; i++ {
		res := personalFoul(t, s, fmt.Sprintf("a%d", i), "h1")
		assert.True(t, res.Entitlement.None())
		assert.Nil(t, res.FreeThrows)
	}
	assert.False(t, team(t, s, away).InBonus)
	assert.Equal(t, 4, team(t, s, away).TeamFoulsThisQuarter)

	res := personalFoul(t, s, "a5", "h2")
	assert.True(t, res.InBonus)
	assert.True(t, team(t, s, away).InBonus)
	require.NotNil(t, res.FreeThrows)
	assert.Equal(t, 2, res.FreeThrows.Total)
	assert.False(t, res.FreeThrows.OneAndOne)
	assert.Equal(t, "h2", res.FreeThrows.ShooterID)
	assert.Equal(t, res.Event.ID, res.FreeThrows.FoulEventID)
	assert.False(t, team(t, s, home).InBonus)
}

func TestBonusOneAndOneFormat(t *testing.T) {
	settings := rules.DefaultSettings()
	settings.BonusFormat = rules.BonusOneAndOne
	settings.TeamFoulBonusThreshold = 2
	settings.DoubleBonusThreshold = 3
	s := newActiveSession(t, settings)

	personalFoul(t, s, "a1", "h1")
	res := personalFoul(t, s, "a2", "h1")
	require.NotNil(t, res.FreeThrows)
	assert.True(t, res.FreeThrows.OneAndOne)

	_, err := s.CancelFreeThrows()
	require.NoError(t, err)

	res = personalFoul(t, s, "a3", "h1")
	require.NotNil(t, res.FreeThrows)
	assert.False(t, res.FreeThrows.OneAndOne, "double bonus shoots two")
	assert.True(t, team(t, s, away).InDoubleBonus)
}

func TestFoulOutRemovesPlayerAndRejectsShots(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	limit := rules.DefaultSettings().FoulLimitPerPlayer

	for i := 0; i < limit-1; i++ {
		personalFoul(t, s, "h1", "a1")
		if s.throws.Active() {
			_, err := s.CancelFreeThrows()
			require.NoError(t, err)
		}
		_, err := s.AdvanceQuarter()
		require.NoError(t, err)
	}
	assert.Equal(t, limit-1, player(t, s, "h1").Fouls)
	assert.True(t, player(t, s, "h1").IsOnCourt)

	res := personalFoul(t, s, "h1", "a1")
	assert.True(t, res.FouledOut)
	p := player(t, s, "h1")
	assert.True(t, p.FouledOut)
	assert.False(t, p.IsOnCourt)
	assert.Equal(t, []string{"h1"}, s.View().NeedsReplacement[home])

	_, err := s.BeginShot(nil, rules.ShotTwo)
	require.NoError(t, err)
	_, err = s.ResolveShot("h1", true)
	require.ErrorIs(t, err, rules.ErrFouledOut)
	require.ErrorIs(t, err, rules.ErrInvalidState)
	assert.Equal(t, rules.AttributionPendingShot, s.workflow.State(), "rejected shooter keeps the prompt")

	_, err = s.RecordFoul(FoulInput{FoulerID: "h1", FoulType: rules.FoulPersonal})
	require.ErrorIs(t, err, rules.ErrInteractionPending)
	_, err = s.CancelPending()
	require.NoError(t, err)
	_, err = s.RecordFoul(FoulInput{FoulerID: "h1", FoulType: rules.FoulPersonal})
	require.ErrorIs(t, err, rules.ErrFouledOut)
}

func TestMadeShotWithAssistUndoesInOrder(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	before := checksum(t, s)

	res := shoot(t, s, "h1", rules.ShotTwo, true)
	assert.Equal(t, rules.AttributionPendingAssist, res.Next)
	assist := s.workflow.Assist()
	require.NotNil(t, assist)
	assert.NotContains(t, assist.Options, "h1")
	assert.ElementsMatch(t, []string{"h2", "h3", "h4", "h5"}, assist.Options)

	ev, err := s.ResolveAssist("h3")
	require.NoError(t, err)
	assert.Equal(t, res.Event.ID, ev.ParentID)
	assert.Equal(t, 2, player(t, s, "h1").Points)
	assert.Equal(t, 1, player(t, s, "h3").Assists)
	assert.True(t, s.workflow.Idle())

	undone, err := s.Undo()
	require.NoError(t, err)
	assert.Equal(t, KindAssist, undone.Kind())
	assert.Equal(t, 0, player(t, s, "h3").Assists)
	assert.Equal(t, 2, player(t, s, "h1").Points)
	assert.Equal(t, rules.AttributionPendingAssist, s.workflow.State(), "assist prompt reopens")

	undone, err = s.Undo()
	require.NoError(t, err)
	assert.Equal(t, KindShot, undone.Kind())
	assert.Equal(t, 0, player(t, s, "h1").Points)
	assert.True(t, s.workflow.Idle(), "undoing the shot clears its prompt")
	assert.Equal(t, before, checksum(t, s))
}

func TestMissedThreeWithTeamRebound(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	res := shoot(t, s, "h2", rules.ShotThree, false)
	assert.Equal(t, rules.AttributionPendingRebound, res.Next)
	rebound := s.workflow.Rebound()
	require.NotNil(t, rebound)
	assert.Len(t, rebound.Options, 10)
	assert.ElementsMatch(t, []string{home, away}, rebound.TeamOptions)

	ev, err := s.ResolveTeamRebound(away)
	require.NoError(t, err)
	assert.True(t, ev.Payload.(*ReboundPayload).IsTeamRebound())
	assert.False(t, ev.Payload.(*ReboundPayload).Offensive)

	for _, p := range s.Ledger().Snapshot().Players {
		assert.Zero(t, p.Rebounds(), p.PlayerID)
	}
	assert.Equal(t, 1, team(t, s, away).TeamRebounds)
	assert.Equal(t, 1, player(t, s, "h2").ThreePointersAttempted)
	assert.Zero(t, player(t, s, "h2").Points)
}

func TestReboundOffensiveOrDefensive(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	shoot(t, s, "h1", rules.ShotTwo, false)
	ev, err := s.ResolveRebound("h4")
	require.NoError(t, err)
	assert.True(t, ev.Payload.(*ReboundPayload).Offensive)
	assert.Equal(t, 1, player(t, s, "h4").OffensiveRebounds)

	shoot(t, s, "h4", rules.ShotTwo, false)
	_, err = s.ResolveRebound("h6")
	require.ErrorIs(t, err, rules.ErrInvalidSelection, "bench players are not offered")
	_, err = s.ResolveRebound("a2")
	require.NoError(t, err)
	assert.Equal(t, 1, player(t, s, "a2").DefensiveRebounds)
}

func TestOneAndOneMissEndsSequence(t *testing.T) {
	settings := rules.DefaultSettings()
	settings.BonusFormat = rules.BonusOneAndOne
	settings.TeamFoulBonusThreshold = 1
	s := newActiveSession(t, settings)

	res := personalFoul(t, s, "a1", "h1")
	require.NotNil(t, res.FreeThrows)
	require.True(t, res.FreeThrows.OneAndOne)

	ft, err := s.RecordFreeThrow(false)
	require.NoError(t, err)
	assert.True(t, ft.Attempt.Final)
	assert.Nil(t, ft.Remaining)
	assert.Equal(t, 1, player(t, s, "h1").FreeThrowsAttempted)
	assert.Zero(t, player(t, s, "h1").FreeThrowsMade)
	assert.Equal(t, rules.AttributionPendingRebound, s.workflow.State(), "missed front end is live")

	_, err = s.RecordFreeThrow(true)
	require.ErrorIs(t, err, rules.ErrNoFreeThrowSequence)
	require.ErrorIs(t, err, rules.ErrPreconditionFailed)
}

func TestOneAndOneMakeEarnsSecondAttempt(t *testing.T) {
	settings := rules.DefaultSettings()
	settings.BonusFormat = rules.BonusOneAndOne
	settings.TeamFoulBonusThreshold = 1
	for _, second := range []bool{true, false} {
		t.Run(fmt.Sprintf("second_made_%t", second), func(t *testing.T) {
			s := newActiveSession(t, settings)
			personalFoul(t, s, "a1", "h1")

			ft, err := s.RecordFreeThrow(true)
			require.NoError(t, err)
			assert.False(t, ft.Attempt.Final)
			require.NotNil(t, ft.Remaining)

			ft, err = s.RecordFreeThrow(second)
			require.NoError(t, err)
			assert.True(t, ft.Attempt.Final)
			assert.Equal(t, 2, ft.Attempt.Number)
			assert.Equal(t, 2, player(t, s, "h1").FreeThrowsAttempted)
			assert.False(t, s.throws.Active())
		})
	}
}

func TestSubstituteRejectsPlayerAlreadyOnCourt(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	before := s.Ledger().OnCourt(home)

	_, err := s.Substitute("h1", "h2", home)
	require.ErrorIs(t, err, rules.ErrInvalidSubstitution)
	require.ErrorIs(t, err, rules.ErrInvalidState)
	assert.Equal(t, before, s.Ledger().OnCourt(home))
	assert.Equal(t, 10, s.history.Len(), "only the starters were committed")

	_, err = s.Substitute("h1", "h6", home)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"h2", "h3", "h4", "h5", "h6"}, s.Ledger().OnCourt(home))
}

func TestSubstitutionValidation(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	tests := []struct {
		name    string
		out, in string
		team    string
	}{
		{"out on bench", "h6", "h7", home},
		{"cross team", "h1", "a6", home},
		{"same player", "h1", "h1", home},
		{"unknown player", "h1", "zz", home},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Substitute(tt.out, tt.in, tt.team)
			require.ErrorIs(t, err, rules.ErrInvalidState)
		})
	}
	assert.Len(t, s.Ledger().OnCourt(home), 5)
}

func TestFouledOutPlayerNeverReturns(t *testing.T) {
	settings := rules.DefaultSettings()
	settings.FoulLimitPerPlayer = 1
	s := newActiveSession(t, settings)

	personalFoul(t, s, "h1", "a1")
	require.True(t, player(t, s, "h1").FouledOut)
	assert.Len(t, s.Ledger().OnCourt(home), 4)

	_, err := s.Substitute("h2", "h1", home)
	require.ErrorIs(t, err, rules.ErrInvalidSubstitution)

	_, err = s.Substitute("h1", "h6", home)
	require.NoError(t, err, "replacement fills the vacancy")
	assert.Len(t, s.Ledger().OnCourt(home), 5)
	assert.Empty(t, s.View().NeedsReplacement)

	_, err = s.Substitute("h1", "h7", home)
	require.ErrorIs(t, err, rules.ErrInvalidSubstitution, "spot already filled")

	for _, p := range s.Ledger().Snapshot().Players {
		if p.FouledOut {
			assert.False(t, p.IsOnCourt, p.PlayerID)
		}
	}
}

func TestOpeningSecondInteractionRejected(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	_, err := s.BeginShot(&rules.Location{X: 25, Y: 7}, "")
	require.NoError(t, err)
	_, err = s.BeginShot(nil, rules.ShotThree)
	require.ErrorIs(t, err, rules.ErrInteractionPending)

	res, err := s.ResolveShot("a1", false)
	require.NoError(t, err)
	assert.Equal(t, rules.ZoneRestrictedArea, res.Event.Payload.(*ShotPayload).Zone)
	_, err = s.BeginShot(nil, rules.ShotTwo)
	require.ErrorIs(t, err, rules.ErrInteractionPending, "rebound prompt still open")
}

func TestNoAssistClearsPrompt(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	shoot(t, s, "a1", rules.ShotThree, true)
	events := s.history.Len()

	require.NoError(t, s.NoAssist())
	assert.True(t, s.workflow.Idle())
	assert.Equal(t, events, s.history.Len())
	assert.Equal(t, 3, s.Game().AwayScore)

	require.ErrorIs(t, s.NoAssist(), rules.ErrNoPendingInteraction)
}

func TestUndoEmptyHistory(t *testing.T) {
	s := newScheduledSession(t, rules.DefaultSettings())
	_, err := s.Undo()
	require.ErrorIs(t, err, rules.ErrNothingToUndo)
	require.ErrorIs(t, err, rules.ErrPreconditionFailed)
}

func TestUndoRefusesEventWithDependents(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	res := shoot(t, s, "h1", rules.ShotTwo, true)
	_, err := s.ResolveAssist("h2")
	require.NoError(t, err)

	// Move the shot to the top of the history to simulate an out of order log.
	events := s.history.events
	n := len(events)
	events[n-1], events[n-2] = events[n-2], events[n-1]
	require.Equal(t, res.Event.ID, events[n-1].ID)

	_, err = s.Undo()
	require.ErrorIs(t, err, rules.ErrHasDependents)
	assert.Equal(t, 2, player(t, s, "h1").Points)
}

func TestUndoIsExactInverse(t *testing.T) {
	steps := map[string]func(t *testing.T, s *Session){
		"made three": func(t *testing.T, s *Session) { shoot(t, s, "h1", rules.ShotThree, true) },
		"missed two": func(t *testing.T, s *Session) { shoot(t, s, "a1", rules.ShotTwo, false) },
		"personal foul": func(t *testing.T, s *Session) {
			personalFoul(t, s, "h1", "a1")
		},
		"flagrant two": func(t *testing.T, s *Session) {
			_, err := s.RecordFoul(FoulInput{FoulerID: "h1", FoulType: rules.FoulFlagrant2, FouledPlayerID: "a1"})
			require.NoError(t, err)
		},
		"steal": func(t *testing.T, s *Session) {
			_, err := s.RecordStat("a3", StatSteal)
			require.NoError(t, err)
		},
		"timeout": func(t *testing.T, s *Session) {
			_, err := s.RecordTimeout(home)
			require.NoError(t, err)
		},
		"substitution": func(t *testing.T, s *Session) {
			_, err := s.Substitute("a2", "a7", away)
			require.NoError(t, err)
		},
		"quarter change": func(t *testing.T, s *Session) {
			_, err := s.AdvanceQuarter()
			require.NoError(t, err)
		},
	}
	for name, step := range steps {
		t.Run(name, func(t *testing.T) {
			s := newActiveSession(t, rules.DefaultSettings())
			personalFoul(t, s, "a4", "h4")
			before := checksum(t, s)
			quarter, _ := s.Clock()

			step(t, s)
			require.NotEqual(t, before, checksum(t, s))
			_, err := s.Undo()
			require.NoError(t, err)

			assert.Equal(t, before, checksum(t, s))
			after, _ := s.Clock()
			assert.Equal(t, quarter.Quarter, after.Quarter)
			assert.True(t, s.workflow.Idle())
			assert.False(t, s.throws.Active())
		})
	}
}

func TestUndoFreeThrowRewindsSequence(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	_, err := s.RecordFoul(FoulInput{
		FoulerID: "a1",
		FoulType: rules.FoulShooting,
		Shooting: &rules.ShootingContext{ShotType: rules.ShotThree, FouledPlayerID: "h1"},
	})
	require.NoError(t, err)

	_, err = s.RecordFreeThrow(true)
	require.NoError(t, err)
	_, err = s.RecordFreeThrow(true)
	require.NoError(t, err)
	ft, err := s.RecordFreeThrow(false)
	require.NoError(t, err)
	require.True(t, ft.Attempt.LiveMiss)
	require.Equal(t, rules.AttributionPendingRebound, s.workflow.State())

	_, err = s.Undo()
	require.NoError(t, err)
	assert.True(t, s.workflow.Idle())
	seq := s.throws.Sequence()
	require.NotNil(t, seq)
	assert.Equal(t, 3, seq.Attempt())
	assert.Equal(t, []bool{true, true}, seq.Results)

	_, err = s.Undo()
	require.NoError(t, err)
	assert.Equal(t, 2, s.throws.Sequence().Attempt())
	assert.Equal(t, 1, player(t, s, "h1").Points)

	_, err = s.Undo()
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err, "undo the foul")
	assert.False(t, s.throws.Active(), "foul undo cancels its sequence")
	assert.Zero(t, player(t, s, "a1").Fouls)
}

func TestUndoReboundReopensPrompt(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	shoot(t, s, "h1", rules.ShotTwo, false)
	_, err := s.ResolveRebound("a1")
	require.NoError(t, err)

	_, err = s.Undo()
	require.NoError(t, err)
	rebound := s.workflow.Rebound()
	require.NotNil(t, rebound)
	assert.Equal(t, "h1", rebound.ShooterID)
	assert.Equal(t, home, rebound.ShootingTeamID)
	assert.Zero(t, player(t, s, "a1").DefensiveRebounds)
}

func TestTechnicalFreeThrowsAreDeadBall(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	res, err := s.RecordFoul(FoulInput{TeamID: away, FoulType: rules.FoulTechnical, ShooterID: "h5"})
	require.NoError(t, err)
	require.NotNil(t, res.FreeThrows)
	assert.Equal(t, 1, res.FreeThrows.Total)
	assert.Zero(t, team(t, s, away).TeamFoulsThisQuarter, "technicals do not count toward the bonus")

	ft, err := s.RecordFreeThrow(false)
	require.NoError(t, err)
	assert.True(t, ft.Attempt.Final)
	assert.False(t, ft.Attempt.LiveMiss)
	assert.True(t, s.workflow.Idle())
}

func TestEjections(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	res, err := s.RecordFoul(FoulInput{FoulerID: "a2", FoulType: rules.FoulFlagrant2, FouledPlayerID: "h2"})
	require.NoError(t, err)
	assert.True(t, res.Ejected)
	assert.True(t, res.Entitlement.RetainPossession)
	assert.False(t, player(t, s, "a2").IsOnCourt)
	_, err = s.CancelFreeThrows()
	require.NoError(t, err)

	_, err = s.RecordFoul(FoulInput{FoulerID: "a6", FoulType: rules.FoulTechnical, ShooterID: "h1"})
	require.NoError(t, err, "bench players can be charged technicals")
	_, err = s.CancelFreeThrows()
	require.NoError(t, err)
	_, err = s.RecordFoul(FoulInput{FoulerID: "a6", FoulType: rules.FoulTechnical, ShooterID: "h1"})
	require.NoError(t, err)
	assert.True(t, player(t, s, "a6").Ejected)

	_, err = s.RecordFoul(FoulInput{FoulerID: "a2", FoulType: rules.FoulTechnical, ShooterID: "h1"})
	require.ErrorIs(t, err, rules.ErrSequenceActive)
	_, err = s.CancelFreeThrows()
	require.NoError(t, err)
	_, err = s.RecordFoul(FoulInput{FoulerID: "a2", FoulType: rules.FoulTechnical, ShooterID: "h1"})
	require.ErrorIs(t, err, rules.ErrEjected)
}

func TestBonusResetsAtQuarterBoundary(t *testing.T) {
	settings := rules.DefaultSettings()
	settings.TeamFoulBonusThreshold = 3
	s := newActiveSession(t, settings)

	fouler := []string{"a1", "a2", "a3", "a4", "a5"}
	for i, id := range fouler {
		wasInBonus := team(t, s, away).InBonus
		personalFoul(t, s, id, "h1")
		if s.throws.Active() {
			_, err := s.CancelFreeThrows()
			require.NoError(t, err)
		}
		nowInBonus := team(t, s, away).InBonus
		assert.Equal(t, i+1 >= 3, nowInBonus, "after %d fouls", i+1)
		if nowInBonus && !wasInBonus {
			assert.Equal(t, 3, i+1, "bonus turns on exactly at the threshold")
		}
	}

	_, err := s.AdvanceQuarter()
	require.NoError(t, err)
	tm := team(t, s, away)
	assert.False(t, tm.InBonus)
	assert.Zero(t, tm.TeamFoulsThisQuarter)
	assert.Equal(t, 5, tm.TeamFoulsTotal)
}

func TestOvertimeFoulReset(t *testing.T) {
	for _, reset := range []bool{true, false} {
		t.Run(fmt.Sprintf("reset_%t", reset), func(t *testing.T) {
			settings := rules.DefaultSettings()
			settings.RegulationQuarters = 1
			settings.ResetTeamFoulsInOvertime = reset
			s := newActiveSession(t, settings)

			_, err := s.AdvanceQuarter()
			require.NoError(t, err)
			personalFoul(t, s, "a1", "h1")

			ev, err := s.AdvanceQuarter()
			require.NoError(t, err)
			assert.Equal(t, KindOvertimeStart, ev.Kind())
			assert.True(t, s.Game().IsOvertime())
			snap, _ := s.Clock()
			assert.Equal(t, settings.OvertimeLengthSeconds, snap.SecondsRemaining)

			want := 1
			if reset {
				want = 0
			}
			assert.Equal(t, want, team(t, s, away).TeamFoulsThisQuarter)
		})
	}
}

func TestLedgerEqualsFoldOfEvents(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())

	shoot(t, s, "h1", rules.ShotTwo, true)
	_, err := s.ResolveAssist("h2")
	require.NoError(t, err)
	shoot(t, s, "a3", rules.ShotThree, false)
	_, err = s.ResolveRebound("h5")
	require.NoError(t, err)
	_, err = s.RecordFoul(FoulInput{
		FoulerID: "h4",
		FoulType: rules.FoulShooting,
		Shooting: &rules.ShootingContext{ShotType: rules.ShotTwo, FouledPlayerID: "a3"},
	})
	require.NoError(t, err)
	_, err = s.RecordFreeThrow(true)
	require.NoError(t, err)
	_, err = s.RecordFreeThrow(false)
	require.NoError(t, err)
	_, err = s.ResolveTeamRebound(home)
	require.NoError(t, err)
	_, err = s.Substitute("a1", "a6", away)
	require.NoError(t, err)
	_, err = s.RecordStat("a6", StatTurnover)
	require.NoError(t, err)
	_, err = s.RecordTimeout(away)
	require.NoError(t, err)
	_, err = s.AdvanceQuarter()
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err)

	folded, err := Fold(home, away, s.Ledger().Settings(), testRoster(), s.Events())
	require.NoError(t, err)
	assert.Equal(t, s.Ledger().Snapshot(), folded.Snapshot())
	ok, err := s.Reconcile(s.Events())
	require.NoError(t, err)
	assert.True(t, ok)

	game := s.Game()
	assert.Equal(t, 2, game.HomeScore)
	assert.Equal(t, 1, game.AwayScore)
	assert.Equal(t, 4, team(t, s, away).TimeoutsRemaining)
}

func TestRestoreRehydratesSession(t *testing.T) {
	sink := &recordingSink{}
	s := newActiveSession(t, rules.DefaultSettings(), WithSink(sink))
	shoot(t, s, "h1", rules.ShotThree, true)
	require.NoError(t, s.NoAssist())
	personalFoul(t, s, "h2", "a2")
	require.NoError(t, s.Pause())

	restored, err := Restore(s.Game(), testRoster(), s.Events(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, checksum(t, s), checksum(t, restored))
	assert.Equal(t, StatusPaused, restored.Status())
	assert.Equal(t, s.Game().HomeScore, restored.Game().HomeScore)
	assert.Equal(t, s.Ledger().OnCourt(home), restored.Ledger().OnCourt(home))

	last := sink.mutations[len(sink.mutations)-1]
	assert.Equal(t, MutationGame, last.Kind)
	assert.Equal(t, StatusPaused, last.Game.Status)
}

func TestStatusTransitions(t *testing.T) {
	s := newScheduledSession(t, rules.DefaultSettings())

	_, err := s.RecordStat("h1", StatSteal)
	require.ErrorIs(t, err, rules.ErrGameNotActive)
	require.ErrorIs(t, s.Resume(), rules.ErrInvalidTransition)
	require.ErrorIs(t, s.StartClock(), rules.ErrGameNotActive)

	pickStarters(t, s, home, 5)
	pickStarters(t, s, away, 5)
	require.NoError(t, s.Start())
	_, err = s.ToggleStarter("h1")
	require.ErrorIs(t, err, rules.ErrInvalidSubstitution, "starters are locked after tip-off")

	require.NoError(t, s.Pause())
	assert.True(t, s.CanRecordStats())
	assert.False(t, s.IsActive())
	require.NoError(t, s.Resume())
	require.NoError(t, s.End())
	require.ErrorIs(t, s.Start(), rules.ErrInvalidTransition)
	_, err = s.Undo()
	require.ErrorIs(t, err, rules.ErrGameNotActive)
}

func TestToggleStarterLimit(t *testing.T) {
	s := newScheduledSession(t, rules.DefaultSettings())
	for i := 1; i <= 5; i++ {
		_, err := s.ToggleStarter(fmt.Sprintf("h%d", i))
		require.NoError(t, err)
	}
	_, err := s.ToggleStarter("h6")
	require.ErrorIs(t, err, rules.ErrInvalidSubstitution)

	_, err = s.ToggleStarter("h3")
	require.NoError(t, err)
	assert.False(t, player(t, s, "h3").IsOnCourt)
	_, err = s.ToggleStarter("h6")
	require.NoError(t, err)
	assert.Len(t, s.Ledger().OnCourt(home), 5)
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	personalFoul(t, s, "h1", "a1")
	personalFoul(t, s, "h1", "a1")

	bad := rules.DefaultSettings()
	bad.QuarterLengthSeconds = 0
	require.ErrorIs(t, s.UpdateSettings(bad), rules.ErrConfiguration)

	lower := rules.DefaultSettings()
	lower.FoulLimitPerPlayer = 2
	require.ErrorIs(t, s.UpdateSettings(lower), rules.ErrConfiguration)
	assert.Equal(t, 5, s.Ledger().Settings().FoulLimitPerPlayer, "prior settings kept")

	lower.FoulLimitPerPlayer = 3
	require.NoError(t, s.UpdateSettings(lower))
	assert.Equal(t, 3, s.Game().Settings.FoulLimitPerPlayer)
}

func TestClockDrivesPeriodEnd(t *testing.T) {
	tc := &testClock{t: time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)}
	settings := rules.DefaultSettings()
	settings.QuarterLengthSeconds = 60
	s := newActiveSession(t, settings, WithNow(tc.now))

	var ended []Notification
	s.Bus().SubscribeTyped(NotifyPeriodEnded, func(n Notification) { ended = append(ended, n) })

	require.NoError(t, s.StartClock())
	tc.advance(30500 * time.Millisecond)
	assert.False(t, s.Tick())
	snap, running := s.Clock()
	assert.True(t, running)
	assert.Equal(t, 30, snap.SecondsRemaining)

	tc.advance(40 * time.Second)
	assert.True(t, s.Tick())
	assert.False(t, s.Tick())
	assert.Len(t, ended, 1)
	snap, running = s.Clock()
	assert.False(t, running)
	assert.Zero(t, snap.SecondsRemaining)
	require.ErrorIs(t, s.StartClock(), rules.ErrInvalidState)

	_, err := s.AdvanceQuarter()
	require.NoError(t, err)
	snap, _ = s.Clock()
	assert.Equal(t, 2, snap.Quarter)
	assert.Equal(t, 60, snap.SecondsRemaining)
}

func TestStartRequiresFullLineups(t *testing.T) {
	s := newScheduledSession(t, rules.DefaultSettings())
	pickStarters(t, s, home, 4)
	pickStarters(t, s, away, 5)

	require.ErrorIs(t, s.Start(), rules.ErrInvalidSubstitution)
	assert.Equal(t, StatusScheduled, s.Status())

	_, err := s.ToggleStarter("h5")
	require.NoError(t, err)
	require.NoError(t, s.Start())

	_, err = s.Substitute("h1", "h6", home)
	require.NoError(t, err)
	assert.Len(t, s.Ledger().OnCourt(home), PlayersOnCourt)
}

func TestUndoFreeThrowRefusedWhileShotOpen(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	_, err := s.RecordFoul(FoulInput{
		FoulerID: "a1",
		FoulType: rules.FoulShooting,
		Shooting: &rules.ShootingContext{ShotType: rules.ShotTwo, FouledPlayerID: "h2"},
	})
	require.NoError(t, err)
	_, err = s.RecordFreeThrow(true)
	require.NoError(t, err)
	_, err = s.RecordFreeThrow(true)
	require.NoError(t, err)
	require.False(t, s.throws.Active())

	_, err = s.BeginShot(nil, rules.ShotTwo)
	require.NoError(t, err)
	_, err = s.Undo()
	require.ErrorIs(t, err, rules.ErrInteractionPending)
	assert.False(t, s.throws.Active(), "sequence stays closed")
	assert.Equal(t, 2, player(t, s, "h2").FreeThrowsMade)

	res, err := s.ResolveShot("h2", true)
	require.NoError(t, err)
	assert.Equal(t, rules.AttributionPendingAssist, res.Next)
	assert.Equal(t, 4, player(t, s, "h2").Points)
}

func TestResolveShotRejectedDuringFreeThrows(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	_, err := s.BeginShot(nil, rules.ShotTwo)
	require.NoError(t, err)
	require.NoError(t, s.throws.Start(rules.FreeThrowSequence{ID: "ft-1", ShooterID: "h1", Total: 2}))

	_, err = s.ResolveShot("h2", true)
	require.ErrorIs(t, err, rules.ErrSequenceActive)
	assert.NotNil(t, s.workflow.Shot(), "shot prompt stays open")
	assert.Zero(t, player(t, s, "h2").FieldGoalsAttempted)
}

func TestUpdateSettingsRejectsTimeoutsBelowUsed(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	for range 3 {
		_, err := s.RecordTimeout(home)
		require.NoError(t, err)
	}

	fewer := rules.DefaultSettings()
	fewer.TimeoutsPerTeam = 1
	require.ErrorIs(t, s.UpdateSettings(fewer), rules.ErrConfiguration)
	assert.Equal(t, 5, s.Ledger().Settings().TimeoutsPerTeam, "prior settings kept")
	assert.Equal(t, 2, team(t, s, home).TimeoutsRemaining)

	fewer.TimeoutsPerTeam = 3
	require.NoError(t, s.UpdateSettings(fewer))
	assert.Zero(t, team(t, s, home).TimeoutsRemaining)
	_, err := s.RecordTimeout(home)
	require.ErrorIs(t, err, rules.ErrNoTimeouts)
}

func TestEventsAreDetachedCopies(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	loc := rules.Location{X: 25, Y: 6}
	_, err := s.BeginShot(&loc, "")
	require.NoError(t, err)
	_, err = s.ResolveShot("h1", true)
	require.NoError(t, err)
	before := checksum(t, s)

	events := s.Events()
	last := events[len(events)-1]
	last.Delta.Players["h1"] = StatLine{Points: 50}
	last.Delta.Teams[home] = TeamLine{Points: 50}
	last.Payload.(*ShotPayload).Location.X = 99

	assert.Equal(t, before, checksum(t, s))
	stored := s.Events()[len(events)-1]
	assert.Equal(t, 25.0, stored.Payload.(*ShotPayload).Location.X)
	assert.Equal(t, 2, stored.Delta.Players["h1"].Points)
	_, err = s.CancelPending()
	require.NoError(t, err)
	_, err = s.Undo()
	require.NoError(t, err)
	assert.Zero(t, player(t, s, "h1").Points)
	homeScore, _ := s.Ledger().Score()
	assert.Zero(t, homeScore)
}
