package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

func playSomeGame(t *testing.T, s *Session) {
	t.Helper()
	loc := rules.Location{X: 2, Y: 3}
	_, err := s.BeginShot(&loc, "")
	require.NoError(t, err)
	_, err = s.ResolveShot("h3", true)
	require.NoError(t, err)
	_, err = s.ResolveAssist("h1")
	require.NoError(t, err)
	_, err = s.RecordFoul(FoulInput{
		FoulerID: "h2",
		FoulType: rules.FoulShooting,
		Shooting: &rules.ShootingContext{ShotType: rules.ShotTwo, WasAndOne: true, FouledPlayerID: "a1"},
	})
	require.NoError(t, err)
	_, err = s.RecordFreeThrow(true)
	require.NoError(t, err)
	_, err = s.RecordStat("a4", StatBlock)
	require.NoError(t, err)
}

func TestArchiveRoundTrip(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	playSomeGame(t, s)

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, s.Archive()))

	archive, err := ReadArchive(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Game().ID, archive.Game.ID)
	require.Len(t, archive.Events, len(s.Events()))

	shot, ok := archive.Events[10].Payload.(*ShotPayload)
	require.True(t, ok)
	assert.Equal(t, rules.ZoneLeftCorner3, shot.Zone)
	assert.Equal(t, rules.ShotThree, shot.ShotType)

	restored, err := archive.Restore(WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, checksum(t, s), checksum(t, restored))
	assert.Equal(t, 3, restored.Game().HomeScore)
	assert.Equal(t, 1, restored.Game().AwayScore)
}

func TestArchiveFile(t *testing.T) {
	dir := t.TempDir()
	s := newActiveSession(t, rules.DefaultSettings())
	playSomeGame(t, s)

	path, err := SaveArchiveFile(dir, s.Archive())
	require.NoError(t, err)
	assert.Equal(t, ArchivePath(dir, s.ID()), path)

	archive, err := LoadArchiveFile(dir, s.ID())
	require.NoError(t, err)
	assert.Len(t, archive.Events, len(s.Events()))

	_, err = LoadArchiveFile(dir, "missing")
	require.Error(t, err)
}

func TestEventJSONKeepsPayloadVariant(t *testing.T) {
	s := newActiveSession(t, rules.DefaultSettings())
	playSomeGame(t, s)

	data, err := json.Marshal(s.Events())
	require.NoError(t, err)

	var decoded []Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, len(s.Events()))

	foul := decoded[12]
	require.Equal(t, KindFoul, foul.Kind())
	payload := foul.Payload.(*FoulPayload)
	assert.True(t, payload.Shooting.WasAndOne)
	assert.Equal(t, 1, payload.Entitlement.FreeThrows)
	assert.Equal(t, "h2", foul.ActorPlayerID())
	assert.Equal(t, "a1", foul.SecondaryPlayerID())

	folded, err := Fold(home, away, rules.DefaultSettings(), testRoster(), decoded)
	require.NoError(t, err)
	assert.Equal(t, s.Ledger().Snapshot(), folded.Snapshot())

	_, err = DecodePayload("dunk", []byte(`{}`))
	require.Error(t, err)
}

func TestManagerSerialisesSessions(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(zaptest.NewLogger(t), WithArchiveDir(dir))

	s, err := m.Create(GameInfo{HomeTeamID: home, AwayTeamID: away, Settings: rules.DefaultSettings()}, testRoster())
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID()}, m.List())
	assert.Zero(t, m.ActiveCount())

	err = m.Do(s.ID(), func(s *Session) error {
		for _, id := range []string{"h1", "h2", "h3", "h4", "h5", "a1", "a2", "a3", "a4", "a5"} {
			if _, err := s.ToggleStarter(id); err != nil {
				return err
			}
		}
		return s.Start()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, m.ActiveCount())

	err = m.Do("nope", func(*Session) error { return nil })
	require.True(t, errors.Is(err, ErrGameNotFound))

	_, err = m.Restore(s.Game(), testRoster(), s.Events())
	require.ErrorIs(t, err, ErrInvalidState, "game already loaded")

	require.NoError(t, m.Remove(s.ID()))
	assert.Empty(t, m.List())
	archive, err := LoadArchiveFile(dir, s.ID())
	require.NoError(t, err)
	assert.Len(t, archive.Events, 10)

	restored, err := m.Restore(archive.Game, archive.Roster, archive.Events)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, restored.Status())
}
