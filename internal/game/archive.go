package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const archiveVersion = 1

func init() {
	gob.Register(&ShotPayload{})
	gob.Register(&AssistPayload{})
	gob.Register(&ReboundPayload{})
	gob.Register(&FreeThrowPayload{})
	gob.Register(&FoulPayload{})
	gob.Register(&StatPayload{})
	gob.Register(&SubstitutionPayload{})
	gob.Register(&StarterPayload{})
	gob.Register(&TimeoutPayload{})
	gob.Register(&PeriodPayload{})
}

// Archive is everything needed to rebuild a game: the game record, the
// roster and the ordered event log.
type Archive struct {
	Game   GameInfo
	Roster []RosterEntry
	Events []Event
}

type archiveMetadata struct {
	GameID     string
	Timestamp  time.Time
	Version    int
	EventCount int
}

// Archive captures the session for storage.
func (s *Session) Archive() Archive {
	return Archive{
		Game:   s.Game(),
		Roster: s.ledger.Roster(),
		Events: s.history.Events(),
	}
}

// Restore rebuilds a session from the archive.
func (a Archive) Restore(opts ...Option) (*Session, error) {
	return Restore(a.Game, a.Roster, a.Events, opts...)
}

// WriteArchive encodes a gzip compressed archive to w.
func WriteArchive(w io.Writer, a Archive) error {
	zw := gzip.NewWriter(w)
	enc := gob.NewEncoder(zw)

	meta := archiveMetadata{
		GameID:     a.Game.ID,
		Timestamp:  time.Now(),
		Version:    archiveVersion,
		EventCount: len(a.Events),
	}
	if err := enc.Encode(&meta); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := enc.Encode(&a.Game); err != nil {
		return fmt.Errorf("failed to encode game: %w", err)
	}
	if err := enc.Encode(a.Roster); err != nil {
		return fmt.Errorf("failed to encode roster: %w", err)
	}
	for i := range a.Events {
		if err := enc.Encode(&a.Events[i]); err != nil {
			return fmt.Errorf("failed to encode event %d: %w", i, err)
		}
	}
	return zw.Close()
}

// ReadArchive decodes an archive written by WriteArchive.
func ReadArchive(r io.Reader) (Archive, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return Archive{}, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()
	dec := gob.NewDecoder(zr)

	var meta archiveMetadata
	if err := dec.Decode(&meta); err != nil {
		return Archive{}, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if meta.Version != archiveVersion {
		return Archive{}, fmt.Errorf("unsupported archive version: %d", meta.Version)
	}
	var a Archive
	if err := dec.Decode(&a.Game); err != nil {
		return Archive{}, fmt.Errorf("failed to decode game: %w", err)
	}
	if err := dec.Decode(&a.Roster); err != nil {
		return Archive{}, fmt.Errorf("failed to decode roster: %w", err)
	}
	a.Events = make([]Event, 0, meta.EventCount)
	for i := 0; i < meta.EventCount; i++ {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			return Archive{}, fmt.Errorf("failed to decode event %d: %w", i, err)
		}
		a.Events = append(a.Events, ev)
	}
	return a, nil
}

// ArchivePath returns the file an archive of gameID is stored in.
func ArchivePath(dir, gameID string) string {
	return filepath.Join(dir, gameID+".game.gz")
}

// SaveArchiveFile writes the archive into dir, creating it if needed.
func SaveArchiveFile(dir string, a Archive) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	path := ArchivePath(dir, a.Game.ID)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()
	if err := WriteArchive(f, a); err != nil {
		return "", err
	}
	return path, f.Close()
}

// LoadArchiveFile reads the archive of gameID from dir.
func LoadArchiveFile(dir, gameID string) (Archive, error) {
	f, err := os.Open(ArchivePath(dir, gameID))
	if err != nil {
		return Archive{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return ReadArchive(f)
}
