package server

import (
	"errors"
	"fmt"

	"github.com/courtside/scorekeeper-server-go/internal/game"
	"github.com/courtside/scorekeeper-server-go/internal/game/rules"
)

// CommandType names a scorekeeper command.
type CommandType string

const (
	CmdStart            CommandType = "start"
	CmdPause            CommandType = "pause"
	CmdResume           CommandType = "resume"
	CmdEnd              CommandType = "end"
	CmdStartClock       CommandType = "start_clock"
	CmdPauseClock       CommandType = "pause_clock"
	CmdResetClock       CommandType = "reset_clock"
	CmdSetClock         CommandType = "set_clock"
	CmdAdvanceQuarter   CommandType = "advance_quarter"
	CmdToggleStarter    CommandType = "toggle_starter"
	CmdBeginShot        CommandType = "begin_shot"
	CmdResolveShot      CommandType = "resolve_shot"
	CmdAssist           CommandType = "assist"
	CmdNoAssist         CommandType = "no_assist"
	CmdRebound          CommandType = "rebound"
	CmdTeamRebound      CommandType = "team_rebound"
	CmdCancelPending    CommandType = "cancel_pending"
	CmdFoul             CommandType = "foul"
	CmdStartFreeThrows  CommandType = "start_free_throws"
	CmdFreeThrow        CommandType = "free_throw"
	CmdCancelFreeThrows CommandType = "cancel_free_throws"
	CmdStat             CommandType = "stat"
	CmdTimeout          CommandType = "timeout"
	CmdSubstitute       CommandType = "substitute"
	CmdUndo             CommandType = "undo"
	CmdUpdateSettings   CommandType = "update_settings"
)

// Command is the JSON body of a command request or websocket message.
// Only the fields the command type uses are read.
type Command struct {
	Type      CommandType     `json:"type"`
	PlayerID  string          `json:"player_id,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	OutID     string          `json:"out_id,omitempty"`
	InID      string          `json:"in_id,omitempty"`
	Made      bool            `json:"made,omitempty"`
	Location  *rules.Location `json:"location,omitempty"`
	ShotType  rules.ShotType  `json:"shot_type,omitempty"`
	Foul      *game.FoulInput `json:"foul,omitempty"`
	Stat      game.StatKind   `json:"stat,omitempty"`
	Total     int             `json:"total,omitempty"`
	OneAndOne bool            `json:"one_and_one,omitempty"`
	Live      bool            `json:"live,omitempty"`
	Seconds   int             `json:"seconds,omitempty"`
	Settings  *rules.Settings `json:"settings,omitempty"`
}

// errBadCommand marks malformed commands.
var errBadCommand = errors.New("bad command")

// dispatch runs cmd against s. The result is whatever the session operation
// returned, or nil for operations without one.
func dispatch(s *game.Session, cmd Command) (any, error) {
	switch cmd.Type {
	case CmdStart:
		return nil, s.Start()
	case CmdPause:
		return nil, s.Pause()
	case CmdResume:
		return nil, s.Resume()
	case CmdEnd:
		return nil, s.End()
	case CmdStartClock:
		return nil, s.StartClock()
	case CmdPauseClock:
		s.PauseClock()
		return nil, nil
	case CmdResetClock:
		return nil, s.ResetClock()
	case CmdSetClock:
		return nil, s.SetClockTime(cmd.Seconds)
	case CmdAdvanceQuarter:
		return s.AdvanceQuarter()
	case CmdToggleStarter:
		return s.ToggleStarter(cmd.PlayerID)
	case CmdBeginShot:
		return s.BeginShot(cmd.Location, cmd.ShotType)
	case CmdResolveShot:
		return s.ResolveShot(cmd.PlayerID, cmd.Made)
	case CmdAssist:
		return s.ResolveAssist(cmd.PlayerID)
	case CmdNoAssist:
		return nil, s.NoAssist()
	case CmdRebound:
		return s.ResolveRebound(cmd.PlayerID)
	case CmdTeamRebound:
		return s.ResolveTeamRebound(cmd.TeamID)
	case CmdCancelPending:
		prev, err := s.CancelPending()
		return map[string]string{"cancelled": prev.String()}, err
	case CmdFoul:
		if cmd.Foul == nil {
			return nil, fmt.Errorf("%w: foul is required", errBadCommand)
		}
		return s.RecordFoul(*cmd.Foul)
	case CmdStartFreeThrows:
		return s.StartFreeThrows(cmd.PlayerID, cmd.Total, cmd.OneAndOne, cmd.Live)
	case CmdFreeThrow:
		return s.RecordFreeThrow(cmd.Made)
	case CmdCancelFreeThrows:
		return s.CancelFreeThrows()
	case CmdStat:
		return s.RecordStat(cmd.PlayerID, cmd.Stat)
	case CmdTimeout:
		return s.RecordTimeout(cmd.TeamID)
	case CmdSubstitute:
		return s.Substitute(cmd.OutID, cmd.InID, cmd.TeamID)
	case CmdUndo:
		return s.Undo()
	case CmdUpdateSettings:
		if cmd.Settings == nil {
			return nil, fmt.Errorf("%w: settings are required", errBadCommand)
		}
		return nil, s.UpdateSettings(*cmd.Settings)
	}
	return nil, fmt.Errorf("%w: unknown command type %q", errBadCommand, cmd.Type)
}
