package rules

import "fmt"

// ErrInvalidSettings is wrapped by every settings validation failure.
var ErrInvalidSettings = fmt.Errorf("%w: invalid game settings", ErrConfiguration)

// BonusFormat selects how free throws are awarded once a team is in the bonus.
type BonusFormat string

const (
	// BonusTwoShots awards two free throws on every bonus foul.
	BonusTwoShots BonusFormat = "two_shots"
	// BonusOneAndOne awards a one-and-one until the double bonus is reached.
	BonusOneAndOne BonusFormat = "one_and_one"
)

// Settings is the configurable ruleset of a single game.
type Settings struct {
	QuarterLengthSeconds   int `json:"quarter_length_seconds" mapstructure:"quarter_length_seconds"`
	OvertimeLengthSeconds  int `json:"overtime_length_seconds" mapstructure:"overtime_length_seconds"`
	RegulationQuarters     int `json:"regulation_quarters" mapstructure:"regulation_quarters"`
	FoulLimitPerPlayer     int `json:"foul_limit_per_player" mapstructure:"foul_limit_per_player"`
	TeamFoulBonusThreshold int `json:"team_foul_bonus_threshold" mapstructure:"team_foul_bonus_threshold"`
	// DoubleBonusThreshold of zero disables the double bonus.
	DoubleBonusThreshold int         `json:"double_bonus_threshold" mapstructure:"double_bonus_threshold"`
	TimeoutsPerTeam      int         `json:"timeouts_per_team" mapstructure:"timeouts_per_team"`
	BonusFormat          BonusFormat `json:"bonus_format" mapstructure:"bonus_format"`

	TechnicalCountsTowardBonus         bool `json:"technical_counts_toward_bonus" mapstructure:"technical_counts_toward_bonus"`
	FlagrantCountsTowardBonus          bool `json:"flagrant_counts_toward_bonus" mapstructure:"flagrant_counts_toward_bonus"`
	TechnicalCountsAsPersonal          bool `json:"technical_counts_as_personal" mapstructure:"technical_counts_as_personal"`
	OffensiveFoulsAwardBonusFreeThrows bool `json:"offensive_fouls_award_bonus_free_throws" mapstructure:"offensive_fouls_award_bonus_free_throws"`
	ResetTeamFoulsInOvertime           bool `json:"reset_team_fouls_in_overtime" mapstructure:"reset_team_fouls_in_overtime"`

	// TechnicalEjectionLimit of zero disables technical-foul ejections.
	TechnicalEjectionLimit int `json:"technical_ejection_limit" mapstructure:"technical_ejection_limit"`
}

// DefaultSettings returns the default ruleset: four 12 minute quarters, five
// fouls per player, bonus from the fifth team foul, two shots in the bonus.
func DefaultSettings() Settings {
	return Settings{
		QuarterLengthSeconds:               12 * 60,
		OvertimeLengthSeconds:              5 * 60,
		RegulationQuarters:                 4,
		FoulLimitPerPlayer:                 5,
		TeamFoulBonusThreshold:             5,
		DoubleBonusThreshold:               10,
		TimeoutsPerTeam:                    5,
		BonusFormat:                        BonusTwoShots,
		OffensiveFoulsAwardBonusFreeThrows: true,
		ResetTeamFoulsInOvertime:           true,
		TechnicalEjectionLimit:             2,
	}
}

// Validate checks that the settings describe a playable game.
func (s Settings) Validate() error {
	switch {
	case s.QuarterLengthSeconds <= 0:
		return fmt.Errorf("%w: quarter length must be positive, got %d", ErrInvalidSettings, s.QuarterLengthSeconds)
	case s.OvertimeLengthSeconds <= 0:
		return fmt.Errorf("%w: overtime length must be positive, got %d", ErrInvalidSettings, s.OvertimeLengthSeconds)
	case s.RegulationQuarters <= 0:
		return fmt.Errorf("%w: regulation quarters must be positive, got %d", ErrInvalidSettings, s.RegulationQuarters)
	case s.FoulLimitPerPlayer <= 0:
		return fmt.Errorf("%w: foul limit must be positive, got %d", ErrInvalidSettings, s.FoulLimitPerPlayer)
	case s.TeamFoulBonusThreshold <= 0:
		return fmt.Errorf("%w: bonus threshold must be positive, got %d", ErrInvalidSettings, s.TeamFoulBonusThreshold)
	case s.DoubleBonusThreshold < 0:
		return fmt.Errorf("%w: double bonus threshold must not be negative, got %d", ErrInvalidSettings, s.DoubleBonusThreshold)
	case s.DoubleBonusThreshold > 0 && s.DoubleBonusThreshold < s.TeamFoulBonusThreshold:
		return fmt.Errorf("%w: double bonus threshold %d below bonus threshold %d",
			ErrInvalidSettings, s.DoubleBonusThreshold, s.TeamFoulBonusThreshold)
	case s.TimeoutsPerTeam < 0:
		return fmt.Errorf("%w: timeouts per team must not be negative, got %d", ErrInvalidSettings, s.TimeoutsPerTeam)
	case s.TechnicalEjectionLimit < 0:
		return fmt.Errorf("%w: technical ejection limit must not be negative, got %d", ErrInvalidSettings, s.TechnicalEjectionLimit)
	}
	switch s.BonusFormat {
	case BonusTwoShots, BonusOneAndOne:
	default:
		return fmt.Errorf("%w: unknown bonus format %q", ErrInvalidSettings, s.BonusFormat)
	}
	return nil
}

// IsOvertime reports whether quarter q is an overtime period.
func (s Settings) IsOvertime(q int) bool {
	return q > s.RegulationQuarters
}

// PeriodLength returns the clock length in seconds for quarter q.
func (s Settings) PeriodLength(q int) int {
	if s.IsOvertime(q) {
		return s.OvertimeLengthSeconds
	}
	return s.QuarterLengthSeconds
}

// ResetsTeamFouls reports whether entering quarter q resets the per-period
// team foul count.
func (s Settings) ResetsTeamFouls(q int) bool {
	if !s.IsOvertime(q) {
		return true
	}
	return s.ResetTeamFoulsInOvertime
}

// InBonus reports whether teamFouls reaches the bonus threshold.
func (s Settings) InBonus(teamFouls int) bool {
	return teamFouls >= s.TeamFoulBonusThreshold
}

// InDoubleBonus reports whether teamFouls reaches the double bonus threshold.
func (s Settings) InDoubleBonus(teamFouls int) bool {
	return s.DoubleBonusThreshold > 0 && teamFouls >= s.DoubleBonusThreshold
}

// FouledOut reports whether a player with the given personal fouls has
// reached the limit.
func (s Settings) FouledOut(fouls int) bool {
	return fouls >= s.FoulLimitPerPlayer
}

// Ejected reports whether a player's technical and flagrant 2 counts eject them.
func (s Settings) Ejected(technicals, flagrant2 int) bool {
	if flagrant2 > 0 {
		return true
	}
	return s.TechnicalEjectionLimit > 0 && technicals >= s.TechnicalEjectionLimit
}
