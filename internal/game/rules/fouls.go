package rules

import "fmt"

// FoulType classifies a foul.
type FoulType string

const (
	FoulPersonal  FoulType = "personal"
	FoulShooting  FoulType = "shooting"
	FoulOffensive FoulType = "offensive"
	FoulTechnical FoulType = "technical"
	FoulFlagrant1 FoulType = "flagrant1"
	FoulFlagrant2 FoulType = "flagrant2"
)

// Valid reports whether t is a known foul type.
func (t FoulType) Valid() bool {
	switch t {
	case FoulPersonal, FoulShooting, FoulOffensive, FoulTechnical, FoulFlagrant1, FoulFlagrant2:
		return true
	}
	return false
}

// IsTechnical reports whether t is a technical foul.
func (t FoulType) IsTechnical() bool { return t == FoulTechnical }

// IsFlagrant reports whether t is a flagrant foul of either degree.
func (t FoulType) IsFlagrant() bool { return t == FoulFlagrant1 || t == FoulFlagrant2 }

// ShotType is the point value class of a field goal attempt.
type ShotType string

const (
	ShotTwo   ShotType = "2pt"
	ShotThree ShotType = "3pt"
)

// Points returns the value of a made shot of this type.
func (t ShotType) Points() int {
	if t == ShotThree {
		return 3
	}
	return 2
}

// Valid reports whether t is a known shot type.
func (t ShotType) Valid() bool { return t == ShotTwo || t == ShotThree }

// ShootingContext describes the shot a shooting foul interrupted.
type ShootingContext struct {
	ShotType       ShotType `json:"shot_type"`
	WasAndOne      bool     `json:"was_and_one"`
	FouledPlayerID string   `json:"fouled_player_id,omitempty"`
}

// FoulCounting captures how a foul moves the personal and team counters.
type FoulCounting struct {
	Personal  bool // counts toward the fouling player's foul limit
	TeamFoul  bool // counts toward the team's per-period fouls
	Technical bool
	Flagrant  bool
	Ejection  bool // immediate ejection (flagrant 2)
}

// CountFoul reports which counters a foul of type t increments.
func (s Settings) CountFoul(t FoulType) FoulCounting {
	c := FoulCounting{}
	switch t {
	case FoulPersonal, FoulShooting, FoulOffensive:
		c.Personal = true
		c.TeamFoul = true
	case FoulTechnical:
		c.Technical = true
		c.Personal = s.TechnicalCountsAsPersonal
		c.TeamFoul = s.TechnicalCountsTowardBonus
	case FoulFlagrant1, FoulFlagrant2:
		c.Flagrant = true
		c.Personal = true
		c.TeamFoul = s.FlagrantCountsTowardBonus
		c.Ejection = t == FoulFlagrant2
	}
	return c
}

// Entitlement is the free throw award that follows a foul.
type Entitlement struct {
	FreeThrows int  `json:"free_throws"`
	OneAndOne  bool `json:"one_and_one"`
	// Live reports whether a missed final attempt is a live ball.
	Live bool `json:"live"`
	// RetainPossession is set for flagrant fouls.
	RetainPossession bool `json:"retain_possession"`
}

// None reports whether no free throws were awarded.
func (e Entitlement) None() bool { return e.FreeThrows == 0 }

// FreeThrowEntitlement determines the free throws awarded for a foul.
// foulingTeamFouls is the fouling team's per-period count after this foul
// has been applied.
func (s Settings) FreeThrowEntitlement(t FoulType, shooting *ShootingContext, foulingTeamFouls int) (Entitlement, error) {
	switch t {
	case FoulShooting:
		if shooting == nil {
			return Entitlement{}, fmt.Errorf("%w: shooting foul requires shot context", ErrInvalidInput)
		}
		if !shooting.ShotType.Valid() {
			return Entitlement{}, fmt.Errorf("%w: unknown shot type %q", ErrInvalidInput, shooting.ShotType)
		}
		if shooting.WasAndOne {
			return Entitlement{FreeThrows: 1, Live: true}, nil
		}
		if shooting.ShotType == ShotThree {
			return Entitlement{FreeThrows: 3, Live: true}, nil
		}
		return Entitlement{FreeThrows: 2, Live: true}, nil
	case FoulPersonal, FoulOffensive:
		if t == FoulOffensive && !s.OffensiveFoulsAwardBonusFreeThrows {
			return Entitlement{}, nil
		}
		if !s.InBonus(foulingTeamFouls) {
			return Entitlement{}, nil
		}
		if s.BonusFormat == BonusOneAndOne && !s.InDoubleBonus(foulingTeamFouls) {
			return Entitlement{FreeThrows: 2, OneAndOne: true, Live: true}, nil
		}
		return Entitlement{FreeThrows: 2, Live: true}, nil
	case FoulTechnical:
		return Entitlement{FreeThrows: 1}, nil
	case FoulFlagrant1, FoulFlagrant2:
		return Entitlement{FreeThrows: 2, RetainPossession: true}, nil
	}
	return Entitlement{}, fmt.Errorf("%w: unknown foul type %q", ErrInvalidInput, t)
}
