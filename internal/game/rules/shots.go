package rules

import (
	"fmt"
	"math"
)

// Half-court geometry in feet, origin at the left baseline corner.
const (
	CourtWidth        = 50.0
	HalfCourtLength   = 47.0
	BasketX           = 25.0
	BasketY           = 5.25
	ThreePointRadius  = 23.75
	CornerThreeDepth  = 14.0
	CornerThreeOffset = 22.0
	RestrictedRadius  = 4.0
	PaintHalfWidth    = 8.0
	PaintDepth        = 19.0
)

// Zone names a region of the half court.
type Zone string

const (
	ZoneRestrictedArea  Zone = "restricted_area"
	ZonePaint           Zone = "paint"
	ZoneMidRange        Zone = "mid_range"
	ZoneLeftCorner3     Zone = "left_corner_three"
	ZoneRightCorner3    Zone = "right_corner_three"
	ZoneAboveBreakThree Zone = "above_break_three"
	ZoneUnknown         Zone = "unknown"
)

// Location is a tap on the half-court diagram, in feet.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate checks that the location lies on the half court.
func (l Location) Validate() error {
	if l.X < 0 || l.X > CourtWidth || l.Y < 0 || l.Y > HalfCourtLength {
		return fmt.Errorf("%w: location (%.2f, %.2f) is off the court", ErrInvalidInput, l.X, l.Y)
	}
	return nil
}

// DistanceToBasket returns the straight-line distance to the rim in feet.
func (l Location) DistanceToBasket() float64 {
	return math.Hypot(l.X-BasketX, l.Y-BasketY)
}

// Classify derives the zone and shot type of a location.
func Classify(l Location) (Zone, ShotType) {
	dx := l.X - BasketX
	if l.Y <= CornerThreeDepth && math.Abs(dx) >= CornerThreeOffset {
		if dx < 0 {
			return ZoneLeftCorner3, ShotThree
		}
		return ZoneRightCorner3, ShotThree
	}
	d := l.DistanceToBasket()
	switch {
	case d >= ThreePointRadius:
		return ZoneAboveBreakThree, ShotThree
	case d <= RestrictedRadius:
		return ZoneRestrictedArea, ShotTwo
	case math.Abs(dx) <= PaintHalfWidth && l.Y <= PaintDepth:
		return ZonePaint, ShotTwo
	default:
		return ZoneMidRange, ShotTwo
	}
}
