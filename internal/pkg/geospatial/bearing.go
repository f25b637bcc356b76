package geospatial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidBearingFormat is returned when a bearing is not written as D, D.MM or D.MMSS.
	ErrInvalidBearingFormat = errors.New("invalid bearing format")
	// ErrInvalidBearingRange is returned when a bearing is outside [0,360) or a distance is not positive.
	ErrInvalidBearingRange = errors.New("bearing or distance out of range")
	// ErrInvalidArc is returned for non-positive radius/arc length or an arc that wraps the circle.
	ErrInvalidArc = errors.New("invalid arc parameters")
)

// Angle is a survey bearing in decimal degrees, measured clockwise from grid north.
type Angle float64

// ParseBearing decodes a bearing packed as D.MMSS (degrees, minutes, seconds).
// The fractional part must be exactly two (MM) or four (MMSS) digits.
func ParseBearing(s string) (Angle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty bearing", ErrInvalidBearingFormat)
	}

	degPart, frac, hasFrac := strings.Cut(s, ".")
	negative := strings.HasPrefix(degPart, "-")
	degPart = strings.TrimPrefix(degPart, "-")
	if degPart == "" || !allDigits(degPart) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBearingFormat, s)
	}

	var minutes, seconds int
	if hasFrac {
		if (len(frac) != 2 && len(frac) != 4) || !allDigits(frac) {
			return 0, fmt.Errorf("%w: %q must be d.mm or d.mmss", ErrInvalidBearingFormat, s)
		}
		minutes, _ = strconv.Atoi(frac[:2])
		if len(frac) == 4 {
			seconds, _ = strconv.Atoi(frac[2:])
		}
		if minutes >= 60 || seconds >= 60 {
			return 0, fmt.Errorf("%w: %q has minutes or seconds >= 60", ErrInvalidBearingFormat, s)
		}
	}

	deg, err := strconv.Atoi(degPart)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBearingFormat, s)
	}

	value := float64(deg) + float64(minutes)/60 + float64(seconds)/3600
	if negative && value != 0 {
		value = -value
	}
	if value < 0 || value >= 360 {
		return 0, fmt.Errorf("%w: bearing %s", ErrInvalidBearingRange, s)
	}
	return Angle(value), nil
}

// DMS formats the angle back into the packed D.MMSS form, rounded to the nearest second.
func (a Angle) DMS() string {
	total := int(math.Round(float64(Normalize(float64(a))) * 3600))
	total %= 360 * 3600
	deg := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%d.%02d%02d", deg, minutes, seconds)
}

// Reverse returns the back bearing.
func (a Angle) Reverse() Angle {
	return Normalize(float64(a) + 180)
}

// Radians converts the bearing for use with math.Sin/math.Cos.
func (a Angle) Radians() float64 {
	return toRad(float64(a))
}

// Valid reports whether the bearing lies in [0,360).
func (a Angle) Valid() bool {
	return a >= 0 && a < 360
}

// Normalize wraps any angle in degrees into [0,360).
func Normalize(deg float64) Angle {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return Angle(d)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
