package geospatial

import (
	"fmt"
	"math"
	"strings"
)

// Rotation is the turning direction of a curved leg.
type Rotation string

const (
	Clockwise        Rotation = "CW"
	CounterClockwise Rotation = "CCW"
)

// ParseRotation accepts CW or CCW in any case.
func ParseRotation(s string) (Rotation, error) {
	switch Rotation(strings.ToUpper(strings.TrimSpace(s))) {
	case Clockwise:
		return Clockwise, nil
	case CounterClockwise:
		return CounterClockwise, nil
	}
	return "", fmt.Errorf("%w: rotation %q must be CW or CCW", ErrInvalidArc, s)
}

// PointFromBearingDistance computes the coordinates reached from (e, n) along a survey bearing.
// Survey bearings are north-referenced and clockwise-positive, so easting uses sin and northing cos.
func PointFromBearingDistance(e, n float64, bearing Angle, distance float64) (float64, float64, error) {
	if !bearing.Valid() {
		return 0, 0, fmt.Errorf("%w: bearing %.6f", ErrInvalidBearingRange, float64(bearing))
	}
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, 0, fmt.Errorf("%w: distance %.4f", ErrInvalidBearingRange, distance)
	}
	rad := bearing.Radians()
	return e + distance*math.Sin(rad), n + distance*math.Cos(rad), nil
}

// ArcChord is the straight-line equivalent of a circular arc.
type ArcChord struct {
	Bearing  Angle   `json:"bearing"`
	Length   float64 `json:"length"`
	Subtends float64 `json:"subtends"` // central angle in degrees
}

// Chord derives the chord of an arc that leaves along tangentBearing.
// A clockwise arc turns right, so its chord lies half the central angle clockwise of the tangent.
func Chord(tangentBearing Angle, radius float64, rotation Rotation, arcLength float64) (ArcChord, error) {
	if !tangentBearing.Valid() {
		return ArcChord{}, fmt.Errorf("%w: bearing %.6f", ErrInvalidBearingRange, float64(tangentBearing))
	}
	if radius <= 0 || arcLength <= 0 {
		return ArcChord{}, fmt.Errorf("%w: radius %.4f, arc length %.4f", ErrInvalidArc, radius, arcLength)
	}
	theta := arcLength / radius
	if theta >= 2*math.Pi {
		return ArcChord{}, fmt.Errorf("%w: arc length %.4f wraps a circle of radius %.4f", ErrInvalidArc, arcLength, radius)
	}

	half := toDeg(theta / 2)
	var bearing Angle
	switch rotation {
	case Clockwise:
		bearing = Normalize(float64(tangentBearing) + half)
	case CounterClockwise:
		bearing = Normalize(float64(tangentBearing) - half)
	default:
		return ArcChord{}, fmt.Errorf("%w: rotation %q", ErrInvalidArc, rotation)
	}

	return ArcChord{
		Bearing:  bearing,
		Length:   2 * radius * math.Sin(theta/2),
		Subtends: toDeg(theta),
	}, nil
}

// PointFromArc computes the end of a circular arc by delegating to the straight-line formula along its chord.
func PointFromArc(e, n float64, tangentBearing Angle, radius float64, rotation Rotation, arcLength float64) (float64, float64, ArcChord, error) {
	chord, err := Chord(tangentBearing, radius, rotation, arcLength)
	if err != nil {
		return 0, 0, ArcChord{}, err
	}
	ee, nn, err := PointFromBearingDistance(e, n, chord.Bearing, chord.Length)
	if err != nil {
		return 0, 0, ArcChord{}, err
	}
	return ee, nn, chord, nil
}

// ArcFromChord recovers the tangent bearing and arc length of an arc of known radius
// that spans the given chord. It is the inverse of Chord; major selects the arc longer than a semicircle.
func ArcFromChord(chordBearing Angle, chordLength, radius float64, rotation Rotation, major bool) (Angle, float64, error) {
	if radius <= 0 || chordLength <= 0 {
		return 0, 0, fmt.Errorf("%w: radius %.4f, chord %.4f", ErrInvalidArc, radius, chordLength)
	}
	if chordLength > 2*radius {
		return 0, 0, fmt.Errorf("%w: chord %.4f exceeds diameter %.4f", ErrInvalidArc, chordLength, 2*radius)
	}
	theta := 2 * math.Asin(chordLength/(2*radius))
	if major {
		theta = 2*math.Pi - theta
	}
	half := toDeg(theta / 2)

	var tangent Angle
	switch rotation {
	case Clockwise:
		tangent = Normalize(float64(chordBearing) - half)
	case CounterClockwise:
		tangent = Normalize(float64(chordBearing) + half)
	default:
		return 0, 0, fmt.Errorf("%w: rotation %q", ErrInvalidArc, rotation)
	}
	return tangent, radius * theta, nil
}

// Inverse returns the bearing and horizontal distance from (e1, n1) to (e2, n2).
// Coincident points give bearing 0 and distance 0.
func Inverse(e1, n1, e2, n2 float64) (Angle, float64) {
	dE := e2 - e1
	dN := n2 - n1
	dist := math.Hypot(dE, dN)
	if dist == 0 {
		return 0, 0
	}
	return Normalize(toDeg(math.Atan2(dE, dN))), dist
}
