package domain

import "fmt"

// ToleranceBand grades a misclosure for operator feedback. It never decides acceptance.
type ToleranceBand int

const (
	BandExcellent ToleranceBand = iota
	BandGood
	BandFair
	BandPoor
	BandFail
)

var bandNames = [...]string{"excellent", "good", "fair", "poor", "fail"}

// indicator colours shown next to a detected close
var bandColours = [...]string{"#0f961f", "#3c67de", "#EDF904", "#F99605", "#f90505"}

// ClassifyMisclosure maps a linear misclosure in millimetres onto a band.
// Upper bounds are exclusive: 5mm is Good, not Excellent.
func ClassifyMisclosure(mm float64) ToleranceBand {
	switch {
	case mm < 5:
		return BandExcellent
	case mm < 10:
		return BandGood
	case mm < 15:
		return BandFair
	case mm < 20:
		return BandPoor
	default:
		return BandFail
	}
}

func (b ToleranceBand) String() string {
	if b < BandExcellent || b > BandFail {
		return fmt.Sprintf("band(%d)", int(b))
	}
	return bandNames[b]
}

// Colour returns the hex indicator colour for the band.
func (b ToleranceBand) Colour() string {
	if b < BandExcellent || b > BandFail {
		return bandColours[BandFail]
	}
	return bandColours[b]
}

// MarshalText encodes the band by name.
func (b ToleranceBand) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText decodes a band name.
func (b *ToleranceBand) UnmarshalText(text []byte) error {
	for i, n := range bandNames {
		if n == string(text) {
			*b = ToleranceBand(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tolerance band %q", text)
}
