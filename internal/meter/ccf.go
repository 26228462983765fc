package meter

import (
	"math"

	"meter-reader/internal/dial"
)

// Normalize brings the four decade dial positions, indexed left to right as
// on the panel, to a common clockwise sense and returns them least
// significant first. Every other dial is geared in reverse and is mirrored.
func Normalize(raw [dial.DecadeDials]float64) []float64 {
	out := make([]float64, 0, dial.DecadeDials)
	for i := dial.DecadeDials - 1; i >= 0; i-- {
		v := raw[i]
		if i%2 == 0 {
			v = 10 - v
		}
		out = append(out, v)
	}
	return out
}

// ComposeNormalized builds the register reading in ccf from normalized
// decade positions, least significant first.
//
// The least significant dial is taken as is, to one decimal. A more
// significant dial's needle alone cannot tell whether its digit has already
// advanced when it sits near a boundary, so the next less significant
// dial's phase is used as the reference: past its midpoint the digit is
// read low, before it the digit is read high.
func ComposeNormalized(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	reading := math.Round(values[0]*10) / 10
	place := 10.0
	prev := values[0]
	for _, v := range values[1:] {
		digit := math.Mod(math.Floor(v-(prev/10-0.5)), 10)
		if digit < 0 {
			digit += 10
		}
		reading += digit * place
		place *= 10
		prev = v
	}
	return reading
}

// Compose builds the register reading in ccf from raw decade dial positions
// indexed left to right.
func Compose(raw [dial.DecadeDials]float64) float64 {
	return ComposeNormalized(Normalize(raw))
}
