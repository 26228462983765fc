package needle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAngleToPosition(t *testing.T) {
	tests := []struct {
		angle float64
		want  float64
	}{
		{0, 2.5},
		{90, 5},
		{180, 7.5},
		{270, 0},
		{306, 1},
		{359.9, 2.5 - 0.1/36},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, AngleToPosition(tt.angle), 1e-9, "angle %.1f", tt.angle)
	}
}

func TestAngleToPositionRangeAndPeriod(t *testing.T) {
	for i := 0; i < 3600; i++ {
		a := float64(i) / 10
		pos := AngleToPosition(a)
		assert.GreaterOrEqual(t, pos, 0.0)
		assert.Less(t, pos, 10.0)

		wrapped := AngleToPosition(a + 360)
		d := math.Abs(pos - wrapped)
		assert.Less(t, math.Min(d, 10-d), 1e-9, "angle %.1f", a)
	}
}

func TestAngleToPositionNegative(t *testing.T) {
	assert.InDelta(t, AngleToPosition(-90), AngleToPosition(270), 1e-9)
}
