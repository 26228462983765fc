package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	got := Normalize([4]float64{1, 2, 3, 4})
	assert.InDeltaSlice(t, []float64{4, 7, 2, 9}, got, 1e-12)
}

func TestComposeNormalized(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"steady digits", []float64{7.0, 3.4, 3.4, 3.4}, 3337},
		{"rounds least significant", []float64{7.04}, 7.0},
		{"just rolled over", []float64{0.5, 3.95}, 40.5},
		{"about to roll over", []float64{9.5, 3.95}, 39.5},
		{"needle ahead, not yet rolled", []float64{9.5, 4.05}, 39.5},
		{"needle ahead, rolled", []float64{0.5, 4.05}, 40.5},
		{"midpoint takes needle digit", []float64{5.0, 3.4}, 35},
		{"digit wraps below zero", []float64{9.8, 0.1}, 99.8},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComposeNormalized(tt.values), 1e-9)
		})
	}
}

func TestCompose(t *testing.T) {
	// Raw panel positions left to right; dials 0 and 2 turn counter-clockwise
	assert.InDelta(t, 123.4, Compose([4]float64{9.9, 1.2, 7.7, 3.4}), 1e-9)
}
