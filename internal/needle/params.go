package needle

// DefaultParams returns needle extraction parameters tuned for the AC-250
// dial faces under the recorded camera exposure.
func DefaultParams() Params {
	return Params{
		// The hub and the printed rim both carry dark pixels that would
		// pull the fit away from the needle tip.
		InnerRatio: 0.69,
		OuterRatio: 0.95,

		// Pixels darker than this inside the annulus count as needle.
		Threshold: 135,

		// 1.8 degrees per slice.
		Slices: 200,
	}
}

// Params holds the tuning knobs of the needle extractor.
type Params struct {
	InnerRatio float64 `json:"inner_ratio"` // Annulus inner edge as a fraction of dial radius
	OuterRatio float64 `json:"outer_ratio"` // Annulus outer edge as a fraction of dial radius
	Threshold  float64 `json:"threshold"`   // Gray level below which a pixel is needle (0-255)
	Slices     int     `json:"slices"`      // Number of candidate angles over 360 degrees
}

// SliceWidth returns the angular resolution in degrees.
func (p Params) SliceWidth() float64 {
	return 360.0 / float64(p.Slices)
}
