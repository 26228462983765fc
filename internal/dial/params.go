package dial

// ReferenceHeight is the frame height, in pixels, the default radius band
// and centre spacing are expressed at.
const ReferenceHeight = 375.0

// DefaultParams returns locator parameters tuned for the AC-250 panel at the
// reference height. Call WithFrameHeight before use.
func DefaultParams() LocatorParams {
	return LocatorParams{
		MinRadiusRef: 50,
		MaxRadiusRef: 70,
		MinDistRef:   100,

		HoughDP:     1.5,
		HoughParam1: 100, // Canny high threshold
		HoughParam2: 100, // Accumulator threshold
	}
}

// LocatorParams holds Hough circle parameters for dial location.
type LocatorParams struct {
	// Band and spacing at ReferenceHeight
	MinRadiusRef float64 `json:"min_radius"`
	MaxRadiusRef float64 `json:"max_radius"`
	MinDistRef   float64 `json:"min_dist"`

	HoughDP     float64 `json:"hough_dp"`
	HoughParam1 float64 `json:"hough_param1"`
	HoughParam2 float64 `json:"hough_param2"`

	// Pixel values for the actual frame, set by WithFrameHeight
	MinRadiusPixels int     `json:"-"`
	MaxRadiusPixels int     `json:"-"`
	MinDistPixels   float64 `json:"-"`
}

// WithFrameHeight returns a copy of p with pixel sizes scaled linearly from
// ReferenceHeight to height.
func (p LocatorParams) WithFrameHeight(height int) LocatorParams {
	scale := float64(height) / ReferenceHeight
	p.MinRadiusPixels = int(scale * p.MinRadiusRef)
	p.MaxRadiusPixels = int(scale * p.MaxRadiusRef)
	p.MinDistPixels = float64(int(scale * p.MinDistRef))
	return p
}
