package tracker

import "asterhunt/internal/astro"

// Params are the operator-tunable settings of a hunt. They are fixed for
// the lifetime of a run.
type Params struct {
	// Sweep bounds.
	MotionMin float32 // arcsec/min
	MotionMax float32 // arcsec/min
	PAMinDeg  float32 // degrees
	PAMaxDeg  float32 // degrees

	// Tolerances.
	TrkErr     float32 // permitted stacking error, pixels
	PosErr     float32 // permitted position measurement error, pixels
	Aperture   int     // detection aperture radius, pixels
	TCountBase int     // base count of over-threshold pixels for a detection

	// Detection thresholds, in sigmas above background.
	Sigma1 float32 // object detection
	Sigma2 float32 // star mask

	// Stretch levels, in sigmas either side of background.
	BlackFits float32
	WhiteFits float32
	BlackHist float32
	WhiteHist float32

	// Frame preparation options.
	Blur    bool
	DeLine  bool
	Flatten bool
}

// Shared is the cross-group reference data established once per run, after
// loading and before the pipeline starts. It is read-only while the
// pipeline runs.
type Shared struct {
	Width, Height int
	Exposure      float32 // seconds, from the first frame
	Rotation      float64 // field rotation, radians
	PixScale      float32 // arcsec per pixel
	RefPoint      astro.SphCoord
	DTime         [2]float32 // minutes between consecutive group mid-times
	MaxElapse     float32    // longest group elapse, minutes
	FrameCount    int
}
