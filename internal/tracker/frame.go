package tracker

import (
	"math"
	"sort"

	"asterhunt/internal/astro"
)

// 3x3 Gaussian kernel weights: corner, edge, centre.
var gaussKernel = [3]float32{0.062147, 0.124294, 0.254237}

// Frame is a single exposure: its pixel grid plus the WCS metadata and the
// derived levels the pipeline maintains. Pixels are indexed [x][y]; raw
// values are ADU counts roughly 0..65535 until Stretch maps them to [0,1].
type Frame struct {
	Width, Height int
	Pixels        [][]float32

	Exposure float32        // seconds
	Obs      float64        // Julian day of exposure start
	Ref      astro.SphCoord // WCS reference coordinate, radians
	RefPix   Point          // WCS reference pixel
	ScaleRA  float64        // angular scale, radians/pixel in RA (cos-Dec corrected)
	ScaleDec float64        // angular scale, radians/pixel in Dec
	Rotation float64        // field rotation, radians
	Filter   string
	Name     string

	Background float32
	Sigma      float32
	Black      float32
	White      float32
	Mean       float32 // mean pixel value after star subtraction

	// Offset aligns this frame's WCS reference to the run's common
	// reference point. Applied during static stacking.
	Offset PointF
	// TrackOffset additionally tracks the current sweep hypothesis.
	// Applied during tracked stacking.
	TrackOffset Point
}

// NewFrame allocates a frame of the given dimensions.
func NewFrame(w, h int) *Frame {
	px := make([][]float32, w)
	for i := range px {
		px[i] = make([]float32, h)
	}
	return &Frame{Width: w, Height: h, Pixels: px}
}

// ComputeHistogram establishes background, noise sigma and stretch levels
// from a 65536-bin histogram of the raw pixel values.
//
// The histogram is scanned twice: once over the full range for a first
// estimate of the median and the 2-sigma-low point, then again after
// clipping everything more than blackFits sigmas below the median.
func (f *Frame) ComputeHistogram(p Params) {
	hist := make([]int, 65536)
	for j := 0; j < f.Height; j++ {
		for i := 0; i < f.Width; i++ {
			v := int(f.Pixels[i][j])
			if v < 0 {
				v = 0
			} else if v > 65535 {
				v = 65535
			}
			hist[v]++
		}
	}

	pixCount := float64(f.Width*f.Height - hist[0])

	bg, low := scanHist(hist, pixCount)
	sigma := (bg - low) / 2

	// Sigma-clip the low tail and re-estimate.
	clip := int(bg - p.BlackFits*sigma)
	for i := 0; i < clip && i < len(hist); i++ {
		pixCount -= float64(hist[i])
		hist[i] = 0
	}
	bg, low = scanHist(hist, pixCount)
	f.Background = bg
	f.Sigma = (bg - low) / 2

	f.Black = max32(0, f.Background-f.Sigma*p.BlackFits)
	f.White = min32(65535, f.Background+f.Sigma*p.WhiteFits)
}

// scanHist returns the histogram values at the median and at the point
// 4.55% of the way into the lower half (about two sigma below the median
// for a Gaussian noise profile).
func scanHist(hist []int, pixCount float64) (median, low float32) {
	med := pixCount * 0.5
	dev := med * 0.0455
	sum := 0
	for i := 1; i < len(hist); i++ {
		sum += hist[i]
		if med < float64(sum) {
			median = float32(i)
			break
		}
	}
	sum = 0
	for i := 1; i < len(hist); i++ {
		sum += hist[i]
		if dev < float64(sum) {
			low = float32(i)
			break
		}
	}
	return median, low
}

// Stretch remaps [Black, White] linearly to [0,1], saturating outside, and
// restates the stored background in the stretched scale.
func (f *Frame) Stretch() {
	span := f.White - f.Black
	for j := 0; j < f.Height; j++ {
		for i := 0; i < f.Width; i++ {
			pix := f.Pixels[i][j]
			if pix > f.White {
				pix = f.White
			}
			if pix < f.Black {
				pix = f.Black
			}
			f.Pixels[i][j] = (pix - f.Black) / span
		}
	}
	f.Background = (f.Background - f.Black) / span
	f.Black = 0
	f.White = 1
}

// Blur applies a 3x3 Gaussian convolution. Border pixels are unchanged.
func (f *Frame) Blur() {
	out := NewFrame(f.Width, f.Height)
	for j := 1; j < f.Height-1; j++ {
		for i := 1; i < f.Width-1; i++ {
			v := (f.Pixels[i-1][j-1] + f.Pixels[i-1][j+1] + f.Pixels[i+1][j-1] + f.Pixels[i+1][j+1]) * gaussKernel[0]
			v += (f.Pixels[i-1][j] + f.Pixels[i+1][j] + f.Pixels[i][j-1] + f.Pixels[i][j+1]) * gaussKernel[1]
			v += f.Pixels[i][j] * gaussKernel[2]
			out.Pixels[i][j] = v
		}
	}
	for j := 1; j < f.Height-1; j++ {
		for i := 1; i < f.Width-1; i++ {
			f.Pixels[i][j] = out.Pixels[i][j]
		}
	}
}

// DeLine normalizes each column by its median (relative to the frame
// background), suppressing fixed vertical banding. Requires the histogram
// to have been run.
func (f *Frame) DeLine() {
	col := make([]float32, f.Height)
	mid := f.Height / 2
	for i := 0; i < f.Width; i++ {
		for j := 0; j < f.Height; j++ {
			col[j] = f.Pixels[i][j] / f.Background
		}
		sort.Slice(col, func(a, b int) bool { return col[a] < col[b] })
		m := col[mid]
		if m == 0 {
			continue
		}
		for j := 0; j < f.Height; j++ {
			f.Pixels[i][j] /= m
		}
	}
}

// SetStaticOffset computes the frame's (dx,dy) aligning its WCS reference
// to the run's common reference point, rotated by the field rotation.
func (f *Frame) SetStaticOffset(ref astro.SphCoord) {
	cosr := math.Cos(f.Rotation)
	sinr := math.Sin(f.Rotation)
	d := f.Ref.Sub(ref)
	dx := d.RA / f.ScaleRA
	dy := d.Dec / f.ScaleDec
	f.Offset.X = float32(dx*cosr - dy*sinr)
	f.Offset.Y = float32(dx*sinr + dy*cosr)
}

// EdgeExtent accumulates the min/max tracked offsets of a group, defining
// the bands near each image edge not overlapped by every frame.
type EdgeExtent struct {
	MaxX, MinX float32
	MaxY, MinY float32
}

// SetTrackedOffset sets the integer stacking offset for the given track
// hypothesis: a synthetic object moving at motion arcsec/min along pa
// accumulates aligned across the group's frames. groupMid is the group's
// reference Julian day; pa already includes the field rotation.
func (f *Frame) SetTrackedOffset(groupMid float64, motion, pa float64, pixScale float32, e *EdgeExtent) {
	dMin := (f.Obs - groupMid) * 1440
	dist := dMin * motion / float64(pixScale)

	f.TrackOffset.X = int(math.Round(float64(f.Offset.X) + dist*math.Sin(pa)))
	f.TrackOffset.Y = int(math.Round(float64(f.Offset.Y) + dist*math.Cos(pa)))

	e.MaxX = max32(e.MaxX, float32(f.TrackOffset.X))
	e.MinX = min32(e.MinX, float32(f.TrackOffset.X))
	e.MaxY = max32(e.MaxY, float32(f.TrackOffset.Y))
	e.MinY = min32(e.MinY, float32(f.TrackOffset.Y))
}

// Subtract removes fixed stars using the superstack. The superstack is
// shifted into this frame's coordinates by the static offset; pixels over
// the superstack threshold (star cores) are hard-masked to the frame
// background, the rest have the superstack's net signal subtracted.
// The post-subtraction mean is retained for flat-field synthesis.
func (f *Frame) Subtract(super *StackedImage) {
	ox := int(math.Round(float64(f.Offset.X)))
	oy := int(math.Round(float64(f.Offset.Y)))
	var mean float64
	for j := 0; j < f.Height; j++ {
		for i := 0; i < f.Width; i++ {
			x := i - ox
			y := j - oy
			if x <= 0 || x >= f.Width || y <= 0 || y >= f.Height {
				continue
			}
			p := f.Pixels[x][y]
			q := super.Pixels[i][j]
			if q > super.Threshold {
				p = f.Background
			} else {
				p -= q - super.Background
				if p > 1 {
					p = 1
				}
				if p < 0 {
					p = 0
				}
			}
			f.Pixels[x][y] = p
			mean += float64(p)
		}
	}
	f.Mean = float32(mean / float64(f.Width*f.Height))
}

// Divide applies a multiplicative flat field where the flat is positive,
// clamping results to [0,1].
func (f *Frame) Divide(flat *StackedImage) {
	for j := 0; j < f.Height; j++ {
		for i := 0; i < f.Width; i++ {
			p := f.Pixels[i][j]
			if q := flat.Pixels[i][j]; q > 0 {
				p /= q
			}
			if p > 1 {
				p = 1
			}
			if p < 0 {
				p = 0
			}
			f.Pixels[i][j] = p
		}
	}
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
