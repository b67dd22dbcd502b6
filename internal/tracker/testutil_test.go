package tracker

import (
	"io"
	"log/slog"
	"math"
	"math/rand"

	"asterhunt/internal/astro"
)

// testParams are pipeline settings sized for small synthetic fields.
func testParams() Params {
	return Params{
		MotionMin:  0.25,
		MotionMax:  3.0,
		PAMinDeg:   0,
		PAMaxDeg:   360,
		TrkErr:     0.5,
		PosErr:     0.5,
		Aperture:   5,
		TCountBase: 3,
		Sigma1:     3.0,
		Sigma2:     3.5,
		BlackFits:  4.5,
		WhiteFits:  7.5,
		BlackHist:  3.0,
		WhiteHist:  9.0,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type blob struct {
	x, y  float64
	amp   float64 // raw ADU amplitude over background
	sigma float64 // PSF sigma, pixels
}

const (
	rawBackground = 1000.0
	rawNoise      = 10.0
	// arcsecPerPixel is the synthetic plate scale.
	arcsecPerPixel = 1.0
)

// synthFrame builds a raw-scale frame: flat background plus Gaussian read
// noise plus any planted blobs. All frames share one WCS reference so
// static offsets are zero.
func synthFrame(w, h int, rng *rand.Rand, jd float64, blobs ...blob) *Frame {
	f := NewFrame(w, h)
	f.Exposure = 60
	f.Obs = jd
	f.Ref = astro.SphCoord{RA: 1.2, Dec: 0.4}
	f.RefPix = Point{w / 2, h / 2}
	scale := arcsecPerPixel / 3600 * math.Pi / 180
	f.ScaleRA = scale
	f.ScaleDec = scale

	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			v := rawBackground + rng.NormFloat64()*rawNoise
			for _, b := range blobs {
				dx := float64(i) - b.x
				dy := float64(j) - b.y
				v += b.amp * math.Exp(-(dx*dx+dy*dy)/(2*b.sigma*b.sigma))
			}
			f.Pixels[i][j] = float32(v)
		}
	}
	return f
}

// synthGroups builds three single-frame groups spaced five minutes apart.
// positions[g] is where the blob sits in group g; nil positions plant
// nothing.
func synthGroups(w, h int, rng *rand.Rand, positions [][2]float64, more ...[][2]float64) [][]*Frame {
	const baseJD = 2460000.0
	groups := make([][]*Frame, 3)
	for g := 0; g < 3; g++ {
		jd := baseJD + float64(g)*5.0/1440
		var blobs []blob
		if positions != nil {
			blobs = append(blobs, blob{x: positions[g][0], y: positions[g][1], amp: 900, sigma: 1.5})
		}
		for _, extra := range more {
			blobs = append(blobs, blob{x: extra[g][0], y: extra[g][1], amp: 900, sigma: 1.5})
		}
		groups[g] = []*Frame{synthFrame(w, h, rng, jd, blobs...)}
	}
	return groups
}
