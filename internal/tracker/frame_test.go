package tracker

import (
	"math"
	"math/rand"
	"testing"

	"asterhunt/internal/astro"
)

func TestHistogramAndStretchBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	f := synthFrame(80, 80, rng, 2460000.0, blob{x: 40, y: 40, amp: 900, sigma: 2})
	p := testParams()

	f.ComputeHistogram(p)
	if f.Background < 950 || f.Background > 1050 {
		t.Errorf("background %f far from planted 1000", f.Background)
	}
	if f.Sigma <= 0 || f.Sigma > 30 {
		t.Errorf("sigma %f implausible for noise 10", f.Sigma)
	}

	f.Stretch()
	for j := 0; j < f.Height; j++ {
		for i := 0; i < f.Width; i++ {
			if v := f.Pixels[i][j]; v < 0 || v > 1 {
				t.Fatalf("pixel (%d,%d) = %f outside [0,1] after stretch", i, j, v)
			}
		}
	}
	if f.Black != 0 || f.White != 1 {
		t.Errorf("stretch must reset levels, got black=%f white=%f", f.Black, f.White)
	}
	if f.Background < 0 || f.Background > 1 {
		t.Errorf("stretched background %f outside [0,1]", f.Background)
	}
}

func TestBlurPreservesFlatField(t *testing.T) {
	f := NewFrame(16, 16)
	for j := 0; j < 16; j++ {
		for i := 0; i < 16; i++ {
			f.Pixels[i][j] = 0.5
		}
	}
	f.Blur()
	for j := 1; j < 15; j++ {
		for i := 1; i < 15; i++ {
			if math.Abs(float64(f.Pixels[i][j])-0.5) > 1e-4 {
				t.Fatalf("blur moved flat pixel (%d,%d) to %f", i, j, f.Pixels[i][j])
			}
		}
	}
	// Border rows stay untouched.
	if f.Pixels[0][0] != 0.5 {
		t.Error("border pixel modified")
	}
}

func TestDeLineFlattensColumns(t *testing.T) {
	f := NewFrame(8, 64)
	for j := 0; j < 64; j++ {
		for i := 0; i < 8; i++ {
			f.Pixels[i][j] = 100
		}
		f.Pixels[3][j] = 150 // one bright column
	}
	f.Background = 100

	f.DeLine()
	for j := 0; j < 64; j++ {
		if math.Abs(float64(f.Pixels[3][j])-100) > 1e-3 {
			t.Fatalf("column 3 not normalized: %f", f.Pixels[3][j])
		}
		if math.Abs(float64(f.Pixels[1][j])-100) > 1e-3 {
			t.Fatalf("plain column disturbed: %f", f.Pixels[1][j])
		}
	}
}

func TestSetStaticOffsetAlignsToReference(t *testing.T) {
	f := NewFrame(4, 4)
	scale := 1.0 / 3600 * math.Pi / 180 // 1 arcsec/px
	f.ScaleRA = scale
	f.ScaleDec = scale
	f.Ref = astro.SphCoord{RA: 10 * scale, Dec: -6 * scale}

	f.SetStaticOffset(astro.SphCoord{RA: 0, Dec: 0})
	if math.Abs(float64(f.Offset.X)-10) > 1e-3 || math.Abs(float64(f.Offset.Y)+6) > 1e-3 {
		t.Errorf("offset = %+v, want (10,-6)", f.Offset)
	}

	// A 90-degree field rotation swaps the axes.
	f.Rotation = math.Pi / 2
	f.SetStaticOffset(astro.SphCoord{RA: 0, Dec: 0})
	if math.Abs(float64(f.Offset.X)-6) > 1e-3 || math.Abs(float64(f.Offset.Y)-10) > 1e-3 {
		t.Errorf("rotated offset = %+v, want (6,10)", f.Offset)
	}
}

func TestSetTrackedOffset(t *testing.T) {
	f := NewFrame(4, 4)
	f.Obs = 2460000.0 + 10.0/1440 // ten minutes past the group midpoint

	var e EdgeExtent
	// 2"/min along PA 90 degrees at 1"/px: 20 px due +x.
	f.SetTrackedOffset(2460000.0, 2.0, math.Pi/2, 1.0, &e)
	if f.TrackOffset.X != 20 || f.TrackOffset.Y != 0 {
		t.Errorf("track offset = %+v, want (20,0)", f.TrackOffset)
	}
	if e.MaxX != 20 || e.MinX != 0 {
		t.Errorf("edge extent %+v not accumulated", e)
	}
}

func TestSubtractMasksAndClamps(t *testing.T) {
	f := NewFrame(8, 8)
	for j := 0; j < 8; j++ {
		for i := 0; i < 8; i++ {
			f.Pixels[i][j] = 0.5
		}
	}
	f.Background = 0.3

	super := NewStackedImage(8, 8)
	super.Background = 0.3
	super.Threshold = 0.8
	for j := 0; j < 8; j++ {
		for i := 0; i < 8; i++ {
			super.Pixels[i][j] = 0.3
		}
	}
	super.Pixels[4][4] = 0.9 // star core, over threshold
	super.Pixels[5][4] = 0.5 // halo

	f.Subtract(super)
	if f.Pixels[4][4] != f.Background {
		t.Errorf("star core = %f, want background %f", f.Pixels[4][4], f.Background)
	}
	if math.Abs(float64(f.Pixels[5][4])-0.3) > 1e-6 {
		t.Errorf("halo pixel = %f, want 0.3", f.Pixels[5][4])
	}
	if math.Abs(float64(f.Pixels[2][2])-0.5) > 1e-6 {
		t.Errorf("plain pixel = %f, want 0.5", f.Pixels[2][2])
	}
	if f.Mean <= 0 {
		t.Error("post-subtraction mean not maintained")
	}
}

func TestDivideClamps(t *testing.T) {
	f := NewFrame(4, 4)
	flat := NewStackedImage(4, 4)
	f.Pixels[1][1] = 0.8
	flat.Pixels[1][1] = 0.5
	f.Pixels[2][2] = 0.9
	flat.Pixels[2][2] = 0 // guarded: no division

	f.Divide(flat)
	if f.Pixels[1][1] != 1 {
		t.Errorf("divided pixel should clamp to 1, got %f", f.Pixels[1][1])
	}
	if f.Pixels[2][2] != 0.9 {
		t.Errorf("zero flat must leave pixel, got %f", f.Pixels[2][2])
	}
}
