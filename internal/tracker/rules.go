package tracker

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ScoreMover assigns the mover's score: mean object SNR over its relative
// scatter, divided by the middle-object residual. Dim, inconsistent or
// off-line movers all score low.
//
// The scatter uses Bessel-corrected variance for the three samples
// (squared deviations over 2) square-rooted as-is.
func (m *Mover) ScoreMover() {
	snr := []float64{
		float64(m.Objects[0].SNR),
		float64(m.Objects[1].SNR),
		float64(m.Objects[2].SNR),
	}
	mean := stat.Mean(snr, nil)

	var sdev float64
	for _, v := range snr {
		sdev += (v - mean) * (v - mean)
	}
	sdev = math.Sqrt(sdev / 2)

	rdev := sdev / mean
	m.Score = float32(mean / rdev / float64(m.ErrMid))
}
