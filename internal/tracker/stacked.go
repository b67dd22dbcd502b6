package tracker

// StackedImage holds the result of a stacking operation, with the
// histogram-derived levels used for detection and display.
type StackedImage struct {
	Width, Height int
	Pixels        [][]float32

	Background float32
	Sigma      float32
	Threshold  float32
	Black      float32
	White      float32
	Mean       float32

	// Dirty is set whenever the pixels are rewritten; display collaborators
	// clear it once they have re-rendered.
	Dirty bool
}

// NewStackedImage allocates a stack matching the run's frame dimensions.
func NewStackedImage(w, h int) *StackedImage {
	px := make([][]float32, w)
	for i := range px {
		px[i] = make([]float32, h)
	}
	return &StackedImage{Width: w, Height: h, Pixels: px}
}

// CopyFrom copies pixels and levels from another stack into this one.
func (s *StackedImage) CopyFrom(src *StackedImage) {
	s.Background = src.Background
	s.Sigma = src.Sigma
	s.Threshold = src.Threshold
	s.Black = src.Black
	s.White = src.White
	s.Mean = src.Mean
	for i := 0; i < s.Width; i++ {
		copy(s.Pixels[i], src.Pixels[i])
	}
}

const histBins = 1024

// ComputeHistogram derives background, sigma, stretch levels and the
// detection threshold from a 1024-bin histogram. Pixels exactly 0 (black)
// or exactly 1 (saturated) are excluded from the population.
func (s *StackedImage) ComputeHistogram(p Params) {
	hist := make([]int, histBins+1)
	for j := 0; j < s.Height; j++ {
		for i := 0; i < s.Width; i++ {
			v := int(histBins * s.Pixels[i][j])
			if v < 0 {
				v = 0
			} else if v > histBins {
				v = histBins
			}
			hist[v]++
		}
	}

	pixCount := float64(s.Width*s.Height - hist[0] - hist[histBins])
	med := pixCount * 0.5
	dev := pixCount * 0.8413 // one sigma above the median

	var bg, hi float32
	sum := 0
	for i := 1; i < histBins; i++ {
		sum += hist[i]
		if med < float64(sum) {
			bg = float32(i)
			break
		}
	}
	sum = 0
	for i := 1; i < histBins; i++ {
		sum += hist[i]
		if dev < float64(sum) {
			hi = float32(i)
			break
		}
	}

	s.Sigma = (hi - bg) / histBins
	s.Background = bg / histBins
	s.Black = max32(0, s.Background-s.Sigma*p.BlackHist)
	s.White = min32(1, s.Background+s.Sigma*p.WhiteHist)
	s.Threshold = min32(1, s.Background+s.Sigma*p.Sigma1)
}
