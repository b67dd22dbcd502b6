package tracker

import (
	"math"
	"sort"
	"sync"
)

// Aperture is an oriented oblong detection aperture: the set of pixel
// offsets within radius a of a track segment of given length and position
// angle, sorted by ascending perpendicular distance so a scan of the list
// spirals out from the track.
type Aperture struct {
	// Offsets lists every pixel in the aperture, nearest-to-track first.
	Offsets []Offset
	// Radius is the radius of a circle that fully encloses the aperture,
	// used to bound how far a detection may read from its seed pixel.
	Radius int
	// FWHMCount is the number of pixels within 40% of the aperture radius.
	FWHMCount int
}

// buildAperture generates the aperture for radius a (pixels), a track of
// trackPix pixels and position angle pa (radians).
func buildAperture(a int, trackPix float32, pa float64) *Aperture {
	ap := &Aperture{}

	fwhm := float32(math.Round(0.4 * float64(a)))

	// Track endpoints relative to the aperture centre.
	x := float32(0.5 * float64(trackPix) * math.Sin(pa))
	y := float32(0.5 * float64(trackPix) * math.Cos(pa))
	c1 := PointF{-x, -y}
	c2 := PointF{x, y}
	cc := c1.Dist(c2)

	r := a + int(math.Ceil(float64(cc)/2))

	for j := -r; j <= r; j++ {
		for i := -r; i <= r; i++ {
			if i == 0 && j == 0 {
				ap.Offsets = append(ap.Offsets, Offset{0, 0, 0})
				ap.FWHMCount++
				continue
			}
			d := trackDist(c1, c2, cc, i, j)
			if d <= float32(a) {
				ap.Offsets = append(ap.Offsets, Offset{i, j, d})
			}
			if d <= fwhm {
				ap.FWHMCount++
			}
		}
	}

	ap.Radius = r + 1

	sort.SliceStable(ap.Offsets, func(i, j int) bool {
		return ap.Offsets[i].Dist < ap.Offsets[j].Dist
	})
	return ap
}

// trackDist is the perpendicular distance from (i,j) to the segment c1-c2
// of length cc. Off the end of the segment the distance to the nearest
// endpoint is used instead.
func trackDist(c1, c2 PointF, cc float32, i, j int) float32 {
	p := PointF{float32(i), float32(j)}
	d1 := sqDist(c1, p)
	d2 := sqDist(c2, p)

	// Degenerate track: the segment is a point.
	if cc == 0 {
		return float32(math.Sqrt(float64(d1)))
	}

	if float32(math.Abs(float64(d1-d2))) > cc*cc {
		return float32(math.Sqrt(math.Min(float64(d1), float64(d2))))
	}

	// Heron's formula for the triangle height. Double precision matters
	// for near-degenerate triangles.
	a := math.Sqrt(float64(d1))
	b := math.Sqrt(float64(d2))
	c := float64(cc)
	s := (a + b + c) / 2
	area := math.Sqrt(s * (s - a) * (s - b) * (s - c))
	return float32(2 * area / c)
}

func sqDist(a, b PointF) float32 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// apertureCache memoizes apertures keyed by radius and quantized (track
// length, PA). The three groups search each sweep step with the same key,
// so an aperture is built once per step rather than once per group.
type apertureCache struct {
	mu sync.Mutex
	m  map[apKey]*Aperture
}

type apKey struct {
	radius int
	track  int32 // track length in 1/100 px
	pa     int32 // position angle in 1/10000 rad
}

func newApertureCache() *apertureCache {
	return &apertureCache{m: make(map[apKey]*Aperture)}
}

func (c *apertureCache) get(a int, trackPix float32, pa float64) *Aperture {
	k := apKey{
		radius: a,
		track:  int32(math.Round(float64(trackPix) * 100)),
		pa:     int32(math.Round(pa * 10000)),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ap, ok := c.m[k]; ok {
		return ap
	}
	ap := buildAperture(a, trackPix, pa)
	c.m[k] = ap
	return ap
}
