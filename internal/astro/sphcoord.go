package astro

import "math"

// SphCoord is a position on the celestial sphere (RA, Dec) in radians.
type SphCoord struct {
	RA  float64
	Dec float64
}

// Middle returns the great-circle midpoint between c and p.
func (c SphCoord) Middle(p SphCoord) SphCoord {
	bx := math.Cos(p.Dec) * math.Cos(p.RA-c.RA)
	by := math.Cos(p.Dec) * math.Sin(p.RA-c.RA)
	return SphCoord{
		RA: c.RA + math.Atan2(by, math.Cos(c.Dec)+bx),
		Dec: math.Atan2(math.Sin(c.Dec)+math.Sin(p.Dec),
			math.Hypot(math.Cos(c.Dec)+bx, by)),
	}
}

// Sub returns the component-wise difference c - p.
func (c SphCoord) Sub(p SphCoord) SphCoord {
	return SphCoord{RA: c.RA - p.RA, Dec: c.Dec - p.Dec}
}

// Angle returns the angular separation between c and p in radians.
func (c SphCoord) Angle(p SphCoord) float64 {
	return math.Acos(math.Sin(p.Dec)*math.Sin(c.Dec) +
		math.Cos(p.Dec)*math.Cos(c.Dec)*math.Cos(p.RA-c.RA))
}
