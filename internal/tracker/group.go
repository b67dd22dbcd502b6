package tracker

import (
	"fmt"
	"math"
	"sort"
)

// Group owns the frames of one observation window and the stacks built
// from them: a static median stack (stars sharp) and a tracked mean stack
// (re-built every sweep step).
type Group struct {
	Index  int
	Frames []*Frame

	Width, Height int
	Exposure      float32 // seconds, from the first frame

	RefTime float64 // Julian day of the group's stack midpoint
	Elapse  float32 // first-to-last span, minutes (at least one exposure)

	Static  *StackedImage
	Tracked *StackedImage
	scratch *StackedImage

	Objects []Object

	edges  EdgeExtent
	params Params
	shared *Shared
	aps    *apertureCache
}

// newGroup creates an empty group; groups are assembled by NewPipeline.
func newGroup(index int, p Params, sh *Shared, aps *apertureCache) *Group {
	return &Group{Index: index, params: p, shared: sh, aps: aps}
}

// Add appends a frame. The first frame fixes the group's dimensions and
// exposure.
func (g *Group) Add(f *Frame) {
	g.Frames = append(g.Frames, f)
	if len(g.Frames) == 1 {
		g.Width = f.Width
		g.Height = f.Height
		g.Exposure = f.Exposure
	}
}

// SetRefTime sets the group reference time midway between the start of the
// first exposure and the end of the last, and the group elapse time.
func (g *Group) SetRefTime() error {
	if len(g.Frames) == 0 {
		return fmt.Errorf("group %d has no frames", g.Index)
	}
	first := g.Frames[0].Obs
	last := g.Frames[len(g.Frames)-1].Obs
	g.Elapse = max32(float32((last-first)*1440), g.Exposure/60)
	last += float64(g.Frames[len(g.Frames)-1].Exposure) / 86400
	g.RefTime = (first + last) / 2
	return nil
}

// Prepare runs per-frame preparation: histogram, optional de-lining,
// stretch, optional blur, and the static stacking offset.
func (g *Group) Prepare() {
	for _, f := range g.Frames {
		f.ComputeHistogram(g.params)
		if g.params.DeLine {
			f.DeLine()
		}
		f.Stretch()
		if g.params.Blur {
			f.Blur()
		}
	}
	for _, f := range g.Frames {
		f.SetStaticOffset(g.shared.RefPoint)
	}
}

// StaticStack median-stacks the frames with static offsets only, leaving
// stars sharp for the star mask.
func (g *Group) StaticStack() {
	if g.Static == nil {
		g.Static = NewStackedImage(g.Width, g.Height)
		g.Tracked = NewStackedImage(g.Width, g.Height)
		g.scratch = NewStackedImage(g.Width, g.Height)
	}

	n := len(g.Frames)
	pix := make([]float32, n)
	median := n / 2

	type off struct{ x, y int }
	offs := make([]off, n)
	for k, f := range g.Frames {
		offs[k] = off{
			x: int(math.Round(float64(f.Offset.X))),
			y: int(math.Round(float64(f.Offset.Y))),
		}
	}

	for j := 0; j < g.Height; j++ {
		for i := 0; i < g.Width; i++ {
			for k := range pix {
				pix[k] = 0
			}
			for k, f := range g.Frames {
				x := i - offs[k].x
				y := j - offs[k].y
				if x > 0 && x < g.Width && y > 0 && y < g.Height {
					pix[k] = f.Pixels[x][y]
				}
			}
			sort.Slice(pix, func(a, b int) bool { return pix[a] < pix[b] })
			g.Static.Pixels[i][j] = pix[median]
		}
	}

	g.Static.ComputeHistogram(g.params)
	g.Static.Dirty = true
}

// TrackedStack mean-stacks the frames with offsets tracking the given
// hypothesis; the mean divisor is the frame count regardless of in-bounds
// coverage, so edge bands fade rather than brighten.
func (g *Group) TrackedStack(motion, pa float32) {
	g.edges = EdgeExtent{}
	paRot := float64(pa) + g.shared.Rotation
	for _, f := range g.Frames {
		f.SetTrackedOffset(g.RefTime, float64(motion), paRot, g.shared.PixScale, &g.edges)
	}

	n := float32(len(g.Frames))
	for j := 0; j < g.Height; j++ {
		for i := 0; i < g.Width; i++ {
			var pix float32
			for _, f := range g.Frames {
				x := i - f.TrackOffset.X
				y := j - f.TrackOffset.Y
				if x > 0 && x < g.Width && y > 0 && y < g.Height {
					pix += f.Pixels[x][y]
				}
			}
			g.Tracked.Pixels[i][j] = pix / n
		}
	}

	g.Tracked.ComputeHistogram(g.params)
	g.Tracked.Dirty = true
}

// FindObjects scans the tracked stack for over-threshold pixels and
// refines each into a candidate Object. The scan window is inset so the
// aperture can never read outside the image, even after centre-of-
// brightness drift.
func (g *Group) FindObjects(t Track) {
	track := float32(float64(t.Motion) * float64(g.Exposure) / (60 * float64(g.shared.PixScale)))
	ap := g.aps.get(g.params.Aperture, track, float64(t.PA))

	minPix := g.params.TCountBase + int(track)

	limit := 4 * ap.Radius
	x0 := int(g.edges.MaxX) + limit
	x1 := g.Width - limit + int(g.edges.MinX)
	y0 := int(g.edges.MaxY) + limit
	y1 := g.Height - limit + int(g.edges.MinY)

	g.Objects = g.Objects[:0]
	g.scratch.CopyFrom(g.Tracked)

	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			if g.scratch.Pixels[i][j] > g.scratch.Threshold {
				g.refineObject(i, j, ap, minPix)
			}
		}
	}
}

// refineObject iterates centre-of-brightness refinement over a shrinking
// aperture radius, accepting the candidate once enough flux or enough
// over-threshold pixels concentrate inside the FWHM region. The full
// aperture around the accepted centre is reset to background in the
// scratch buffer so the scan cannot re-trigger on the object's outskirts.
func (g *Group) refineObject(i, j int, ap *Aperture, minPix int) {
	w := g.scratch
	requiredFlux := float32(minPix) * (w.Threshold - w.Background)
	requiredPix := int(math.Max(float64(minPix)*0.5, 2))

	// Net flux over the full aperture must clear the minimum before any
	// refinement is attempted.
	var flux float32
	for _, p := range ap.Offsets {
		flux += w.Pixels[i+p.X][j+p.Y] - w.Background
	}
	if flux < requiredFlux {
		return
	}

	centre := Point{i, j}
	c := float32(g.params.Aperture) + 0.5
	var pCount, tCount int
	var allFlux float32

	for {
		// Centre-of-brightness shift at the current radius, weighted by
		// each pixel's share of the current flux.
		var cobX, cobY float32
		for _, p := range ap.Offsets {
			if p.Dist > c {
				break
			}
			f := (w.Pixels[centre.X+p.X][centre.Y+p.Y] - w.Background) / flux
			cobX += f * float32(p.X)
			cobY += f * float32(p.Y)
		}
		centre.X += int(math.Round(float64(cobX)))
		centre.Y += int(math.Round(float64(cobY)))

		// A centre that has wandered out of the aperture was noise.
		if ap.Radius < abs(centre.X-i) || ap.Radius < abs(centre.Y-j) {
			return
		}

		c -= 0.5
		flux = 0
		pCount = 0
		tCount = 0
		for _, p := range ap.Offsets {
			if p.Dist > c {
				break
			}
			f := w.Pixels[centre.X+p.X][centre.Y+p.Y]
			if f > w.Threshold {
				tCount++
			}
			flux += f - w.Background
			pCount++
		}

		if c == float32(g.params.Aperture) {
			allFlux = flux
		}

		if tCount < requiredPix {
			return
		}
		if tCount >= pCount {
			break
		}
		if pCount <= ap.FWHMCount {
			if flux > requiredFlux || tCount >= minPix {
				break
			}
			return
		}
	}

	outFlux := max32(allFlux-flux, w.Sigma)
	ob := Object{
		ID:       ObjectID{Group: g.Index, Index: len(g.Objects)},
		Location: PointF{float32(centre.X), float32(centre.Y)},
		Size:     pCount,
		TCount:   tCount,
		Flux:     flux,
		SNR:      flux / outFlux,
	}
	g.Objects = append(g.Objects, ob)

	for _, p := range ap.Offsets {
		w.Pixels[centre.X+p.X][centre.Y+p.Y] = w.Background
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
