package tracker

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

const pi2 = float32(2 * math.Pi)

// SuperGroup owns the three groups and performs the cross-group work:
// normalization, the star-mask superstack, the optional synthetic flat,
// and the object -> tracklet -> mover reconciliation.
type SuperGroup struct {
	Groups [3]*Group

	// Super is the median-across-groups stack. It is the star mask during
	// subtraction and is overwritten with the synthetic flat when
	// flat-fielding is enabled.
	Super *StackedImage

	params Params
	shared *Shared
	log    *slog.Logger

	tracklets [2][]Tracklet

	mu     sync.Mutex
	movers []*Mover
	cursor int
}

// NewSuperGroup validates the group structure and builds the coordinator.
// Exactly three groups, each with at least one frame, or the run aborts
// before Phase 1.
func NewSuperGroup(groups []*Group, p Params, sh *Shared, log *slog.Logger) (*SuperGroup, error) {
	if len(groups) != 3 {
		return nil, fmt.Errorf("synthetic tracking needs exactly 3 image groups, got %d", len(groups))
	}
	sg := &SuperGroup{params: p, shared: sh, log: log, cursor: -1}
	for i, g := range groups {
		if len(g.Frames) == 0 {
			return nil, fmt.Errorf("group %d has no frames", i)
		}
		sg.Groups[i] = g
	}
	return sg, nil
}

// SetReference establishes the run's cross-group reference data: the
// common reference point (great-circle midpoint of the first and last
// frames), the inter-group time deltas, and the shared frame parameters.
func (sg *SuperGroup) SetReference() error {
	for _, g := range sg.Groups {
		if err := g.SetRefTime(); err != nil {
			return err
		}
	}

	first := sg.Groups[0].Frames[0]
	lastGroup := sg.Groups[2]
	last := lastGroup.Frames[len(lastGroup.Frames)-1]
	sg.shared.RefPoint = first.Ref.Middle(last.Ref)

	for i := 0; i < 2; i++ {
		sg.shared.DTime[i] = float32(1440 * (sg.Groups[i+1].RefTime - sg.Groups[i].RefTime))
	}

	sg.shared.Width = first.Width
	sg.shared.Height = first.Height
	sg.shared.Exposure = first.Exposure
	sg.shared.Rotation = first.Rotation

	sg.shared.MaxElapse = 0
	sg.shared.FrameCount = 0
	for _, g := range sg.Groups {
		sg.shared.MaxElapse = max32(sg.shared.MaxElapse, g.Elapse)
		sg.shared.FrameCount += len(g.Frames)
	}
	return nil
}

// Normalize shifts every frame's pixels so all backgrounds sit at the
// overall mean background, clamped to [0,1].
func (sg *SuperGroup) Normalize() {
	var sum float32
	for _, g := range sg.Groups {
		for _, f := range g.Frames {
			sum += f.Background
		}
	}
	mean := sum / float32(sg.shared.FrameCount)

	for _, g := range sg.Groups {
		for _, f := range g.Frames {
			adj := f.Background - mean
			for j := 0; j < f.Height; j++ {
				for i := 0; i < f.Width; i++ {
					v := f.Pixels[i][j] - adj
					if v < 0 {
						v = 0
					}
					if v > 1 {
						v = 1
					}
					f.Pixels[i][j] = v
				}
			}
			f.Background = mean
		}
	}
}

// BuildSuperstack median-stacks the three group static stacks. Its
// threshold is set from the star-mask sigma so that subtraction hard-masks
// bright star cores.
func (sg *SuperGroup) BuildSuperstack() {
	if sg.Super == nil {
		sg.Super = NewStackedImage(sg.shared.Width, sg.shared.Height)
	}

	var pix [3]float32
	for j := 0; j < sg.shared.Height; j++ {
		for i := 0; i < sg.shared.Width; i++ {
			for k, g := range sg.Groups {
				pix[k] = g.Static.Pixels[i][j]
			}
			sg.Super.Pixels[i][j] = middleOfThree(pix)
		}
	}

	sg.Super.ComputeHistogram(sg.params)
	sg.Super.Threshold = min32(1, sg.Super.Background+sg.Super.Sigma*sg.params.Sigma2)
	sg.Super.Dirty = true
}

// middleOfThree returns the median of three values.
func middleOfThree(p [3]float32) float32 {
	if p[0] > p[1] {
		p[0], p[1] = p[1], p[0]
	}
	if p[1] > p[2] {
		p[1] = p[2]
	}
	if p[0] > p[1] {
		return p[0]
	}
	return p[1]
}

// Subtract removes the superstack stars from every frame in the group.
func (g *Group) Subtract(super *StackedImage) {
	for _, f := range g.Frames {
		f.Subtract(super)
	}
}

// Divide applies the synthetic flat to every frame in the group.
func (g *Group) Divide(flat *StackedImage) {
	for _, f := range g.Frames {
		f.Divide(flat)
	}
}

// BuildFlat overwrites the superstack with a synthetic flat: the per-pixel
// median across all frames of pixel over post-subtraction frame mean.
// Only runs when flat-fielding is enabled.
func (sg *SuperGroup) BuildFlat() {
	if !sg.params.Flatten {
		return
	}

	n := sg.shared.FrameCount
	pix := make([]float32, n)
	median := int(math.Round(float64(n)*0.5)) - 1

	for j := 0; j < sg.shared.Height; j++ {
		for i := 0; i < sg.shared.Width; i++ {
			k := 0
			for _, g := range sg.Groups {
				for _, f := range g.Frames {
					pix[k] = f.Pixels[i][j] / f.Mean
					k++
				}
			}
			sort.Slice(pix, func(a, b int) bool { return pix[a] < pix[b] })
			sg.Super.Pixels[i][j] = pix[median]
		}
	}
	sg.Super.Dirty = true
}

// BuildTracklets pairs objects in consecutive groups whose separation and
// direction are consistent with the current sweep hypothesis. Tolerances
// derive from the current step sizes plus the position-measurement error.
func (sg *SuperGroup) BuildTracklets(t Track) {
	sg.tracklets[0] = sg.tracklets[0][:0]
	sg.tracklets[1] = sg.tracklets[1][:0]

	for g := 0; g < 2; g++ {
		objs1 := sg.Groups[g].Objects
		objs2 := sg.Groups[g+1].Objects

		eDist := t.Motion * sg.shared.DTime[g]
		dDist := 0.5*t.MotionStep*sg.shared.DTime[g] + 2*sg.params.PosErr*sg.shared.PixScale
		dPA := t.PAStep/2 + 2*sg.params.PosErr*sg.shared.PixScale/eDist

		for a := range objs1 {
			for b := range objs2 {
				dist := objs1[a].Location.Dist(objs2[b].Location) * sg.shared.PixScale
				if float32(math.Abs(float64(dist-eDist))) > dDist {
					continue
				}
				pa := objs1[a].Location.PA(objs2[b].Location)
				if pa < 0 {
					pa += pi2
				}
				if float32(math.Abs(float64(pa-t.PA))) > dPA {
					continue
				}
				sg.tracklets[g] = append(sg.tracklets[g], Tracklet{
					A:      objs1[a].ID,
					B:      objs2[b].ID,
					ObjA:   objs1[a],
					ObjB:   objs2[b],
					Motion: dist / sg.shared.DTime[g],
					PA:     pa,
				})
			}
		}
	}
}

// BuildMovers joins tracklet pairs sharing their middle object into
// movers, scores them, and deduplicates against earlier finds keeping the
// higher score. Returns the movers added this step.
func (sg *SuperGroup) BuildMovers() []*Mover {
	pTime := sg.shared.DTime[0] / (sg.shared.DTime[0] + sg.shared.DTime[1])
	var added []*Mover

	for _, t1 := range sg.tracklets[0] {
		for _, t2 := range sg.tracklets[1] {
			if t1.B != t2.A {
				continue
			}

			// Residual of the middle object against the straight line from
			// first to last.
			mid := PointF{
				X: t1.ObjA.Location.X + (t2.ObjB.Location.X-t1.ObjA.Location.X)*pTime,
				Y: t1.ObjA.Location.Y + (t2.ObjB.Location.Y-t1.ObjA.Location.Y)*pTime,
			}
			errMid := t1.ObjB.Location.Dist(mid)
			if errMid > 2*sg.params.PosErr {
				continue
			}

			mov := &Mover{
				Motion: (t1.Motion + t2.Motion) / 2,
				ErrMid: errMid,
			}
			mov.Objects[0] = t1.ObjA
			mov.Objects[1] = t1.ObjB
			mov.Objects[2] = t2.ObjB
			mov.PA = t1.ObjA.Location.PA(t2.ObjB.Location)
			if mov.PA < 0 {
				mov.PA += pi2
			}
			mov.ScoreMover()

			if sg.keep(mov) {
				added = append(added, mov)
				sg.log.Info("mover found",
					"x", int(mov.Objects[0].Location.X),
					"y", int(mov.Objects[0].Location.Y),
					"motion", mov.Motion,
					"pa_deg", degrees(mov.PA),
					"score", mov.Score)
			}
		}
	}
	return added
}

// keep inserts mov unless an existing mover on the same track outscores
// it; a lower-scoring duplicate is replaced.
func (sg *SuperGroup) keep(mov *Mover) bool {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	tol := 3 * float32(sg.params.Aperture)
	for i, m := range sg.movers {
		if m.IsSameAs(mov, tol) {
			if m.Score > mov.Score {
				return false
			}
			sg.movers[i] = mov
			return true
		}
	}
	sg.movers = append(sg.movers, mov)
	return true
}

// SortMovers orders the mover list by descending score.
func (sg *SuperGroup) SortMovers() {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sort.SliceStable(sg.movers, func(a, b int) bool {
		return sg.movers[a].Score > sg.movers[b].Score
	})
}

// Movers returns a snapshot of the mover list.
func (sg *SuperGroup) Movers() []*Mover {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	out := make([]*Mover, len(sg.movers))
	copy(out, sg.movers)
	return out
}

// SelectNextMover moves the mover cursor forward or back, saturating at
// both ends, and returns the selected mover (nil when the list is empty).
func (sg *SuperGroup) SelectNextMover(next bool) *Mover {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if len(sg.movers) == 0 {
		return nil
	}
	if next {
		if sg.cursor+1 < len(sg.movers) {
			sg.cursor++
		}
	} else {
		if sg.cursor-1 >= 0 {
			sg.cursor--
		}
	}
	if sg.cursor < 0 {
		sg.cursor = 0
	}
	return sg.movers[sg.cursor]
}
