package tracker

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func preparedSuperGroup(t *testing.T, seed int64) *SuperGroup {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	groups := synthGroups(64, 64, rng, nil)
	pipe, err := NewPipeline(groups, arcsecPerPixel, testParams(), testLogger())
	require.NoError(t, err)
	for _, g := range pipe.Super.Groups {
		g.Prepare()
	}
	return pipe.Super
}

func TestNormalizeEqualizesBackgrounds(t *testing.T) {
	sg := preparedSuperGroup(t, 41)

	var want float32
	for _, g := range sg.Groups {
		for _, f := range g.Frames {
			want += f.Background
		}
	}
	want /= float32(sg.shared.FrameCount)

	sg.Normalize()
	for _, g := range sg.Groups {
		for _, f := range g.Frames {
			require.InDelta(t, float64(want), float64(f.Background), 1e-6)
			for j := 0; j < f.Height; j++ {
				for i := 0; i < f.Width; i++ {
					v := f.Pixels[i][j]
					require.GreaterOrEqual(t, v, float32(0))
					require.LessOrEqual(t, v, float32(1))
				}
			}
		}
	}
}

func TestSuperstackIsMedianOfGroupStacks(t *testing.T) {
	sg := preparedSuperGroup(t, 42)
	for _, g := range sg.Groups {
		g.StaticStack()
	}
	sg.Normalize()
	sg.BuildSuperstack()

	for _, probe := range [][2]int{{10, 10}, {30, 17}, {50, 50}} {
		i, j := probe[0], probe[1]
		v := [3]float32{
			sg.Groups[0].Static.Pixels[i][j],
			sg.Groups[1].Static.Pixels[i][j],
			sg.Groups[2].Static.Pixels[i][j],
		}
		require.Equal(t, middleOfThree(v), sg.Super.Pixels[i][j])
	}

	wantThreshold := min32(1, sg.Super.Background+sg.Super.Sigma*sg.params.Sigma2)
	require.Equal(t, wantThreshold, sg.Super.Threshold)
	require.GreaterOrEqual(t, sg.Super.Threshold, sg.Super.Background)
}

func TestMiddleOfThree(t *testing.T) {
	cases := [][4]float32{
		{1, 2, 3, 2}, {3, 2, 1, 2}, {2, 1, 3, 2},
		{2, 3, 1, 2}, {1, 1, 2, 1}, {5, 5, 5, 5},
	}
	for _, c := range cases {
		if got := middleOfThree([3]float32{c[0], c[1], c[2]}); got != c[3] {
			t.Errorf("middleOfThree(%v) = %f, want %f", c[:3], got, c[3])
		}
	}
}

func TestBuildTrackletsTolerances(t *testing.T) {
	sg := preparedSuperGroup(t, 43)

	// Hand-planted object lists: a pair five pixels apart in consecutive
	// groups, moving along PA 90 degrees.
	sg.Groups[0].Objects = []Object{{ID: ObjectID{0, 0}, Location: PointF{60, 50}, SNR: 5}}
	sg.Groups[1].Objects = []Object{{ID: ObjectID{1, 0}, Location: PointF{55, 50}, SNR: 5}}
	sg.Groups[2].Objects = []Object{{ID: ObjectID{2, 0}, Location: PointF{50, 50}, SNR: 5}}

	tr := Track{Motion: 1.0, PA: float32(math.Pi / 2), MotionStep: 0.5, PAStep: radians(10)}
	sg.BuildTracklets(tr)
	require.Len(t, sg.tracklets[0], 1)
	require.Len(t, sg.tracklets[1], 1)
	require.InDelta(t, 1.0, sg.tracklets[0][0].Motion, 1e-6)

	// A hypothesis pointing the other way finds nothing.
	tr.PA = float32(3 * math.Pi / 2)
	sg.BuildTracklets(tr)
	require.Empty(t, sg.tracklets[0])
	require.Empty(t, sg.tracklets[1])
}

func TestBuildMoversJoinsAndDeduplicates(t *testing.T) {
	sg := preparedSuperGroup(t, 44)

	sg.Groups[0].Objects = []Object{{ID: ObjectID{0, 0}, Location: PointF{60, 50}, SNR: 5.2}}
	sg.Groups[1].Objects = []Object{{ID: ObjectID{1, 0}, Location: PointF{55, 50}, SNR: 4.8}}
	sg.Groups[2].Objects = []Object{{ID: ObjectID{2, 0}, Location: PointF{50, 50}, SNR: 5.0}}

	tr := Track{Motion: 1.0, PA: float32(math.Pi / 2), MotionStep: 0.5, PAStep: radians(10)}
	sg.BuildTracklets(tr)
	added := sg.BuildMovers()
	require.Len(t, added, 1)
	require.Len(t, sg.Movers(), 1)

	m := added[0]
	require.InDelta(t, 1.0, m.Motion, 1e-6)
	require.InDelta(t, math.Pi/2, m.PA, 1e-6)
	require.Less(t, m.ErrMid, float32(0.5))

	// The same track found again on the next step stays a single mover.
	sg.BuildTracklets(tr)
	sg.BuildMovers()
	require.Len(t, sg.Movers(), 1)
}

func TestSelectNextMoverSaturates(t *testing.T) {
	sg := preparedSuperGroup(t, 45)
	require.Nil(t, sg.SelectNextMover(true), "empty list yields nil")

	a := moverAt(10, 10, 15, 10, [3]float32{3, 4, 5}, 0.2)
	b := moverAt(60, 60, 65, 60, [3]float32{3, 4, 5}, 0.2)
	a.Score = 2
	b.Score = 1
	sg.movers = []*Mover{a, b}

	require.Same(t, a, sg.SelectNextMover(true))
	require.Same(t, b, sg.SelectNextMover(true))
	require.Same(t, b, sg.SelectNextMover(true), "cursor saturates at the end")
	require.Same(t, a, sg.SelectNextMover(false))
	require.Same(t, a, sg.SelectNextMover(false), "cursor saturates at the start")
}

func TestSortMoversDescending(t *testing.T) {
	sg := preparedSuperGroup(t, 46)
	a := moverAt(10, 10, 15, 10, [3]float32{3, 4, 5}, 0.2)
	b := moverAt(60, 60, 65, 60, [3]float32{3, 4, 5}, 0.2)
	c := moverAt(30, 30, 35, 30, [3]float32{3, 4, 5}, 0.2)
	a.Score, b.Score, c.Score = 1, 3, 2
	sg.movers = []*Mover{a, b, c}

	sg.SortMovers()
	got := sg.Movers()
	require.Same(t, b, got[0])
	require.Same(t, c, got[1])
	require.Same(t, a, got[2])
}
