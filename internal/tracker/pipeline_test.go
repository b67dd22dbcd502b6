package tracker

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// A blob moving at 1"/min along PA 90 degrees: its stacked position drifts
// five pixels in -x per five-minute group gap at 1"/px.
func TestHuntSingleSyntheticObject(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	groups := synthGroups(100, 100, rng, [][2]float64{{60, 50}, {55, 50}, {50, 50}})

	pipe, err := NewPipeline(groups, arcsecPerPixel, testParams(), testLogger())
	require.NoError(t, err)

	movers, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, movers, 1, "expected exactly one mover after deduplication")

	m := movers[0]
	tr := pipe.Sweep.Current()
	require.InDelta(t, 1.0, m.Motion, float64(tr.MotionStep), "motion")
	require.InDelta(t, math.Pi/2, m.PA, math.Pi/4, "position angle")
	require.Less(t, m.ErrMid, float32(0.5), "middle-object residual")

	for i, ob := range m.Objects {
		require.Equal(t, i, ob.ID.Group)
		require.Greater(t, ob.SNR, float32(0))
		require.Greater(t, ob.Flux, float32(0))
	}
}

func TestHuntPureNoiseFindsNothing(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	groups := synthGroups(100, 100, rng, nil)

	pipe, err := NewPipeline(groups, arcsecPerPixel, testParams(), testLogger())
	require.NoError(t, err)

	movers, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, movers)
}

func TestHuntTwoObjectsDistinctMotions(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	groups := synthGroups(100, 100, rng,
		[][2]float64{{60, 50}, {55, 50}, {50, 50}}, // 1"/min at PA 90
		[][2]float64{{30, 30}, {30, 45}, {30, 60}}) // 3"/min at PA 180

	pipe, err := NewPipeline(groups, arcsecPerPixel, testParams(), testLogger())
	require.NoError(t, err)

	movers, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, movers, 2)

	// Sorted by score descending.
	require.GreaterOrEqual(t, movers[0].Score, movers[1].Score)

	var slow, fast *Mover
	for _, m := range movers {
		if m.Motion < 2 {
			slow = m
		} else {
			fast = m
		}
	}
	require.NotNil(t, slow, "missing 1\"/min mover")
	require.NotNil(t, fast, "missing 3\"/min mover")
	require.InDelta(t, 1.0, slow.Motion, 0.25)
	require.InDelta(t, math.Pi/2, slow.PA, 0.1)
	require.InDelta(t, 3.0, fast.Motion, 0.25)
	require.InDelta(t, math.Pi, fast.PA, 0.1)
}

func TestGroupStructureValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	groups := synthGroups(50, 50, rng, nil)

	_, err := NewPipeline(groups[:2], arcsecPerPixel, testParams(), testLogger())
	require.Error(t, err, "two groups must be rejected")

	groups[1] = nil
	_, err = NewPipeline(groups, arcsecPerPixel, testParams(), testLogger())
	require.Error(t, err, "an empty group must be rejected")
}

func TestRunCancelledContext(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	groups := synthGroups(50, 50, rng, nil)

	pipe, err := NewPipeline(groups, arcsecPerPixel, testParams(), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pipe.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// A star at a fixed sky position is hard-masked by the superstack: its
// cores read as background after subtraction, and the tracked stack shows
// no detection there.
func TestStarSubtraction(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	star := [][2]float64{{40, 40}, {40, 40}, {40, 40}}
	grouped := synthGroups(100, 100, rng, star)

	pipe, err := NewPipeline(grouped, arcsecPerPixel, testParams(), testLogger())
	require.NoError(t, err)
	sg := pipe.Super

	// Phase 1 by hand, in barrier order.
	for _, g := range sg.Groups {
		g.Prepare()
		g.StaticStack()
	}
	sg.Normalize()
	sg.BuildSuperstack()
	for _, g := range sg.Groups {
		g.Subtract(sg.Super)
	}

	for _, g := range sg.Groups {
		f := g.Frames[0]
		require.InDelta(t, float64(f.Background), float64(f.Pixels[40][40]), 1e-6,
			"star core must read as frame background after subtraction")
	}

	// Phase 2, one step at a deliberately wrong (non-zero) motion.
	for _, g := range sg.Groups {
		g.TrackedStack(2.0, 0)
		g.FindObjects(Track{Motion: 2.0, PA: 0, MotionStep: 0.25, PAStep: radians(45)})
		for _, ob := range g.Objects {
			d := ob.Location.Dist(PointF{40, 40})
			require.Greater(t, d, float32(5), "no detection at the masked star location")
		}
	}
}

// Repeating the single-object hunt with tolerances that accept the blob on
// adjacent sweep steps still yields a single mover: duplicates are
// resolved to the higher score.
func TestMoverDeduplicationAcrossSteps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	groups := synthGroups(100, 100, rng, [][2]float64{{60, 50}, {55, 50}, {50, 50}})

	p := testParams()
	p.PAMinDeg = 45
	p.PAMaxDeg = 135 // several PA steps bracket the true track
	pipe, err := NewPipeline(groups, arcsecPerPixel, p, testLogger())
	require.NoError(t, err)

	movers, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, movers, 1)
}
