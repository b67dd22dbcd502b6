package tracker

import (
	"context"
	"log/slog"
)

// Pipeline assembles the groups, coordinator and scheduler for one hunt.
type Pipeline struct {
	Params Params
	Shared *Shared
	Super  *SuperGroup
	Sweep  *Sweep
	Sched  *Scheduler
}

// NewPipeline builds a pipeline over frames already grouped by the loader.
// pixScale is the shared arcsec-per-pixel scale the loader derived from
// the frame WCS. Group-structure violations abort here, before Phase 1.
func NewPipeline(grouped [][]*Frame, pixScale float32, p Params, log *slog.Logger) (*Pipeline, error) {
	sh := &Shared{PixScale: pixScale}
	aps := newApertureCache()

	groups := make([]*Group, 0, len(grouped))
	for i, frames := range grouped {
		g := newGroup(i, p, sh, aps)
		for _, f := range frames {
			g.Add(f)
		}
		groups = append(groups, g)
	}

	super, err := NewSuperGroup(groups, p, sh, log)
	if err != nil {
		return nil, err
	}
	if err := super.SetReference(); err != nil {
		return nil, err
	}

	sweep := NewSweep(p, sh)
	return &Pipeline{
		Params: p,
		Shared: sh,
		Super:  super,
		Sweep:  sweep,
		Sched:  NewScheduler(super, sweep, log),
	}, nil
}

// Run executes the full two-phase hunt and returns the movers, best score
// first.
func (pl *Pipeline) Run(ctx context.Context) ([]*Mover, error) {
	if err := pl.Sched.Run(ctx); err != nil {
		return nil, err
	}
	return pl.Super.Movers(), nil
}
