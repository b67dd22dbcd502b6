package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Phase tags the pipeline state machine.
type Phase int32

const (
	// PhasePrepare covers histograms, filters, static stacking, star
	// subtraction and flat fielding.
	PhasePrepare Phase = iota + 1
	// PhaseSweep covers the tracked-stack / detect / reconcile loop.
	PhaseSweep
	// PhaseDone is entered when the sweep exhausts its range.
	PhaseDone
)

// EventType labels scheduler events pushed to subscribers.
type EventType string

const (
	EventPhase EventType = "phase"
	EventStep  EventType = "step"
	EventMover EventType = "mover"
	EventDone  EventType = "done"
)

// Event is a progress notification for display collaborators.
type Event struct {
	Type     EventType
	Phase    Phase
	Motion   float32
	PADeg    float32
	Progress float64
	Mover    *Mover
}

// Status is a point-in-time snapshot of the run.
type Status struct {
	Phase    Phase   `json:"phase"`
	Motion   float32 `json:"motion"`
	PADeg    float32 `json:"pa_deg"`
	Progress float64 `json:"progress"`
	Movers   int     `json:"movers"`
	Paused   bool    `json:"paused"`
	Finished bool    `json:"finished"`
}

// Scheduler drives the four pipeline threads: one worker per group and a
// coordinator, rendezvousing at a shared barrier. Each buffer has exactly
// one writer between consecutive barriers; non-writers read it only after
// a barrier the writer exited before.
type Scheduler struct {
	super   *SuperGroup
	sweep   *Sweep
	barrier *Barrier
	log     *slog.Logger

	phase  atomic.Int32
	paused atomic.Bool

	mu        sync.Mutex
	subs      map[int]chan Event
	nextSubID int
}

// NewScheduler wires the scheduler for a prepared SuperGroup.
func NewScheduler(super *SuperGroup, sweep *Sweep, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		super:   super,
		sweep:   sweep,
		barrier: NewBarrier(4),
		log:     log,
		subs:    make(map[int]chan Event),
	}
	s.phase.Store(int32(PhasePrepare))
	return s
}

// Subscribe returns a channel of progress events and an unsubscribe
// function. Slow subscribers drop events rather than stall the pipeline.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Scheduler) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SetPaused pauses or resumes the sweep. The coordinator polls the flag at
// the end of each iteration; workers block at their barrier meanwhile.
func (s *Scheduler) SetPaused(v bool) { s.paused.Store(v) }

// Paused reports the pause flag.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// CurrentStatus reports a snapshot for the status surface.
func (s *Scheduler) CurrentStatus() Status {
	t := s.sweep.Current()
	return Status{
		Phase:    Phase(s.phase.Load()),
		Motion:   t.Motion,
		PADeg:    degrees(t.PA),
		Progress: s.sweep.Progress(),
		Movers:   len(s.super.Movers()),
		Paused:   s.paused.Load(),
		Finished: s.sweep.Finished(),
	}
}

// Run executes both phases to completion. It blocks until the sweep
// exhausts its range, the context is cancelled, or the barrier breaks.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	// Cancel translates to a broken barrier, which every thread treats as
	// clean termination at its next rendezvous.
	stop := context.AfterFunc(ctx, s.barrier.Break)
	defer stop()

	for i := range s.super.Groups {
		wg.Add(1)
		go func(g *Group) {
			defer wg.Done()
			s.runWorker(g)
		}(s.super.Groups[i])
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runCoordinator()
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.broadcast(Event{Type: EventDone, Phase: PhaseDone, Progress: 1})
	return nil
}

// await is the worker-side barrier wait: observing the finished flag on
// arrival, or a broken barrier, means terminate.
func (s *Scheduler) await() bool {
	if s.sweep.Finished() {
		return false
	}
	return s.barrier.Await() == nil
}

// runWorker is the per-group thread: preparation in Phase 1, then the
// stack-and-detect loop of Phase 2.
func (s *Scheduler) runWorker(g *Group) {
	// Phase 1: prepare frames, stack, subtract, divide.
	g.Prepare()
	g.StaticStack()
	if !s.await() { // 1: all group stacks ready
		return
	}
	if !s.await() { // 2: superstack ready
		return
	}
	g.Subtract(s.super.Super)
	if !s.await() { // 3: all groups subtracted
		return
	}
	if !s.await() { // 4: flat ready
		return
	}
	if s.super.params.Flatten {
		g.Divide(s.super.Super)
	}
	if !s.await() { // 5: all groups divided; enter Phase 2
		return
	}

	// Phase 2: tracked stack and object search each sweep step. The
	// coordinator overlaps mover building with this loop; it works from
	// object copies taken at tracklet formation, so rewriting the object
	// lists here is safe.
	for {
		t := s.sweep.Current()
		g.TrackedStack(t.Motion, t.PA)
		g.FindObjects(t)
		if !s.await() { // A: all object lists ready
			return
		}
		if !s.await() { // B: tracklets built, sweep advanced
			return
		}
	}
}

// runCoordinator is the cross-group thread.
func (s *Scheduler) runCoordinator() {
	s.broadcast(Event{Type: EventPhase, Phase: PhasePrepare})

	// Phase 1 mirror of the worker barriers.
	if !s.await() { // 1: group stacks ready
		return
	}
	s.super.Normalize()
	s.super.BuildSuperstack()
	if !s.await() { // 2: superstack published
		return
	}
	if !s.await() { // 3: groups subtracted
		return
	}
	s.super.BuildFlat()
	if !s.await() { // 4: flat published
		return
	}
	if !s.await() { // 5: enter Phase 2
		return
	}

	s.phase.Store(int32(PhaseSweep))
	s.broadcast(Event{Type: EventPhase, Phase: PhaseSweep})

	for {
		if !s.await() { // A: object lists ready
			return
		}

		t := s.sweep.Current()
		s.super.BuildTracklets(t)
		end := s.sweep.Advance()

		if end {
			// The workers are parked at barrier B. Finish the cross-group
			// work, then break the barrier so they exit cleanly.
			for _, m := range s.super.BuildMovers() {
				s.broadcast(Event{Type: EventMover, Mover: m})
			}
			s.super.SortMovers()
			s.phase.Store(int32(PhaseDone))
			s.log.Info("sweep complete", "movers", len(s.super.Movers()))
			s.barrier.Break()
			return
		}

		if s.barrier.Await() != nil { // B: release workers into the next step
			return
		}

		// Mover building overlaps the workers' next tracked stack and
		// object search: it reads only the tracklets, which hold copies of
		// their objects, so the workers rewriting the object lists
		// meanwhile is safe.
		for _, m := range s.super.BuildMovers() {
			s.broadcast(Event{Type: EventMover, Mover: m})
		}
		s.broadcast(Event{
			Type:     EventStep,
			Phase:    PhaseSweep,
			Motion:   t.Motion,
			PADeg:    degrees(t.PA),
			Progress: s.sweep.Progress(),
		})

		for s.paused.Load() {
			time.Sleep(time.Second)
		}
	}
}
