package tracker

import (
	"errors"
	"sync"
)

// ErrBarrierBroken is returned from Await once the barrier has been broken;
// callers treat it as termination.
var ErrBarrierBroken = errors.New("barrier broken")

// Barrier is a reusable rendezvous point for a fixed party of goroutines,
// the synchronisation backbone of the two-phase pipeline. The exit of one
// generation happens-before every Await return of that generation.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
	broken  bool
}

// NewBarrier creates a barrier for the given party size.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until all parties have arrived, then releases them
// together. Returns ErrBarrierBroken if the barrier was broken while
// waiting or before arrival.
func (b *Barrier) Await() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		return ErrBarrierBroken
	}
	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return nil
	}
	for gen == b.gen && !b.broken {
		b.cond.Wait()
	}
	if b.broken {
		return ErrBarrierBroken
	}
	return nil
}

// Break releases all waiters with ErrBarrierBroken and makes every future
// Await fail. Used when any pipeline thread dies so the rest exit cleanly.
func (b *Barrier) Break() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.broken {
		b.broken = true
		b.cond.Broadcast()
	}
}
