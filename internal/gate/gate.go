// Package gate provides a non-blocking mutual-exclusion guard for flow
// operations together with a generation counter used to discard results of
// operations that were abandoned.
package gate

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate admits at most one operation at a time. A second caller is rejected
// instead of queued. The zero value is ready to use.
type Gate struct {
	once       sync.Once
	sem        *semaphore.Weighted
	generation atomic.Uint64
}

// Ticket identifies one admitted operation.
type Ticket struct {
	g          *Gate
	generation uint64
	left       *atomic.Bool
}

func (g *Gate) weighted() *semaphore.Weighted {
	g.once.Do(func() { g.sem = semaphore.NewWeighted(1) })
	return g.sem
}

// TryEnter admits the caller if no other operation holds the gate.
func (g *Gate) TryEnter() (Ticket, bool) {
	if !g.weighted().TryAcquire(1) {
		return Ticket{}, false
	}
	return Ticket{g: g, generation: g.generation.Load(), left: new(atomic.Bool)}, true
}

// Leave releases the gate. Only the first Leave of a ticket has an effect;
// Leave on a zero Ticket is a no-op.
func (t Ticket) Leave() {
	if t.g == nil || !t.left.CompareAndSwap(false, true) {
		return
	}
	t.g.weighted().Release(1)
}

// Current reports whether the gate was not invalidated since the ticket was
// issued.
func (t Ticket) Current() bool {
	if t.g == nil {
		return false
	}
	return t.generation == t.g.generation.Load()
}

// Invalidate bumps the generation so outstanding tickets stop being Current.
// It does not release the gate: the holder still calls Leave when its work
// finishes.
func (g *Gate) Invalidate() {
	g.generation.Add(1)
}

// Busy reports whether an operation currently holds the gate.
func (g *Gate) Busy() bool {
	sem := g.weighted()
	if !sem.TryAcquire(1) {
		return true
	}
	sem.Release(1)
	return false
}
