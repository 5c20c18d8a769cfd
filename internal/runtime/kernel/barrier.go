package kernel

import "sync"

// Barrier is a reusable rendezvous point for a fixed number of parties.
// No party returns from Wait until all parties of the current phase have
// arrived; the barrier then resets itself for the next phase.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	phase   uint64
	broken  bool
}

// NewBarrier returns a barrier for parties participants. parties < 1 is
// treated as 1.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: max(parties, 1)}
	b.cond = sync.NewCond(&b.mu)

	return b
}

// Parties returns the number of participants per phase.
func (b *Barrier) Parties() int { return b.parties }

// Wait blocks until every participant has called Wait for the current phase.
// It returns false if the barrier is or becomes broken.
func (b *Barrier) Wait() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		return false
	}

	phase := b.phase

	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()

		return true
	}

	for phase == b.phase && !b.broken {
		b.cond.Wait()
	}

	return !b.broken
}

// Break releases every current and future waiter with false. A broken
// barrier stays broken.
func (b *Barrier) Break() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.broken = true
	b.cond.Broadcast()
}

// Broken reports whether Break was called.
func (b *Barrier) Broken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.broken
}
