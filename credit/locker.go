/*
locker.go - Per-link exclusive sections with bounded acquisition

PURPOSE:
  The only shared mutable resource in the engine is a link's
  (sequence_no, balance) pair. Each link gets its own exclusive
  section; posts to different links never contend.

WHY CHANNELS, NOT sync.Mutex:
  Authorization must fail fast under contention instead of queueing
  indefinitely. A buffered channel of size one is a mutex that can be
  acquired with a deadline and a context, which sync.Mutex cannot.
*/
package credit

import (
	"context"
	"sync"
	"time"
)

// linkLocks hands out one semaphore per link id. Semaphores are created
// lazily and retained for the process lifetime; the set of active links
// is small and bounded by the owner's agent roster.
type linkLocks struct {
	mu    sync.Mutex
	locks map[LinkID]chan struct{}
}

func newLinkLocks() *linkLocks {
	return &linkLocks{locks: make(map[LinkID]chan struct{})}
}

func (ll *linkLocks) sem(id LinkID) chan struct{} {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	sem, ok := ll.locks[id]
	if !ok {
		sem = make(chan struct{}, 1)
		ll.locks[id] = sem
	}
	return sem
}

// acquire takes the link's exclusive section, waiting at most maxWait.
// Returns ErrConcurrencyConflict if the section stays contended, or the
// context error if the caller gave up first.
func (ll *linkLocks) acquire(ctx context.Context, id LinkID, maxWait time.Duration) (release func(), err error) {
	sem := ll.sem(id)

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, ErrConcurrencyConflict
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
