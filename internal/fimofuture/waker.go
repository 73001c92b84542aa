package fimofuture

import "sync/atomic"

// Waker lets a pending Future arrange to be polled again once progress is
// possible. The callee never owns a Waker passed into Poll — it must
// Acquire its own reference before storing one past the call, and Release
// it when done.
type Waker interface {
	// Acquire returns a new reference to the same underlying waker,
	// safe to store and use from another goroutine.
	Acquire() Waker
	// Release drops a reference acquired via Acquire. The zero-value
	// reference passed into Poll must not be Released by the callee.
	Release()
	// Wake schedules a re-poll without consuming the caller's
	// reference.
	Wake()
	// WakeAndRelease schedules a re-poll and releases the caller's
	// reference in one call, saving a round-trip for the common
	// "I'm done with this waker" case.
	WakeAndRelease()
}

// chanWaker is a reference-counted Waker backed by a coalescing, capacity-1
// notification channel: multiple Wake calls before the executor drains the
// channel collapse into a single re-poll, which is sufficient because Poll
// re-derives its condition from scratch on every call.
type chanWaker struct {
	signal *chan struct{}
	refs   *atomic.Int64
}

// NewChanWaker creates a fresh chan-backed Waker with one outstanding
// reference, and returns the channel the executor should select on.
func NewChanWaker() (Waker, <-chan struct{}) {
	ch := make(chan struct{}, 1)
	refs := &atomic.Int64{}
	refs.Store(1)
	return &chanWaker{signal: &ch, refs: refs}, ch
}

func (w *chanWaker) Acquire() Waker {
	w.refs.Add(1)
	return &chanWaker{signal: w.signal, refs: w.refs}
}

func (w *chanWaker) Release() {
	w.refs.Add(-1)
}

func (w *chanWaker) Wake() {
	select {
	case *w.signal <- struct{}{}:
	default:
		// already has a pending wake queued; coalesce.
	}
}

func (w *chanWaker) WakeAndRelease() {
	w.Wake()
	w.Release()
}

// RefCount reports the number of outstanding references to the waker.
// Exposed for tests; the executor may use it to detect when every holder
// has let go of a waker without ever calling Wake, which would otherwise
// hang a poll loop forever.
func (w *chanWaker) RefCount() int64 {
	return w.refs.Load()
}
