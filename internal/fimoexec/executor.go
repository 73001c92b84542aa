// Package fimoexec is the cooperative task executor the module core polls
// futures on, brought in-repo rather than pulled from a separate linked
// scheduler library: each spawned future is driven to completion on its
// own goroutine, polling it and parking on a channel-backed Waker between
// polls.
package fimoexec

import (
	"context"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimofuture"
)

// Block drives f to completion on the calling goroutine, parking on its
// waker's signal channel between polls. It never returns until f is
// Ready.
func Block[T any](f fimofuture.Future[T]) T {
	w, signal := fimofuture.NewChanWaker()
	defer w.Release()
	for {
		v, status := f.Poll(w)
		if status == fimofuture.Ready {
			return v
		}
		<-signal
	}
}

// BlockContext drives f to completion, but aborts with a Cancelled error
// if ctx is done first. On abort, f.Deinit is called if f implements
// Canceller.
func BlockContext[T any](ctx context.Context, f fimofuture.Future[T]) (T, error) {
	w, signal := fimofuture.NewChanWaker()
	defer w.Release()
	for {
		v, status := f.Poll(w)
		if status == fimofuture.Ready {
			return v, nil
		}
		select {
		case <-signal:
		case <-ctx.Done():
			if c, ok := f.(fimofuture.Canceller); ok {
				c.Deinit()
			}
			var zero T
			return zero, fimoerr.Wrap(fimoerr.Cancelled, ctx.Err(), "future cancelled before completion")
		}
	}
}

// Handle is a cancellable, background-driven future spawned onto an
// Executor. Cancelling a Handle before it reaches Ready runs the
// underlying future's Deinit.
type Handle[T any] struct {
	result chan T
	cancel context.CancelFunc
	done   chan struct{}
}

// Wait blocks until the spawned future completes and returns its result.
func (h *Handle[T]) Wait() T {
	v := <-h.result
	return v
}

// Cancel requests cancellation of the in-flight future. If it has not
// yet reached Ready, its Deinit runs and Wait never receives a value.
func (h *Handle[T]) Cancel() {
	h.cancel()
}

// Done reports a channel closed once the spawned goroutine has exited,
// whether by completion or cancellation.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Executor runs futures on background goroutines.
type Executor struct{}

// New creates an Executor. It holds no state of its own today (each Spawn
// gets its own goroutine); it exists as the single named collaborator the
// rest of the core depends on, so a future bounded worker-pool
// implementation can replace the body without touching call sites.
func New() *Executor { return &Executor{} }

// Spawn begins driving f on a new goroutine and returns a Handle that can
// be waited on or cancelled.
func Spawn[T any](e *Executor, f fimofuture.Future[T]) *Handle[T] {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle[T]{
		result: make(chan T, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		v, err := BlockContext(ctx, f)
		if err == nil {
			h.result <- v
		}
	}()
	return h
}
