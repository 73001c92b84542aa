package fimoexec

import (
	"context"
	"testing"
	"time"

	"github.com/nmxmxh/fimod/internal/fimofuture"
)

func TestBlockDrivesPendingFutureToReady(t *testing.T) {
	polls := 0
	f := fimofuture.Func[string](func(w fimofuture.Waker) (string, fimofuture.Status) {
		polls++
		if polls < 3 {
			go w.Acquire().WakeAndRelease()
			return "", fimofuture.Pending
		}
		return "done", fimofuture.Ready
	})
	if got := Block[string](f); got != "done" {
		t.Fatalf("Block() = %q, want done", got)
	}
	if polls != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
}

type cancelTrackingFuture struct {
	deinited bool
}

func (f *cancelTrackingFuture) Poll(fimofuture.Waker) (int, fimofuture.Status) {
	return 0, fimofuture.Pending
}
func (f *cancelTrackingFuture) Deinit() { f.deinited = true }

func TestBlockContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &cancelTrackingFuture{}
	done := make(chan struct{})
	go func() {
		_, err := BlockContext[int](ctx, f)
		if err == nil {
			t.Error("expected cancellation error")
		}
		close(done)
	}()
	cancel()
	<-done
	if !f.deinited {
		t.Fatal("expected Deinit to run on cancellation")
	}
}

func TestSpawnAndWait(t *testing.T) {
	e := New()
	h := Spawn[int](e, fimofuture.Done(5))
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("spawned future never completed")
	}
	if got := h.Wait(); got != 5 {
		t.Fatalf("Wait() = %d, want 5", got)
	}
}

func TestFutexNotifyWakesWaiters(t *testing.T) {
	fx := NewFutex()
	gen := fx.Generation()
	woke := make(chan uint64, 1)
	go func() {
		woke <- fx.Wait(gen)
	}()

	// Give the waiter time to register before notifying.
	for fx.pendingWaiters() == 0 {
		time.Sleep(time.Millisecond)
	}
	fx.Notify()

	select {
	case newGen := <-woke:
		if newGen != gen+1 {
			t.Fatalf("generation = %d, want %d", newGen, gen+1)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken")
	}
}

func TestFutexWaitReturnsImmediatelyIfGenerationAdvanced(t *testing.T) {
	fx := NewFutex()
	fx.Notify()
	gen := fx.Wait(0) // stale generation, should not block
	if gen != 1 {
		t.Fatalf("gen = %d, want 1", gen)
	}
}
