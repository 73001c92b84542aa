package module

import (
	"sync/atomic"

	"github.com/nmxmxh/fimod/internal/fimoerr"
)

// State is a point in an InstanceInfo's lifecycle.
type State int32

const (
	Loading State = iota
	Live
	MarkedUnloadable
	Unloading
	Dead
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Live:
		return "live"
	case MarkedUnloadable:
		return "marked_unloadable"
	case Unloading:
		return "unloading"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// InstanceInfo is the shareable, reference-counted metadata handle for a
// loaded module. It outlives its Instance: the back-reference from
// Instance to Info is the only owning link; Info never points back at a
// live Instance, breaking the cycle with a weak back-edge.
type InstanceInfo struct {
	Name        string
	Description string
	Author      string
	License     string
	ModulePath  string

	handleRefs atomic.Int64
	strongRefs atomic.Int64
	unloadable atomic.Bool
	state      atomic.Int32
}

// newInfo creates an Info in state Loading with one handle ref, held by
// the registry's instances map.
func newInfo(name, description, author, license, modulePath string) *InstanceInfo {
	info := &InstanceInfo{
		Name:        name,
		Description: description,
		Author:      author,
		License:     license,
		ModulePath:  modulePath,
	}
	info.handleRefs.Store(1)
	info.state.Store(int32(Loading))
	return info
}

// State returns the current lifecycle state.
func (i *InstanceInfo) State() State {
	return State(i.state.Load())
}

// StrongRefs returns the current strong reference count.
func (i *InstanceInfo) StrongRefs() int64 {
	return i.strongRefs.Load()
}

// HandleRefs returns the current handle reference count.
func (i *InstanceInfo) HandleRefs() int64 {
	return i.handleRefs.Load()
}

// IsLoaded reports whether the instance is usable (Loading or Live).
func (i *InstanceInfo) IsLoaded() bool {
	s := i.State()
	return s == Loading || s == Live
}

// IsUnloadable reports whether mark_unloadable has been called.
func (i *InstanceInfo) IsUnloadable() bool {
	return i.unloadable.Load()
}

// Acquire increments the handle reference count and returns i, for
// chaining at call sites that hand the handle to a new observer.
func (i *InstanceInfo) Acquire() *InstanceInfo {
	i.handleRefs.Add(1)
	return i
}

// Release decrements the handle reference count. Reaching zero means the
// Instance this Info describes is already Dead and no observer still
// holds a reference to the Info; there is no explicit deallocation step
// here since the garbage collector reclaims the Info once unreferenced.
func (i *InstanceInfo) Release() {
	i.handleRefs.Add(-1)
}

// TryAcquireStrong atomically increments strong_refs iff state is
// Loading or Live and the unloadable flag is not set; otherwise it fails.
func (i *InstanceInfo) TryAcquireStrong() bool {
	for {
		s := State(i.state.Load())
		if (s != Loading && s != Live) || i.unloadable.Load() {
			return false
		}
		cur := i.strongRefs.Load()
		if i.strongRefs.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// ReleaseStrong decrements strong_refs. It reports whether the instance
// became prune-eligible as a result (strong_refs reached zero while
// MarkedUnloadable) so the caller can opt to run a prune pass, though
// prune_instances is also safe to call unconditionally at any time.
func (i *InstanceInfo) ReleaseStrong() (becamePruneEligible bool) {
	remaining := i.strongRefs.Add(-1)
	return remaining == 0 && State(i.state.Load()) == MarkedUnloadable
}

// MarkUnloadable sets the unloadable flag and transitions Live ->
// MarkedUnloadable. It is idempotent: once the flag is set, repeated
// calls are a no-op.
func (i *InstanceInfo) MarkUnloadable() {
	if i.unloadable.Swap(true) {
		return
	}
	i.state.CompareAndSwap(int32(Live), int32(MarkedUnloadable))
}

// beginUnloading transitions Loading|Live|MarkedUnloadable -> Unloading.
// It is used internally by teardown and returns an error if the instance
// is already Unloading or Dead.
func (i *InstanceInfo) beginUnloading() error {
	for {
		s := State(i.state.Load())
		if s == Unloading || s == Dead {
			return fimoerr.Newf(fimoerr.InvalidState, "instance %q is already %s", i.Name, s)
		}
		if i.state.CompareAndSwap(int32(s), int32(Unloading)) {
			return nil
		}
	}
}

// finishUnloading transitions Unloading -> Dead.
func (i *InstanceInfo) finishUnloading() {
	i.state.Store(int32(Dead))
}

// markLive transitions Loading -> Live.
func (i *InstanceInfo) markLive() {
	i.state.CompareAndSwap(int32(Loading), int32(Live))
}
