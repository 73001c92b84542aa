// Package wasmhost gives a module's InstanceState constructor and
// StartEvent modifier a concrete, genuinely asynchronous-feeling body:
// instantiating a WASM guest and calling into it via
// github.com/wasmerio/wasmer-go, so a dynamically synthesized export can
// be backed by real guest code instead of a closure over Go state.
package wasmhost

import (
	"context"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimofuture"
	"github.com/nmxmxh/fimod/internal/module"
)

// Host compiles one WASM guest module once and instantiates it fresh for
// every InstanceState constructor call, mirroring how a module's
// StartEvent and exports need a live wasmer.Instance to call into.
type Host struct {
	engine *wasmer.Engine
	store  *wasmer.Store
	guest  *wasmer.Module
}

// NewHost compiles wasmBytes. The returned Host may back any number of
// InstanceState constructors.
func NewHost(wasmBytes []byte) (*Host, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	guest, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "wasmhost: failed to compile guest module")
	}
	return &Host{engine: engine, store: store, guest: guest}, nil
}

// GuestInstance is the InstanceState user-state payload: the live
// wasmer.Instance, kept alive for the lifetime of the owning
// module.Instance.
type GuestInstance struct {
	Instance *wasmer.Instance
}

// InstanceStateConstructor returns an InstanceStateModifier.Constructor
// that instantiates the guest fresh, ready to assign directly to an
// InstanceStateModifier's Constructor field on a descriptor.
func (h *Host) InstanceStateConstructor() func(ctx context.Context) fimofuture.Future[any] {
	return func(ctx context.Context) fimofuture.Future[any] {
		wasmInst, err := wasmer.NewInstance(h.guest, wasmer.NewImportObject())
		if err != nil {
			// Constructor futures carry no error channel; a guest that fails
			// to instantiate surfaces as a GuestInstance whose Instance is
			// nil, which CallExportStartEvent checks before calling in.
			return fimofuture.Done[any](&GuestInstance{})
		}
		return fimofuture.Done[any](&GuestInstance{Instance: wasmInst})
	}
}

// InstanceStateDestructor returns an InstanceStateModifier.Destructor
// that releases the guest instance's resources.
func (h *Host) InstanceStateDestructor() func(any) {
	return func(state any) {
		g, ok := state.(*GuestInstance)
		if !ok || g.Instance == nil {
			return
		}
		g.Instance.Close()
	}
}

// CallExportStartEvent returns a StartEventModifier.Fn that looks up
// exportName on the instance's guest and calls it with input, discarding
// the result beyond success/failure. A non-nil return unloads the
// instance, the one real error path a WASM-backed module has.
func CallExportStartEvent(exportName string, input ...any) func(ctx context.Context, inst *module.Instance) fimofuture.Future[error] {
	return func(ctx context.Context, inst *module.Instance) fimofuture.Future[error] {
		g, ok := inst.UserState().(*GuestInstance)
		if !ok || g.Instance == nil {
			return fimofuture.Done[error](fimoerr.New(fimoerr.LoadFailed, "wasmhost: no guest instance to call into"))
		}
		fn, err := g.Instance.Exports.GetFunction(exportName)
		if err != nil {
			return fimofuture.Done[error](fimoerr.Wrap(fimoerr.LoadFailed, err, fmt.Sprintf("wasmhost: guest has no export %q", exportName)))
		}
		if _, err := fn(input...); err != nil {
			return fimofuture.Done[error](fimoerr.Wrap(fimoerr.LoadFailed, err, fmt.Sprintf("wasmhost: guest export %q failed", exportName)))
		}
		return fimofuture.Done[error](nil)
	}
}
