// Package fixture builds ExportDescriptors and in-memory module sources
// for tests: a fluent chain of AddX(...) calls terminated by Build().
package fixture

import (
	"context"

	"github.com/nmxmxh/fimod/internal/fimofuture"
	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/module"
	"github.com/nmxmxh/fimod/internal/param"
)

// Builder assembles one ExportDescriptor field by field.
type Builder struct {
	d module.ExportDescriptor
}

// NewDescriptor starts a descriptor named name, targeting runtimeVersion
// by default (overridable via Target).
func NewDescriptor(name string, runtimeVersion fimover.Version) *Builder {
	return &Builder{d: module.ExportDescriptor{
		Name:                 name,
		TargetRuntimeVersion: runtimeVersion,
	}}
}

// Target overrides the descriptor's declared target runtime version.
func (b *Builder) Target(v fimover.Version) *Builder {
	b.d.TargetRuntimeVersion = v
	return b
}

// Describe sets the descriptive metadata fields.
func (b *Builder) Describe(description, author, license string) *Builder {
	b.d.Description = description
	b.d.Author = author
	b.d.License = license
	return b
}

// Namespace declares ns as one this module may import from or export
// into, beyond the always-declared global namespace.
func (b *Builder) Namespace(ns string) *Builder {
	b.d.Namespaces = append(b.d.Namespaces, ns)
	return b
}

// Resource adds a resource path, relative to the module's install
// directory.
func (b *Builder) Resource(path string) *Builder {
	b.d.Resources = append(b.d.Resources, module.Resource{Path: path})
	return b
}

// Param declares a parameter with the given access groups and default.
func (b *Builder) Param(name string, typ param.Type, readGroup, writeGroup param.Group, def param.Value) *Builder {
	b.d.Parameters = append(b.d.Parameters, param.Decl{
		Name:       name,
		Type:       typ,
		ReadGroup:  readGroup,
		WriteGroup: writeGroup,
		Default:    def,
	})
	return b
}

// Import declares a required symbol, in the global namespace, at the
// given minimum compatible version.
func (b *Builder) Import(name string, version fimover.Version) *Builder {
	return b.ImportNS(name, fimover.GlobalNamespace, version)
}

// ImportNS is Import with an explicit namespace; the namespace must also
// be declared via Namespace unless it is the global namespace.
func (b *Builder) ImportNS(name, namespace string, version fimover.Version) *Builder {
	b.d.Imports = append(b.d.Imports, module.Import{
		Key: fimover.SymbolKey{Name: name, Namespace: namespace, Version: version},
	})
	return b
}

// Export adds a static export, available as soon as the instance
// constructs, carrying payload.
func (b *Builder) Export(name string, version fimover.Version, payload any) *Builder {
	return b.ExportNS(name, fimover.GlobalNamespace, version, payload)
}

// ExportNS is Export with an explicit namespace.
func (b *Builder) ExportNS(name, namespace string, version fimover.Version, payload any) *Builder {
	b.d.Exports = append(b.d.Exports, module.StaticExport{
		Key:     fimover.SymbolKey{Name: name, Namespace: namespace, Version: version},
		Payload: payload,
	})
	return b
}

// DynamicExport adds an export materialized by constructor once the
// instance is otherwise ready.
func (b *Builder) DynamicExport(name string, version fimover.Version, constructor func(context.Context) any, destructor func(any)) *Builder {
	b.d.DynamicExports = append(b.d.DynamicExports, module.DynamicExport{
		Key: fimover.SymbolKey{Name: name, Namespace: fimover.GlobalNamespace, Version: version},
		Constructor: func(ctx context.Context) fimofuture.Future[any] {
			return fimofuture.Done(constructor(ctx))
		},
		Destructor: destructor,
	})
	return b
}

// HangingDynamicExport adds a dynamic export whose constructor never
// resolves, for exercising the cancel-unwinds-the-load path: a commit
// whose ctx is cancelled while this constructor is in flight fails with
// Cancelled and unwinds the instance.
func (b *Builder) HangingDynamicExport(name string, version fimover.Version) *Builder {
	b.d.DynamicExports = append(b.d.DynamicExports, module.DynamicExport{
		Key:         fimover.SymbolKey{Name: name, Namespace: fimover.GlobalNamespace, Version: version},
		Constructor: func(context.Context) fimofuture.Future[any] { return hangingFuture[any]{} },
	})
	return b
}

// InstanceState sets the InstanceState constructor/destructor modifier.
func (b *Builder) InstanceState(constructor func(context.Context) any, destructor func(any)) *Builder {
	b.d.Modifiers.InstanceState = &module.InstanceStateModifier{
		Constructor: func(ctx context.Context) fimofuture.Future[any] {
			return fimofuture.Done(constructor(ctx))
		},
		Destructor: destructor,
	}
	return b
}

// StartEvent sets the StartEvent modifier. A non-nil returned error
// fails the load and unwinds the instance.
func (b *Builder) StartEvent(fn func(context.Context, *module.Instance) error) *Builder {
	b.d.Modifiers.StartEvent = &module.StartEventModifier{
		Fn: func(ctx context.Context, inst *module.Instance) fimofuture.Future[error] {
			return fimofuture.Done(fn(ctx, inst))
		},
	}
	return b
}

// FailingStartEvent sets a StartEvent modifier that always returns err.
func (b *Builder) FailingStartEvent(err error) *Builder {
	return b.StartEvent(func(context.Context, *module.Instance) error { return err })
}

// StopEvent sets the StopEvent modifier.
func (b *Builder) StopEvent(fn func(*module.Instance)) *Builder {
	b.d.Modifiers.StopEvent = &module.StopEventModifier{Fn: fn}
	return b
}

// Dependency sets an explicit DependencyModifier onto an already-loaded
// instance's Info.
func (b *Builder) Dependency(target *module.InstanceInfo) *Builder {
	b.d.Modifiers.Dependency = &module.DependencyModifier{Target: target}
	return b
}

// Build returns the assembled descriptor.
func (b *Builder) Build() module.ExportDescriptor {
	return b.d
}

// hangingFuture is permanently Pending: Poll ignores the waker, so it is
// never woken, and returns zero, Pending, every call.
type hangingFuture[T any] struct{}

func (hangingFuture[T]) Poll(w fimofuture.Waker) (T, fimofuture.Status) {
	var zero T
	return zero, fimofuture.Pending
}
