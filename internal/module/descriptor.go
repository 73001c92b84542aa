package module

import (
	"context"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimofuture"
	"github.com/nmxmxh/fimod/internal/fimopath"
	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/param"
)

// Resource is a relative filesystem path, resolved against the owning
// module's installed directory at publication time.
type Resource struct {
	Path string
}

// Import declares a symbol a module requires; Key.Version is the minimum
// compatible version requested.
type Import struct {
	Key fimover.SymbolKey
}

// StaticExport is a symbol available as soon as the instance's
// constructor has returned.
type StaticExport struct {
	Key     fimover.SymbolKey
	Payload any
}

// DynamicExport is materialized after the instance's constructor runs,
// via its own constructor future, and torn down before any static export.
type DynamicExport struct {
	Key         fimover.SymbolKey
	Constructor func(ctx context.Context) fimofuture.Future[any]
	Destructor  func(payload any)
}

// DestructorModifier runs when the export descriptor itself is
// discarded, e.g. for a dynamically synthesized module.
type DestructorModifier struct {
	Data any
	Fn   func(data any)
}

// DependencyModifier declares a static dependency on a specific
// already-loaded instance, used when one module spawns another at
// runtime.
type DependencyModifier struct {
	Target *InstanceInfo
}

// InstanceStateModifier's constructor runs once and may allocate user
// state; its destructor runs after every export has been torn down.
type InstanceStateModifier struct {
	Constructor func(ctx context.Context) fimofuture.Future[any]
	Destructor  func(state any)
}

// StartEventModifier's Fn runs after the instance is fully published; a
// failure unloads the instance.
type StartEventModifier struct {
	Fn func(ctx context.Context, inst *Instance) fimofuture.Future[error]
}

// StopEventModifier's Fn runs synchronously before any export is torn
// down; it must not fail.
type StopEventModifier struct {
	Fn func(inst *Instance)
}

// Modifiers is the open-ended extension mechanism on a descriptor; exactly
// these five keys are recognized, each occurring at most once.
type Modifiers struct {
	Destructor    *DestructorModifier
	Dependency    *DependencyModifier
	InstanceState *InstanceStateModifier
	StartEvent    *StartEventModifier
	StopEvent     *StopEventModifier
}

// ExportDescriptor is the static, author-provided declaration of what a
// module offers and requires.
type ExportDescriptor struct {
	TargetRuntimeVersion fimover.Version
	Name                 string
	Description          string
	Author               string
	License              string

	Parameters     []param.Decl
	Resources      []Resource
	Namespaces     []string
	Imports        []Import
	Exports        []StaticExport
	DynamicExports []DynamicExport

	Modifiers Modifiers
}

// namespaceDeclared reports whether ns is either the global namespace or
// listed in d.Namespaces.
func (d *ExportDescriptor) namespaceDeclared(ns string) bool {
	if ns == fimover.GlobalNamespace {
		return true
	}
	for _, n := range d.Namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// validate checks everything that can be decided by looking at the
// descriptor alone, given the runtime's own version. Duplicate symbol
// identity against the set/registry is cross-module and checked by the
// Loading Set at proposal time instead.
func (d *ExportDescriptor) validate(runtimeVersion fimover.Version) error {
	if !runtimeVersion.Satisfies(d.TargetRuntimeVersion) {
		return fimoerr.Newf(fimoerr.VersionIncompatible,
			"module %q targets runtime %s, incompatible with running %s", d.Name, d.TargetRuntimeVersion, runtimeVersion)
	}
	if d.Name == "" {
		return fimoerr.New(fimoerr.Malformed, "module name must not be empty")
	}

	seenParams := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		if seenParams[p.Name] {
			return fimoerr.Newf(fimoerr.Malformed, "module %q: duplicate parameter %q", d.Name, p.Name)
		}
		seenParams[p.Name] = true
	}

	for _, r := range d.Resources {
		if err := fimopath.ValidateRelative(r.Path); err != nil {
			return fimoerr.Wrap(fimoerr.Malformed, err, "module "+d.Name+": invalid resource path")
		}
	}

	for _, imp := range d.Imports {
		if !d.namespaceDeclared(imp.Key.Namespace) {
			return fimoerr.Newf(fimoerr.Malformed,
				"module %q: import %q uses undeclared namespace %q", d.Name, imp.Key.Name, imp.Key.Namespace)
		}
	}
	for _, exp := range d.Exports {
		if !d.namespaceDeclared(exp.Key.Namespace) {
			return fimoerr.Newf(fimoerr.Malformed,
				"module %q: export %q uses undeclared namespace %q", d.Name, exp.Key.Name, exp.Key.Namespace)
		}
	}
	for _, exp := range d.DynamicExports {
		if !d.namespaceDeclared(exp.Key.Namespace) {
			return fimoerr.Newf(fimoerr.Malformed,
				"module %q: dynamic export %q uses undeclared namespace %q", d.Name, exp.Key.Name, exp.Key.Namespace)
		}
	}

	// At-most-one-of-each-kind is structurally enforced: Modifiers holds
	// single pointer fields, not slices.
	return nil
}
