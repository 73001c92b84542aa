package module

import (
	"sync"

	"github.com/nmxmxh/fimod/internal/depgraph"
	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimolog"
	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/param"
)

// importBinding is a resolved import: the key as requested, and the
// owner/payload it resolved to during commit.
type importBinding struct {
	Requested fimover.SymbolKey
	Owner     *Instance
	Payload   any
}

// exportBinding is a single populated export slot.
type exportBinding struct {
	Key        fimover.SymbolKey
	Payload    any
	destructor func(any)
}

// Instance is a live, loaded module. Its single owner is the registry
// that published it; everything else holds it only through its Info
// handle.
type Instance struct {
	mu sync.Mutex

	info     *InstanceInfo
	registry *Registry

	params    *param.Store
	resources []string

	imports        []importBinding
	staticExports  []exportBinding
	dynamicExports []exportBinding

	userState               any
	instanceStateDestructor func(any)
	stopEvent               func(*Instance)

	depNodeID depgraph.NodeID
	nsNodeID  depgraph.NodeID
}

// Info returns the instance's shareable metadata handle.
func (inst *Instance) Info() *InstanceInfo { return inst.info }

// Resources returns the resolved resource paths, in declaration order.
func (inst *Instance) Resources() []string { return inst.resources }

// UserState returns the opaque state the InstanceState constructor, if
// any, allocated.
func (inst *Instance) UserState() any { return inst.userState }

// ParameterNames returns the names of every parameter inst declared.
func (inst *Instance) ParameterNames() []string {
	return inst.params.Names()
}

// DynamicExportKeys returns the symbol keys of inst's dynamic exports.
func (inst *Instance) DynamicExportKeys() []fimover.SymbolKey {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make([]fimover.SymbolKey, len(inst.dynamicExports))
	for i, e := range inst.dynamicExports {
		out[i] = e.Key
	}
	return out
}

// StaticExportSnapshot returns a copy of inst's static exports, for
// callers that need to re-describe an already-loaded instance (e.g.
// internal/modfile's registry-scan Source).
func (inst *Instance) StaticExportSnapshot() []StaticExport {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	out := make([]StaticExport, len(inst.staticExports))
	for i, e := range inst.staticExports {
		out[i] = StaticExport{Key: e.Key, Payload: e.Payload}
	}
	return out
}

// relationOf computes caller's authorization standing against inst for
// parameter access.
func (inst *Instance) relationOf(caller *Instance) param.Relation {
	if caller == inst {
		return param.RelationOwner
	}
	if caller == nil {
		return param.RelationOther
	}
	inst.registry.mu.RLock()
	defer inst.registry.mu.RUnlock()
	if inst.registry.depGraph.HasEdge(caller.depNodeID, inst.depNodeID) {
		return param.RelationDependent
	}
	return param.RelationOther
}

// ReadParam reads one of inst's own parameters on behalf of caller,
// authorized at the Dependency tier.
func (inst *Instance) ReadParam(caller *Instance, name string, expected param.Type) (param.Value, error) {
	return inst.params.Read(inst.relationOf(caller), name, expected)
}

// WriteParam writes one of inst's own parameters on behalf of caller.
func (inst *Instance) WriteParam(caller *Instance, name string, value param.Value) error {
	return inst.params.Write(inst.relationOf(caller), name, value)
}

// QueryNamespace reports whether inst has an edge into ns, and whether
// that edge is static.
func (inst *Instance) QueryNamespace(ns string) (exists, static bool) {
	reg := inst.registry
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	nsID, ok := reg.nsNodeID[ns]
	if !ok {
		return false, false
	}
	edge, ok := reg.nsGraph.Edge(inst.nsNodeID, nsID)
	if !ok {
		return false, false
	}
	return true, edge.Kind == Static
}

// AddNamespace adds a Dynamic namespace edge. ns must exist in the
// registry (some Live instance exports into it) and inst must not
// already have an edge into ns.
func (inst *Instance) AddNamespace(ns string) error {
	reg := inst.registry
	reg.mu.Lock()

	nsID, ok := reg.nsNodeID[ns]
	if !ok || reg.namespaceOccupants[ns] == 0 {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.NotFound, "namespace %q does not exist", ns)
	}
	if reg.nsGraph.HasEdge(inst.nsNodeID, nsID) {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.AlreadyPresent, "instance %q already has an edge into namespace %q", inst.info.Name, ns)
	}
	_, _, err := reg.nsGraph.SetEdge(inst.nsNodeID, nsID, DepEdge{Kind: Dynamic})
	reg.mu.Unlock()
	if err != nil {
		return err
	}

	reg.subscriber.Notify(fimolog.Event{Kind: fimolog.EventEdgeAdd, Fields: []fimolog.Field{
		fimolog.String("instance", inst.info.Name),
		fimolog.String("namespace", ns),
		fimolog.String("kind", Dynamic.String()),
	}})
	return nil
}

// RemoveNamespace removes a Dynamic namespace edge. Static edges cannot
// be removed through this API.
func (inst *Instance) RemoveNamespace(ns string) error {
	reg := inst.registry
	reg.mu.Lock()

	nsID, ok := reg.nsNodeID[ns]
	if !ok {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.NotFound, "instance %q has no edge into namespace %q", inst.info.Name, ns)
	}
	edge, ok := reg.nsGraph.Edge(inst.nsNodeID, nsID)
	if !ok {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.NotFound, "instance %q has no edge into namespace %q", inst.info.Name, ns)
	}
	if edge.Kind != Dynamic {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.InvalidState, "namespace edge %q on %q is static", ns, inst.info.Name)
	}
	_, err := reg.nsGraph.RemoveEdge(inst.nsNodeID, nsID)
	reg.mu.Unlock()
	if err != nil {
		return err
	}

	reg.subscriber.Notify(fimolog.Event{Kind: fimolog.EventEdgeRemove, Fields: []fimolog.Field{
		fimolog.String("instance", inst.info.Name),
		fimolog.String("namespace", ns),
	}})
	return nil
}

// QueryDependency reports whether inst has an edge onto other, and
// whether that edge is static.
func (inst *Instance) QueryDependency(other *Instance) (exists, static bool) {
	reg := inst.registry
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	edge, ok := reg.depGraph.Edge(inst.depNodeID, other.depNodeID)
	if !ok {
		return false, false
	}
	return true, edge.Kind == Static
}

// AddDependency adds a Dynamic dependency edge onto other, bumping
// other's strong_refs. other must be Live and must not already have an
// edge from inst; the resulting graph must remain acyclic. Dynamic edges
// are the only kind a caller can add through the public API; they can
// later be removed with RemoveDependency.
func (inst *Instance) AddDependency(other *Instance) error {
	return inst.addDependency(other, Dynamic)
}

// addStaticDependency registers an immutable dependency edge established
// while inst is loading, from an import binding or a declared
// DependencyModifier target. A Static edge cannot be removed through
// RemoveDependency; it is released only when inst itself unloads.
func (inst *Instance) addStaticDependency(other *Instance) error {
	return inst.addDependency(other, Static)
}

func (inst *Instance) addDependency(other *Instance, kind EdgeKind) error {
	reg := inst.registry
	reg.mu.Lock()

	if reg.depGraph.HasEdge(inst.depNodeID, other.depNodeID) {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.AlreadyPresent, "%q already depends on %q", inst.info.Name, other.info.Name)
	}
	if other.info.State() != Live {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.InvalidState, "%q is not live", other.info.Name)
	}
	if !other.info.TryAcquireStrong() {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.InvalidState, "%q is no longer acquirable", other.info.Name)
	}
	if _, _, err := reg.depGraph.SetEdge(inst.depNodeID, other.depNodeID, DepEdge{Kind: kind}); err != nil {
		other.info.ReleaseStrong()
		reg.mu.Unlock()
		return err
	}
	if !reg.depGraph.IsAcyclic() {
		reg.depGraph.RemoveEdge(inst.depNodeID, other.depNodeID)
		other.info.ReleaseStrong()
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.WouldCycle, "%q -> %q would create a cycle", inst.info.Name, other.info.Name)
	}
	reg.mu.Unlock()

	reg.subscriber.Notify(fimolog.Event{Kind: fimolog.EventEdgeAdd, Fields: []fimolog.Field{
		fimolog.String("from", inst.info.Name),
		fimolog.String("to", other.info.Name),
		fimolog.String("kind", kind.String()),
	}})
	return nil
}

// RemoveDependency removes a Dynamic dependency edge onto other and
// decrements its strong_refs.
func (inst *Instance) RemoveDependency(other *Instance) error {
	reg := inst.registry
	reg.mu.Lock()

	edge, ok := reg.depGraph.Edge(inst.depNodeID, other.depNodeID)
	if !ok {
		reg.mu.Unlock()
		return fimoerr.Newf(fimoerr.NotFound, "%q has no dependency edge onto %q", inst.info.Name, other.info.Name)
	}
	if edge.Kind != Static {
		if _, err := reg.depGraph.RemoveEdge(inst.depNodeID, other.depNodeID); err != nil {
			reg.mu.Unlock()
			return err
		}
		other.info.ReleaseStrong()
		reg.mu.Unlock()

		reg.subscriber.Notify(fimolog.Event{Kind: fimolog.EventEdgeRemove, Fields: []fimolog.Field{
			fimolog.String("from", inst.info.Name),
			fimolog.String("to", other.info.Name),
		}})
		return nil
	}
	reg.mu.Unlock()
	return fimoerr.Newf(fimoerr.InvalidState, "dependency edge %q -> %q is static", inst.info.Name, other.info.Name)
}

// LoadSymbol returns the payload of an exported symbol whose owner is a
// declared dependency of inst and whose identity matches key. The version
// compatibility check ran once, at commit time, when the import was
// resolved; LoadSymbol itself never re-triggers loading.
func (inst *Instance) LoadSymbol(key fimover.SymbolKey) (any, error) {
	for _, imp := range inst.imports {
		if imp.Requested.Identity() == key.Identity() {
			return imp.Payload, nil
		}
	}
	return nil, fimoerr.Newf(fimoerr.NotFound, "%q: symbol %s not among resolved imports", inst.info.Name, key)
}
