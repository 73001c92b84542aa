// Package module is the core of the runtime: Export Descriptors, live
// Instances and their Info handles, the Loading Set commit transaction,
// and the process-singleton Registry that publishes and prunes them. The
// registry itself is a name-keyed, RWMutex-guarded map with a Kahn's-
// algorithm topological sort and a version-compatibility helper, with the
// dependency/namespace graphs delegated to internal/depgraph and the
// transaction's async steps expressed as internal/fimofuture futures.
package module

import (
	"sort"
	"sync"

	"github.com/nmxmxh/fimod/internal/depgraph"
	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimolog"
	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/param"
)

// symbolEntry is one exported payload, kept in a per-identity list
// sorted by descending version so resolution picks the highest
// compatible match first.
type symbolEntry struct {
	Version fimover.Version
	Owner   *Instance
	Payload any
}

// Registry is the process-singleton of loaded instances.
type Registry struct {
	mu sync.RWMutex

	runtimeVersion fimover.Version
	subscriber     fimolog.Subscriber

	instances          map[string]*Instance
	symbolIndex        map[fimover.SymbolIdentity][]symbolEntry
	namespaceOccupants map[string]int

	depGraph *depgraph.Graph[*InstanceInfo, DepEdge]
	nsGraph  *depgraph.Graph[nsNode, DepEdge]

	nsNodeID map[string]depgraph.NodeID
}

// nsNode is a node payload in the namespace graph: either an instance's
// own node (Instance set) or a namespace's node (Namespace set, Instance
// nil).
type nsNode struct {
	Instance  *InstanceInfo
	Namespace string
}

// New creates an empty Registry targeting runtimeVersion. subscriber may
// be fimolog.Noop{} if tracing is not needed.
func New(runtimeVersion fimover.Version, subscriber fimolog.Subscriber) *Registry {
	if subscriber == nil {
		subscriber = fimolog.Noop{}
	}
	return &Registry{
		runtimeVersion:     runtimeVersion,
		subscriber:         subscriber,
		instances:          make(map[string]*Instance),
		symbolIndex:        make(map[fimover.SymbolIdentity][]symbolEntry),
		namespaceOccupants: make(map[string]int),
		depGraph:           depgraph.New[*InstanceInfo, DepEdge](),
		nsGraph:            depgraph.New[nsNode, DepEdge](),
		nsNodeID:           make(map[string]depgraph.NodeID),
	}
}

// RuntimeVersion returns the version new descriptors are checked against.
func (r *Registry) RuntimeVersion() fimover.Version { return r.runtimeVersion }

// FindByName returns the published instance named name, in whatever
// state it is in (Loading, Live or MarkedUnloadable).
func (r *Registry) FindByName(name string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	if !ok {
		return nil, fimoerr.Newf(fimoerr.NotFound, "module %q not found", name)
	}
	return inst, nil
}

// InstanceNames returns every published instance's name, sorted, for
// callers that need to enumerate the registry (e.g. a module source
// re-exporting the current binary's own instances).
func (r *Registry) InstanceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindBySymbol resolves key against the symbol index, picking the
// highest version whose export satisfies key.
func (r *Registry) FindBySymbol(key fimover.SymbolKey) (*Instance, any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.symbolIndex[key.Identity()]
	for _, e := range entries {
		candidate := fimover.SymbolKey{Name: key.Name, Namespace: key.Namespace, Version: e.Version}
		if candidate.Satisfies(key) {
			return e.Owner, e.Payload, nil
		}
	}
	return nil, nil, fimoerr.Newf(fimoerr.NotFound, "symbol %s not found", key)
}

// NamespaceExists reports whether some Live instance currently exports a
// symbol into ns.
func (r *Registry) NamespaceExists(ns string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namespaceOccupants[ns] > 0
}

// QueryParameter reports whether owner declares a parameter named name.
func (r *Registry) QueryParameter(owner, name string) bool {
	inst, err := r.FindByName(owner)
	if err != nil {
		return false
	}
	for _, n := range inst.params.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// ReadParameter reads owner's parameter name as an external, unrelated
// caller (Public tier only). Callers that are themselves instances should
// use Instance.ReadParam so the Dependency tier is honored.
func (r *Registry) ReadParameter(owner, name string, expected param.Type) (param.Value, error) {
	inst, err := r.FindByName(owner)
	if err != nil {
		return param.Value{}, err
	}
	return inst.params.Read(param.RelationOther, name, expected)
}

// WriteParameter is the external-caller counterpart of ReadParameter.
func (r *Registry) WriteParameter(owner, name string, value param.Value) error {
	inst, err := r.FindByName(owner)
	if err != nil {
		return err
	}
	return inst.params.Write(param.RelationOther, name, value)
}

// findByInfo looks up the instance owning info, used to resolve an
// explicit DependencyModifier target. Callers must not hold r.mu.
func (r *Registry) findByInfo(info *InstanceInfo) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		if inst.info == info {
			return inst, nil
		}
	}
	return nil, fimoerr.Newf(fimoerr.NotFound, "no published instance owns the given info handle")
}

// ensureNSNode returns the namespace graph node id for ns, creating it if
// this is the first time ns has been referenced. Callers must hold r.mu.
func (r *Registry) ensureNSNode(ns string) depgraph.NodeID {
	if id, ok := r.nsNodeID[ns]; ok {
		return id
	}
	id := r.nsGraph.AddNode(nsNode{Namespace: ns})
	r.nsNodeID[ns] = id
	return id
}

// publishLocked atomically adds inst to instances, its exports to symbol_index,
// bumps namespace_occupants, and links depGraph/nsGraph nodes for it.
// Called by the Loading Set commit under r.mu already held for writing.
func (r *Registry) publishLocked(inst *Instance, namespaces []string, commitID string) error {
	name := inst.info.Name
	if _, exists := r.instances[name]; exists {
		return fimoerr.Newf(fimoerr.AlreadyPresent, "module %q already published", name)
	}

	depID := r.depGraph.AddNode(inst.info)
	nsID := r.nsGraph.AddNode(nsNode{Instance: inst.info})
	inst.depNodeID = depID
	inst.nsNodeID = nsID

	for _, ns := range namespaces {
		target := r.ensureNSNode(ns)
		if _, _, err := r.nsGraph.SetEdge(nsID, target, DepEdge{Kind: Static}); err != nil {
			return err
		}
	}

	allExports := make([]exportBinding, 0, len(inst.staticExports)+len(inst.dynamicExports))
	allExports = append(allExports, inst.staticExports...)
	allExports = append(allExports, inst.dynamicExports...)
	for _, exp := range allExports {
		identity := exp.Key.Identity()
		entries := r.symbolIndex[identity]
		entries = append(entries, symbolEntry{Version: exp.Key.Version, Owner: inst, Payload: exp.Payload})
		sort.Slice(entries, func(i, j int) bool { return entries[i].Version.Compare(entries[j].Version) > 0 })
		r.symbolIndex[identity] = entries
		r.namespaceOccupants[exp.Key.Namespace]++
	}

	r.instances[name] = inst
	r.subscriber.Notify(fimolog.Event{Kind: fimolog.EventPublish, Fields: []fimolog.Field{
		fimolog.String("module", name),
		fimolog.String("commit_id", commitID),
	}})
	return nil
}

// unpublishLocked removes inst's exports from symbol_index and its
// namespace occupancy. Callers must hold r.mu for writing.
func (r *Registry) unpublishLocked(inst *Instance) {
	allExports := make([]exportBinding, 0, len(inst.staticExports)+len(inst.dynamicExports))
	allExports = append(allExports, inst.staticExports...)
	allExports = append(allExports, inst.dynamicExports...)
	for _, exp := range allExports {
		identity := exp.Key.Identity()
		entries := r.symbolIndex[identity]
		for i, e := range entries {
			if e.Owner == inst && e.Version.Compare(exp.Key.Version) == 0 {
				entries = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		if len(entries) == 0 {
			delete(r.symbolIndex, identity)
		} else {
			r.symbolIndex[identity] = entries
		}
		r.namespaceOccupants[exp.Key.Namespace]--
		if r.namespaceOccupants[exp.Key.Namespace] <= 0 {
			delete(r.namespaceOccupants, exp.Key.Namespace)
		}
	}
	delete(r.instances, inst.info.Name)
	r.subscriber.Notify(fimolog.Event{Kind: fimolog.EventUnpublish, Fields: []fimolog.Field{fimolog.String("module", inst.info.Name)}})
}

// teardownLocked runs the single-instance teardown procedure, in reverse
// of publication. Callers must hold r.mu for writing.
func (r *Registry) teardownLocked(inst *Instance) error {
	if err := inst.info.beginUnloading(); err != nil {
		return err
	}

	if inst.stopEvent != nil {
		inst.stopEvent(inst)
	}

	for i := len(inst.dynamicExports) - 1; i >= 0; i-- {
		exp := inst.dynamicExports[i]
		if exp.destructor != nil {
			exp.destructor(exp.Payload)
		}
	}

	r.unpublishLocked(inst)

	if inst.instanceStateDestructor != nil {
		inst.instanceStateDestructor(inst.userState)
	}

	for _, depID := range r.depGraph.OutNeighbors(inst.depNodeID) {
		if other, ok := r.depGraph.NodePayload(depID); ok {
			other.ReleaseStrong()
		}
	}
	r.depGraph.RemoveNode(inst.depNodeID)
	r.nsGraph.RemoveNode(inst.nsNodeID)

	inst.info.finishUnloading()
	// Drop the handle ref the instances map held since newInfo.
	inst.info.Release()
	r.subscriber.Notify(fimolog.Event{Kind: fimolog.EventCommitSettle, Fields: []fimolog.Field{fimolog.String("module", inst.info.Name), fimolog.String("phase", "teardown")}})
	return nil
}

// PruneInstances repeatedly tears down any instance that is
// MarkedUnloadable, has zero strong_refs, and has no incoming dependency
// edges, until no such instance remains. It is idempotent: calling it
// when nothing qualifies is a no-op.
func (r *Registry) PruneInstances() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		var victim *Instance
		for _, inst := range r.instances {
			if inst.info.State() != MarkedUnloadable {
				continue
			}
			if inst.info.StrongRefs() != 0 {
				continue
			}
			if len(r.depGraph.InNeighbors(inst.depNodeID)) != 0 {
				continue
			}
			victim = inst
			break
		}
		if victim == nil {
			return nil
		}
		r.subscriber.Notify(fimolog.Event{Kind: fimolog.EventPruneSelected, Fields: []fimolog.Field{fimolog.String("module", victim.info.Name)}})
		if err := r.teardownLocked(victim); err != nil {
			return err
		}
	}
}
