package module

import "github.com/nmxmxh/fimod/internal/param"

// NewRoot creates a special Instance not backed by any descriptor, for
// bootstrapping code that must hold dependencies before any real module
// exists. It is registered in the dependency and namespace graphs
// immediately in the Live state, but is never added to the registry's
// by-name lookup: it is not discoverable by FindByName or FindBySymbol,
// only held directly by its creator.
// A process typically creates one root per Registry and keeps it for
// the process's lifetime; prune_instances never tears it down, since it
// never appears in the registry's instance map.
func (r *Registry) NewRoot() *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := newInfo("root", "bootstrap root instance", "", "", "")
	inst := &Instance{
		info:     info,
		registry: r,
		params:   param.NewStore(),
	}
	inst.depNodeID = r.depGraph.AddNode(info)
	inst.nsNodeID = r.nsGraph.AddNode(nsNode{Instance: info})
	info.markLive()
	return inst
}
