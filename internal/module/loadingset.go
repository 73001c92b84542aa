package module

import (
	"sync"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimofuture"
	"github.com/nmxmxh/fimod/internal/fimover"
)

// CommitState is a Loading Set's transaction phase.
type CommitState int

const (
	Open CommitState = iota
	Committing
	Settled
)

// ProposedModule is one module proposed into a Loading Set.
type ProposedModule struct {
	Name       string
	Descriptor ExportDescriptor
	Owner      *Instance

	resolved bool
	Instance *Instance // non-nil iff published
	SkipErr  error      // non-nil iff skipped
}

// Source is the abstraction the Loading Set depends on for bulk module
// discovery: a filesystem scan, a current-binary registry scan, or a
// synthetic/in-memory fixture all implement it the same way.
// internal/modfile, internal/meshsource and internal/module/fixture
// provide the concrete implementations; this package
// only depends on the interface, avoiding an import cycle.
type Source interface {
	ForEachExport(filter func(ExportDescriptor) bool, yield func(ExportDescriptor) error) error
}

// modulePollResult is what poll_module resolves to.
type modulePollResult struct {
	Info       *InstanceInfo
	Descriptor ExportDescriptor
	Skipped    bool
	SkipErr    error
}

// CommitResult is what a Loading Set's commit resolves to.
type CommitResult struct {
	// CommitID correlates this commit's structured log events end to
	// end: every EventPublish emitted while loading its modules, and the
	// EventCommitSettle emitted once it settles, carry the same value.
	CommitID  string
	Published []string
	Skipped   map[string]error
}

// LoadingSet is a transient, per-commit batch of proposed modules.
type LoadingSet struct {
	mu       sync.Mutex
	registry *Registry

	proposed map[string]*ProposedModule
	order    []string // preserves add_module call order for deterministic iteration

	state CommitState

	waiters      map[string][]fimofuture.Waker
	settleWakers []fimofuture.Waker
}

// NewSet creates an Open Loading Set bound to registry.
func NewSet(registry *Registry) *LoadingSet {
	return &LoadingSet{
		registry: registry,
		proposed: make(map[string]*ProposedModule),
		waiters:  make(map[string][]fimofuture.Waker),
	}
}

// AddModule proposes a single descriptor, validating it against the
// current runtime version and the modules already in this set. owner's
// binary lifetime is inherited by the proposed module; it may be nil for
// modules proposed directly by the caller rather than by another loaded
// instance.
func (s *LoadingSet) AddModule(owner *Instance, descriptor ExportDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		return fimoerr.Newf(fimoerr.InvalidState, "loading set is %v, not open", s.state)
	}
	if _, exists := s.proposed[descriptor.Name]; exists {
		return fimoerr.Newf(fimoerr.AlreadyPresent, "module %q already proposed in this set", descriptor.Name)
	}
	if err := descriptor.validate(s.registry.RuntimeVersion()); err != nil {
		return err
	}
	if err := s.checkDuplicateSymbols(descriptor); err != nil {
		return err
	}

	s.proposed[descriptor.Name] = &ProposedModule{Name: descriptor.Name, Descriptor: descriptor, Owner: owner}
	s.order = append(s.order, descriptor.Name)
	return nil
}

// checkDuplicateSymbols rejects any duplicate symbol identity within the
// set or against the live registry, as of proposal time.
func (s *LoadingSet) checkDuplicateSymbols(descriptor ExportDescriptor) error {
	allExports := make([]fimover.SymbolKey, 0, len(descriptor.Exports)+len(descriptor.DynamicExports))
	for _, e := range descriptor.Exports {
		allExports = append(allExports, e.Key)
	}
	for _, e := range descriptor.DynamicExports {
		allExports = append(allExports, e.Key)
	}
	for _, key := range allExports {
		s.registry.mu.RLock()
		_, live := s.registry.symbolIndex[key.Identity()]
		s.registry.mu.RUnlock()
		if live {
			return fimoerr.Newf(fimoerr.AlreadyPresent, "symbol %s already exported by a live module", key)
		}
		for _, other := range s.proposed {
			for _, existing := range append(append([]StaticExport{}, other.Descriptor.Exports...), dynamicToStatic(other.Descriptor.DynamicExports)...) {
				if existing.Key.Identity() == key.Identity() {
					return fimoerr.Newf(fimoerr.AlreadyPresent, "symbol %s already proposed by module %q", key, other.Name)
				}
			}
		}
	}
	return nil
}

func dynamicToStatic(d []DynamicExport) []StaticExport {
	out := make([]StaticExport, len(d))
	for i, e := range d {
		out[i] = StaticExport{Key: e.Key}
	}
	return out
}

// AddFromSource proposes every descriptor src yields that passes filter,
// via AddModule. A descriptor rejected by AddModule's validation is
// silently skipped rather than aborting the whole scan, since a bulk
// source (a directory of third-party modules, say) should not let one
// malformed manifest block the rest.
func (s *LoadingSet) AddFromSource(owner *Instance, src Source, filter func(ExportDescriptor) bool) error {
	return src.ForEachExport(filter, func(d ExportDescriptor) error {
		_ = s.AddModule(owner, d)
		return nil
	})
}

// ContainsModule reports whether name has been proposed in this set.
func (s *LoadingSet) ContainsModule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.proposed[name]
	return ok
}

// ContainsSymbol reports whether some proposed module in this set
// exports key's identity.
func (s *LoadingSet) ContainsSymbol(key fimover.SymbolKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proposed {
		for _, e := range p.Descriptor.Exports {
			if e.Key.Identity() == key.Identity() {
				return true
			}
		}
		for _, e := range p.Descriptor.DynamicExports {
			if e.Key.Identity() == key.Identity() {
				return true
			}
		}
	}
	return false
}

// pollModuleFuture implements poll_module as a genuine Future: pending
// until the named module is resolved during commit, or the whole set
// settles.
type pollModuleFuture struct {
	set  *LoadingSet
	name string
}

// PollModule returns a future that resolves once name has been resolved
// during commit (or the set has fully settled, with Info == nil meaning
// skipped or never proposed).
func (s *LoadingSet) PollModule(name string) fimofuture.Future[modulePollResult] {
	return &pollModuleFuture{set: s, name: name}
}

func (f *pollModuleFuture) Poll(w fimofuture.Waker) (modulePollResult, fimofuture.Status) {
	s := f.set
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposed[f.name]
	if (ok && p.resolved) || s.state == Settled {
		var result modulePollResult
		if ok {
			result = modulePollResult{Descriptor: p.Descriptor, SkipErr: p.SkipErr, Skipped: p.SkipErr != nil}
			if p.Instance != nil {
				result.Info = p.Instance.Info()
			}
		}
		return result, fimofuture.Ready
	}

	s.waiters[f.name] = append(s.waiters[f.name], w.Acquire())
	return modulePollResult{}, fimofuture.Pending
}

// wakeModule wakes anything polling name. Callers must hold s.mu.
func (s *LoadingSet) wakeModule(name string) {
	for _, w := range s.waiters[name] {
		w.WakeAndRelease()
	}
	delete(s.waiters, name)
}

// wakeAll wakes every still-pending poll_module waiter, used once the
// set settles.
func (s *LoadingSet) wakeAll() {
	for name, ws := range s.waiters {
		for _, w := range ws {
			w.WakeAndRelease()
		}
		delete(s.waiters, name)
	}
}
