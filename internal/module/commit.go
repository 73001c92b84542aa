package module

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nmxmxh/fimod/internal/depgraph"
	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimoexec"
	"github.com/nmxmxh/fimod/internal/fimofuture"
	"github.com/nmxmxh/fimod/internal/fimolog"
	"github.com/nmxmxh/fimod/internal/param"
)

// Commit freezes the set, resolves imports and dependency order, and
// loads each still-viable module level by level — modules with no
// in-set import between them load concurrently via errgroup, while
// levels themselves run in dependency order. It returns a Handle driven
// on a background goroutine; the ctx passed here is threaded through
// every per-module sub-future (InstanceState constructor, dynamic export
// constructors, StartEvent), so cancelling it stops whichever of them is
// in flight, unwinds and skips that module, and skips every later level
// with Cancelled — already-published modules from this commit stay
// published.
func (s *LoadingSet) Commit(ctx context.Context) *fimoexec.Handle[*CommitResult] {
	exec := fimoexec.New()
	return fimoexec.Spawn[*CommitResult](exec, fimofuture.Func[*CommitResult](func(fimofuture.Waker) (*CommitResult, fimofuture.Status) {
		return s.doCommit(ctx), fimofuture.Ready
	}))
}

func (s *LoadingSet) doCommit(ctx context.Context) *CommitResult {
	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return &CommitResult{Skipped: map[string]error{}}
	}
	s.state = Committing
	names := append([]string(nil), s.order...)
	s.mu.Unlock()

	commitID := uuid.New().String()
	result := &CommitResult{CommitID: commitID, Skipped: make(map[string]error)}

	// Step 2: import resolution, at the descriptor level.
	viable := make(map[string]*ProposedModule, len(names))
	for _, name := range names {
		s.mu.Lock()
		p := s.proposed[name]
		s.mu.Unlock()
		if err := s.resolveImports(p); err != nil {
			s.resolveSkip(p, err)
			result.Skipped[name] = err
			continue
		}
		viable[name] = p
	}

	// Step 3: dependency ordering and cycle detection over the still-
	// viable modules, grouped into levels: modules within one level share
	// no import edge between them and load concurrently.
	levels, cyclic := s.topoLevels(viable)
	for _, name := range cyclic {
		err := fimoerr.Newf(fimoerr.WouldCycle, "module %q participates in an import cycle", name)
		s.resolveSkip(viable[name], err)
		result.Skipped[name] = err
		delete(viable, name)
	}

	// Step 4: per-module load, level by level; within a level, every
	// module's imports are already satisfied by an earlier level or the
	// live registry, so they load concurrently via errgroup.
	var resultMu sync.Mutex
	for _, level := range levels {
		if ctx.Err() != nil {
			err := fimoerr.Wrap(fimoerr.Cancelled, ctx.Err(), "commit cancelled before this level loaded")
			for _, name := range level {
				s.resolveSkip(viable[name], err)
				resultMu.Lock()
				result.Skipped[name] = err
				resultMu.Unlock()
			}
			continue
		}

		var g errgroup.Group
		for _, name := range level {
			name, p := name, viable[name]
			g.Go(func() error {
				inst, err := s.loadModule(ctx, p, commitID)
				resultMu.Lock()
				defer resultMu.Unlock()
				if err != nil {
					s.resolveSkip(p, err)
					result.Skipped[name] = err
					return nil
				}
				s.resolveSuccess(p, inst)
				result.Published = append(result.Published, name)
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Strings(result.Published)

	s.mu.Lock()
	s.state = Settled
	s.wakeAll()
	s.mu.Unlock()

	s.registry.subscriber.Notify(fimolog.Event{Kind: fimolog.EventCommitSettle, Fields: []fimolog.Field{
		fimolog.String("commit_id", commitID),
		fimolog.Int("published", len(result.Published)),
		fimolog.Int("skipped", len(result.Skipped)),
	}})
	return result
}

// resolveImports binds every import in p's descriptor to either a live
// registry symbol or another proposed module's declared export, at the
// descriptor level. It does not touch instances; the actual payload
// binding happens per-module in loadModule, once the exporting module
// (topologically earlier) has been loaded.
func (s *LoadingSet) resolveImports(p *ProposedModule) error {
	for _, imp := range p.Descriptor.Imports {
		if _, _, err := s.registry.FindBySymbol(imp.Key); err == nil {
			continue
		}
		resolved := false
		s.mu.Lock()
		for _, other := range s.proposed {
			if other.Name == p.Name {
				continue
			}
			for _, e := range other.Descriptor.Exports {
				if e.Key.Satisfies(imp.Key) {
					resolved = true
				}
			}
			for _, e := range other.Descriptor.DynamicExports {
				if e.Key.Satisfies(imp.Key) {
					resolved = true
				}
			}
			if resolved {
				break
			}
		}
		s.mu.Unlock()
		if !resolved {
			return fimoerr.Newf(fimoerr.VersionIncompatible, "module %q: import %s could not be resolved", p.Name, imp.Key)
		}
	}
	return nil
}

// topoLevels builds a temporary graph over viable with an edge from each
// exporting module to each module that imports from it, then peels it
// into levels via a batched Kahn's algorithm: level 0 holds every module
// with no unresolved in-set import, level 1 what depends only on level
// 0, and so on. Modules within a level load concurrently since none of
// them import from another in the same level. Any module left over once
// no further level can be peeled participates in a cycle; both levels
// and the cycle list are lexicographically tie-broken for determinism.
func (s *LoadingSet) topoLevels(viable map[string]*ProposedModule) (levels [][]string, cyclic []string) {
	names := make([]string, 0, len(viable))
	for name := range viable {
		names = append(names, name)
	}
	sort.Strings(names)

	g := depgraph.New[string, struct{}]()
	ids := make(map[string]depgraph.NodeID, len(names))
	for _, name := range names {
		ids[name] = g.AddNode(name)
	}
	for _, name := range names {
		p := viable[name]
		for _, imp := range p.Descriptor.Imports {
			for _, other := range names {
				if other == name {
					continue
				}
				op := viable[other]
				exports := false
				for _, e := range op.Descriptor.Exports {
					if e.Key.Satisfies(imp.Key) {
						exports = true
					}
				}
				for _, e := range op.Descriptor.DynamicExports {
					if e.Key.Satisfies(imp.Key) {
						exports = true
					}
				}
				if exports {
					g.SetEdge(ids[other], ids[name], struct{}{})
				}
			}
		}
	}

	indegree := make(map[string]int, len(names))
	for _, name := range names {
		indegree[name] = len(g.InNeighbors(ids[name]))
	}
	remaining := make(map[string]bool, len(names))
	for _, name := range names {
		remaining[name] = true
	}

	for len(remaining) > 0 {
		var level []string
		for _, name := range names {
			if remaining[name] && indegree[name] == 0 {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			break
		}
		for _, name := range level {
			delete(remaining, name)
			for _, outID := range g.OutNeighbors(ids[name]) {
				payload, _ := g.NodePayload(outID)
				indegree[payload]--
			}
		}
		levels = append(levels, level)
	}

	for _, name := range names {
		if remaining[name] {
			cyclic = append(cyclic, name)
		}
	}
	return levels, cyclic
}

// loadModule runs the per-module load pipeline: populate state, construct
// dynamic exports, publish, wire dependency edges, then run StartEvent.
// Any failure unwinds whatever has happened so far and returns the
// error; nothing from a failed load is left reachable.
func (s *LoadingSet) loadModule(ctx context.Context, p *ProposedModule, commitID string) (*Instance, error) {
	d := p.Descriptor
	modulePath := ""
	if p.Owner != nil {
		modulePath = p.Owner.info.ModulePath
	}
	info := newInfo(d.Name, d.Description, d.Author, d.License, modulePath)

	inst := &Instance{
		info:      info,
		registry:  s.registry,
		params:    param.NewStore(),
		resources: make([]string, 0, len(d.Resources)),
	}

	for _, decl := range d.Parameters {
		if err := inst.params.Declare(decl); err != nil {
			return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "module "+d.Name+": parameter declaration failed")
		}
	}
	for _, r := range d.Resources {
		inst.resources = append(inst.resources, r.Path)
	}
	for _, e := range d.Exports {
		inst.staticExports = append(inst.staticExports, exportBinding{Key: e.Key, Payload: e.Payload})
	}

	for _, imp := range d.Imports {
		owner, payload, err := s.resolveImportBinding(p, imp)
		if err != nil {
			return nil, err
		}
		inst.imports = append(inst.imports, importBinding{Requested: imp.Key, Owner: owner, Payload: payload})
	}

	if ism := d.Modifiers.InstanceState; ism != nil {
		state, err := fimoexec.BlockContext[any](ctx, ism.Constructor(ctx))
		if err != nil {
			return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "module "+d.Name+": InstanceState constructor failed")
		}
		inst.userState = state
		inst.instanceStateDestructor = ism.Destructor
	}

	for _, e := range d.DynamicExports {
		payload, err := fimoexec.BlockContext[any](ctx, e.Constructor(ctx))
		if err != nil {
			s.preUnwind(inst)
			return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "module "+d.Name+": dynamic export "+e.Key.Name+" constructor failed")
		}
		inst.dynamicExports = append(inst.dynamicExports, exportBinding{Key: e.Key, Payload: payload, destructor: e.Destructor})
	}

	if se := d.Modifiers.StopEvent; se != nil {
		inst.stopEvent = se.Fn
	}

	s.registry.mu.Lock()
	err := s.registry.publishLocked(inst, d.Namespaces, commitID)
	s.registry.mu.Unlock()
	if err != nil {
		s.preUnwind(inst)
		return nil, err
	}
	inst.info.markLive()

	for _, imp := range inst.imports {
		if imp.Owner == nil {
			continue
		}
		if err := inst.addStaticDependency(imp.Owner); err != nil && !isAlreadyPresent(err) {
			s.unwind(inst)
			return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "module "+d.Name+": failed to register dependency edge")
		}
	}
	if dep := d.Modifiers.Dependency; dep != nil {
		if target, err := s.registry.findByInfo(dep.Target); err == nil {
			if err := inst.addStaticDependency(target); err != nil && !isAlreadyPresent(err) {
				s.unwind(inst)
				return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "module "+d.Name+": failed to register declared dependency")
			}
		}
	}

	if start := d.Modifiers.StartEvent; start != nil {
		startErr, err := fimoexec.BlockContext[error](ctx, start.Fn(ctx, inst))
		if err != nil {
			s.unwind(inst)
			return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "module "+d.Name+": StartEvent cancelled")
		}
		if startErr != nil {
			s.unwind(inst)
			return nil, fimoerr.Wrap(fimoerr.LoadFailed, startErr, "module "+d.Name+": StartEvent failed")
		}
	}

	return inst, nil
}

func isAlreadyPresent(err error) bool {
	kind, ok := fimoerr.Of(err)
	return ok && kind == fimoerr.AlreadyPresent
}

// resolveImportBinding resolves a single import to its owning instance
// and payload: against the live registry first, then against another
// proposed module's already-loaded Instance (guaranteed non-nil by the
// topological load order).
func (s *LoadingSet) resolveImportBinding(p *ProposedModule, imp Import) (*Instance, any, error) {
	if owner, payload, err := s.registry.FindBySymbol(imp.Key); err == nil {
		return owner, payload, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.proposed {
		if other.Instance == nil || other.Name == p.Name {
			continue
		}
		for _, e := range other.Instance.staticExports {
			if e.Key.Satisfies(imp.Key) {
				return other.Instance, e.Payload, nil
			}
		}
		for _, e := range other.Instance.dynamicExports {
			if e.Key.Satisfies(imp.Key) {
				return other.Instance, e.Payload, nil
			}
		}
	}
	return nil, nil, fimoerr.Newf(fimoerr.VersionIncompatible, "module %q: import %s did not resolve at load time", p.Name, imp.Key)
}

// preUnwind releases whatever a failed load constructed before the
// instance was ever published: its dynamic exports (in reverse) and its
// InstanceState, if any.
func (s *LoadingSet) preUnwind(inst *Instance) {
	for i := len(inst.dynamicExports) - 1; i >= 0; i-- {
		exp := inst.dynamicExports[i]
		if exp.destructor != nil {
			exp.destructor(exp.Payload)
		}
	}
	if inst.instanceStateDestructor != nil {
		inst.instanceStateDestructor(inst.userState)
	}
}

// unwind tears down an already-published instance via the registry's
// single teardown procedure.
func (s *LoadingSet) unwind(inst *Instance) {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	_ = s.registry.teardownLocked(inst)
}

func (s *LoadingSet) resolveSuccess(p *ProposedModule, inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Instance = inst
	p.resolved = true
	s.wakeModule(p.Name)
}

func (s *LoadingSet) resolveSkip(p *ProposedModule, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.SkipErr = err
	p.resolved = true
	s.wakeModule(p.Name)
}
