// Package depgraph is the in-memory directed graph backing load-order and
// shutdown-order computation: a gonum simple.DirectedGraph over generic
// node/edge payloads, topologically sorted before use — the shape the
// module core needs for both its dependency and namespace edges.
package depgraph

import (
	"sync"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// NodeID is a stable handle to a node, independent of the payload it
// carries.
type NodeID uint64

// EdgeKey identifies an edge by its endpoints.
type EdgeKey struct {
	From, To NodeID
}

// Graph is a directed graph with per-node and per-edge payloads of type N
// and E, backed by gonum's simple.DirectedGraph and topo package.
type Graph[N any, E any] struct {
	mu       sync.RWMutex
	g        *simple.DirectedGraph
	nodes    map[NodeID]N
	edges    map[EdgeKey]E
	nextNode NodeID
}

// New creates an empty Graph.
func New[N any, E any]() *Graph[N, E] {
	return &Graph[N, E]{
		g:     simple.NewDirectedGraph(),
		nodes: make(map[NodeID]N),
		edges: make(map[EdgeKey]E),
	}
}

// AddNode inserts a new node carrying payload and returns its handle.
func (g *Graph[N, E]) AddNode(payload N) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextNode
	g.nextNode++
	g.addNodeLocked(id, payload)
	return id
}

func (g *Graph[N, E]) addNodeLocked(id NodeID, payload N) {
	g.g.AddNode(simple.Node(id))
	g.nodes[id] = payload
	if id >= g.nextNode {
		g.nextNode = id + 1
	}
}

// RemoveNode deletes a node and every edge incident to it. Removing a
// node that does not exist is an explicit error.
func (g *Graph[N, E]) RemoveNode(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return fimoerr.Newf(fimoerr.NotFound, "depgraph: node %d not found", id)
	}
	g.g.RemoveNode(int64(id))
	delete(g.nodes, id)
	for k := range g.edges {
		if k.From == id || k.To == id {
			delete(g.edges, k)
		}
	}
	return nil
}

// NodePayload returns the payload stored for id.
func (g *Graph[N, E]) NodePayload(id NodeID) (N, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.nodes[id]
	return v, ok
}

// SetEdge inserts (or replaces) the edge from->to, returning the previous
// payload if one existed.
func (g *Graph[N, E]) SetEdge(from, to NodeID, payload E) (old E, hadOld bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[from]; !ok {
		return old, false, fimoerr.Newf(fimoerr.NotFound, "depgraph: node %d not found", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return old, false, fimoerr.Newf(fimoerr.NotFound, "depgraph: node %d not found", to)
	}
	key := EdgeKey{From: from, To: to}
	old, hadOld = g.edges[key]
	g.g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	g.edges[key] = payload
	return old, hadOld, nil
}

// RemoveEdge deletes the edge from->to, returning its payload. Removing a
// non-existent edge is an explicit error.
func (g *Graph[N, E]) RemoveEdge(from, to NodeID) (E, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := EdgeKey{From: from, To: to}
	payload, ok := g.edges[key]
	if !ok {
		return payload, fimoerr.Newf(fimoerr.NotFound, "depgraph: edge %d->%d not found", from, to)
	}
	g.g.RemoveEdge(int64(from), int64(to))
	delete(g.edges, key)
	return payload, nil
}

// Edge looks up the payload of from->to.
func (g *Graph[N, E]) Edge(from, to NodeID) (E, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.edges[EdgeKey{From: from, To: to}]
	return v, ok
}

// OutNeighbors lists the nodes id has outgoing edges to.
func (g *Graph[N, E]) OutNeighbors(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	it := g.g.From(int64(id))
	out := make([]NodeID, 0, it.Len())
	for it.Next() {
		out = append(out, NodeID(it.Node().ID()))
	}
	return out
}

// InNeighbors lists the nodes with an outgoing edge into id.
func (g *Graph[N, E]) InNeighbors(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	it := g.g.To(int64(id))
	out := make([]NodeID, 0, it.Len())
	for it.Next() {
		out = append(out, NodeID(it.Node().ID()))
	}
	return out
}

// Sources lists every node with no incoming edges.
func (g *Graph[N, E]) Sources() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []NodeID
	it := g.g.Nodes()
	for it.Next() {
		n := it.Node()
		if g.g.To(n.ID()).Len() == 0 {
			out = append(out, NodeID(n.ID()))
		}
	}
	return out
}

// Sinks lists every node with no outgoing edges.
func (g *Graph[N, E]) Sinks() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []NodeID
	it := g.g.Nodes()
	for it.Next() {
		n := it.Node()
		if g.g.From(n.ID()).Len() == 0 {
			out = append(out, NodeID(n.ID()))
		}
	}
	return out
}

// Len reports the number of nodes in the graph.
func (g *Graph[N, E]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// IsAcyclic reports whether the graph currently has no cycles.
func (g *Graph[N, E]) IsAcyclic() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := topo.Sort(g.g)
	return err == nil
}

// TopoSort returns the nodes in topological order, or a WouldCycle error
// wrapping gonum's topo.Unorderable if the graph contains a cycle.
func (g *Graph[N, E]) TopoSort() ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sorted, err := topo.Sort(g.g)
	if err != nil {
		return nil, fimoerr.Wrap(fimoerr.WouldCycle, err, "depgraph: graph contains a cycle")
	}
	ids := make([]NodeID, len(sorted))
	for i, n := range sorted {
		ids[i] = NodeID(n.ID())
	}
	return ids, nil
}

// Cycles returns every elementary cycle in the graph, as found by
// topo.DirectedCyclesIn, each as the node sequence along that cycle.
func (g *Graph[N, E]) Cycles() [][]NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cycles := topo.DirectedCyclesIn(g.g)
	out := make([][]NodeID, len(cycles))
	for i, cycle := range cycles {
		ids := make([]NodeID, len(cycle))
		for j, n := range cycle {
			ids[j] = NodeID(n.ID())
		}
		out[i] = ids
	}
	return out
}

// ReachableSubgraph performs a depth-first walk from start and returns a
// fresh Graph containing exactly the reachable nodes and the edges between
// them, plus the old-id -> new-id mapping. It is used to compute the
// shutdown order of a subtree rooted at start.
func (g *Graph[N, E]) ReachableSubgraph(start NodeID) (*Graph[N, E], map[NodeID]NodeID) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[NodeID]bool)
	var order []NodeID
	var dfs func(NodeID)
	dfs = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		it := g.g.From(int64(id))
		for it.Next() {
			dfs(NodeID(it.Node().ID()))
		}
	}
	if _, ok := g.nodes[start]; ok {
		dfs(start)
	}

	sub := New[N, E]()
	oldToNew := make(map[NodeID]NodeID, len(order))
	for _, id := range order {
		oldToNew[id] = sub.AddNode(g.nodes[id])
	}
	for _, id := range order {
		it := g.g.From(int64(id))
		for it.Next() {
			to := NodeID(it.Node().ID())
			if !visited[to] {
				continue
			}
			payload := g.edges[EdgeKey{From: id, To: to}]
			sub.SetEdge(oldToNew[id], oldToNew[to], payload)
		}
	}
	return sub, oldToNew
}

// Reverse returns a new Graph with every edge direction flipped, preserving
// node IDs and payloads. Used to walk shutdown order as the reverse of
// publication order.
func (g *Graph[N, E]) Reverse() *Graph[N, E] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rev := New[N, E]()
	it := g.g.Nodes()
	for it.Next() {
		id := NodeID(it.Node().ID())
		rev.addNodeLocked(id, g.nodes[id])
	}
	eit := g.g.Edges()
	for eit.Next() {
		e := eit.Edge()
		from := NodeID(e.From().ID())
		to := NodeID(e.To().ID())
		payload := g.edges[EdgeKey{From: from, To: to}]
		rev.g.SetEdge(simple.Edge{F: simple.Node(to), T: simple.Node(from)})
		rev.edges[EdgeKey{From: to, To: from}] = payload
	}
	return rev
}

// ClearEdges removes every edge but keeps all nodes.
func (g *Graph[N, E]) ClearEdges() {
	g.mu.Lock()
	defer g.mu.Unlock()
	eit := g.g.Edges()
	var doomed []EdgeKey
	for eit.Next() {
		e := eit.Edge()
		doomed = append(doomed, EdgeKey{From: NodeID(e.From().ID()), To: NodeID(e.To().ID())})
	}
	for _, k := range doomed {
		g.g.RemoveEdge(int64(k.From), int64(k.To))
		delete(g.edges, k)
	}
}

// HasEdge reports whether an edge from->to exists.
func (g *Graph[N, E]) HasEdge(from, to NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.g.HasEdgeFromTo(int64(from), int64(to))
}
