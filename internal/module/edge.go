package module

// EdgeKind distinguishes a declared, immutable edge from one added or
// removed at runtime, for both dependency and namespace edges.
type EdgeKind int

const (
	Static EdgeKind = iota
	Dynamic
)

func (k EdgeKind) String() string {
	if k == Static {
		return "static"
	}
	return "dynamic"
}

// DepEdge is the payload carried by both the dependency graph and the
// namespace graph.
type DepEdge struct {
	Kind EdgeKind
}
