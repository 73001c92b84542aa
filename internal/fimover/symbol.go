package fimover

// GlobalNamespace is the empty-string namespace every module may use
// without declaring it.
const GlobalNamespace = ""

// SymbolKey identifies an exported or imported value. Identity is
// (Name, Namespace); Version additionally participates in compatibility
// matching via Version.Satisfies.
type SymbolKey struct {
	Name      string
	Namespace string
	Version   Version
}

// Identity returns the (name, namespace) pair used as the uniqueness key
// for a symbol, independent of version.
func (k SymbolKey) Identity() SymbolIdentity {
	return SymbolIdentity{Name: k.Name, Namespace: k.Namespace}
}

// Satisfies reports whether k (an exported symbol's key) can serve as the
// resolution for an import requiring `required`.
func (k SymbolKey) Satisfies(required SymbolKey) bool {
	return k.Identity() == required.Identity() && k.Version.Satisfies(required.Version)
}

func (k SymbolKey) String() string {
	ns := k.Namespace
	if ns == "" {
		ns = "<global>"
	}
	return ns + "::" + k.Name + "@" + k.Version.String()
}

// SymbolIdentity is the version-independent half of a SymbolKey, used as a
// map key for uniqueness checks and the symbol index.
type SymbolIdentity struct {
	Name      string
	Namespace string
}

func (id SymbolIdentity) String() string {
	if id.Namespace == "" {
		return id.Name
	}
	return id.Namespace + "::" + id.Name
}
