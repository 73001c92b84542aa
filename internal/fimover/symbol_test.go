package fimover

import "testing"

func TestSymbolKeyIdentity(t *testing.T) {
	a := SymbolKey{Name: "foo", Namespace: "ns", Version: New(1, 0, 0)}
	b := SymbolKey{Name: "foo", Namespace: "ns", Version: New(2, 0, 0)}
	if a.Identity() != b.Identity() {
		t.Fatal("identity must ignore version")
	}
}

func TestSymbolKeySatisfies(t *testing.T) {
	exported := SymbolKey{Name: "s", Namespace: "", Version: New(1, 2, 0)}
	required := SymbolKey{Name: "s", Namespace: "", Version: New(1, 1, 0)}
	if !exported.Satisfies(required) {
		t.Fatal("expected compatible version to satisfy")
	}
	mismatchedNS := SymbolKey{Name: "s", Namespace: "other", Version: New(1, 2, 0)}
	if mismatchedNS.Satisfies(required) {
		t.Fatal("namespace mismatch must not satisfy")
	}
}
