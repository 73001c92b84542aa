package param

import (
	"errors"
	"testing"

	"github.com/nmxmxh/fimod/internal/fimoerr"
)

func declU32(name string, readGroup, writeGroup Group, def uint32) Decl {
	return Decl{
		Name:       name,
		Type:       U32,
		ReadGroup:  readGroup,
		WriteGroup: writeGroup,
		Default:    U32Value(def),
	}
}

func TestDeclareAndReadDefault(t *testing.T) {
	s := NewStore()
	if err := s.Declare(declU32("tick_rate", Public, Private, 60)); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	v, err := s.Read(RelationOther, "tick_rate", U32)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v.U32() != 60 {
		t.Fatalf("Read() = %d, want 60", v.U32())
	}
}

func TestDeclareDuplicateFails(t *testing.T) {
	s := NewStore()
	s.Declare(declU32("x", Public, Public, 0))
	err := s.Declare(declU32("x", Public, Public, 0))
	if !errors.Is(err, fimoerr.New(fimoerr.AlreadyPresent, "")) {
		t.Fatalf("expected AlreadyPresent, got %v", err)
	}
}

func TestDeclareTypeMismatchDefault(t *testing.T) {
	s := NewStore()
	err := s.Declare(Decl{Name: "x", Type: U32, Default: U8Value(1)})
	if !errors.Is(err, fimoerr.New(fimoerr.Malformed, "")) {
		t.Fatalf("expected Malformed, got %v", err)
	}
}

func TestReadNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Read(RelationOwner, "missing", U32)
	if !errors.Is(err, fimoerr.New(fimoerr.NotFound, "")) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestReadTypeMismatch(t *testing.T) {
	s := NewStore()
	s.Declare(declU32("x", Public, Public, 1))
	_, err := s.Read(RelationOwner, "x", U8)
	if !errors.Is(err, fimoerr.New(fimoerr.Malformed, "")) {
		t.Fatalf("expected Malformed, got %v", err)
	}
}

func TestAuthorizationMatrix(t *testing.T) {
	cases := []struct {
		group Group
		rel   Relation
		want  bool
	}{
		{Public, RelationOther, true},
		{Public, RelationDependent, true},
		{Public, RelationOwner, true},
		{Dependency, RelationOther, false},
		{Dependency, RelationDependent, true},
		{Dependency, RelationOwner, true},
		{Private, RelationOther, false},
		{Private, RelationDependent, false},
		{Private, RelationOwner, true},
	}
	for _, tc := range cases {
		if got := tc.rel.authorized(tc.group); got != tc.want {
			t.Errorf("authorized(rel=%d, group=%d) = %v, want %v", tc.rel, tc.group, got, tc.want)
		}
	}
}

func TestReadDeniedByGroup(t *testing.T) {
	s := NewStore()
	s.Declare(declU32("secret", Private, Private, 1))
	_, err := s.Read(RelationDependent, "secret", U32)
	if !errors.Is(err, fimoerr.New(fimoerr.AccessDenied, "")) {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
}

func TestWriteThenRead(t *testing.T) {
	s := NewStore()
	s.Declare(declU32("x", Public, Public, 1))
	if err := s.Write(RelationOwner, "x", U32Value(42)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	v, _ := s.Read(RelationOwner, "x", U32)
	if v.U32() != 42 {
		t.Fatalf("Read() after Write = %d, want 42", v.U32())
	}
}

func TestWriteDeniedByGroup(t *testing.T) {
	s := NewStore()
	s.Declare(declU32("x", Public, Dependency, 1))
	err := s.Write(RelationOther, "x", U32Value(2))
	if !errors.Is(err, fimoerr.New(fimoerr.AccessDenied, "")) {
		t.Fatalf("expected AccessDenied, got %v", err)
	}
}

func TestReadHookTransformsValue(t *testing.T) {
	s := NewStore()
	decl := declU32("doubled", Public, Public, 5)
	decl.ReadHook = func(cur Value) Value { return U32Value(cur.U32() * 2) }
	s.Declare(decl)
	v, err := s.Read(RelationOther, "doubled", U32)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v.U32() != 10 {
		t.Fatalf("Read() with hook = %d, want 10", v.U32())
	}
}

func TestWriteHookClampsValue(t *testing.T) {
	s := NewStore()
	decl := declU32("clamped", Public, Public, 0)
	decl.WriteHook = func(cur, proposed Value) Value {
		if proposed.U32() > 100 {
			return U32Value(100)
		}
		return proposed
	}
	s.Declare(decl)
	if err := s.Write(RelationOwner, "clamped", U32Value(999)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	v, _ := s.Read(RelationOwner, "clamped", U32)
	if v.U32() != 100 {
		t.Fatalf("Read() after clamped write = %d, want 100", v.U32())
	}
}

func TestSignedRoundTrip(t *testing.T) {
	v := I32Value(-7)
	if v.I32() != -7 {
		t.Fatalf("I32() = %d, want -7", v.I32())
	}
}

func TestNames(t *testing.T) {
	s := NewStore()
	s.Declare(declU32("a", Public, Public, 0))
	s.Declare(declU32("b", Public, Public, 0))
	names := s.Names()
	if len(names) != 2 {
		t.Fatalf("Names() = %v, want 2 entries", names)
	}
}
