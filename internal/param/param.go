// Package param is the per-instance parameter store: a typed cell per
// declared parameter, gated by a three-tier authorization matrix and
// optional read/write hooks. The concurrent name-keyed map guarded by a
// single RWMutex generalizes a SQLite-backed knowledge store into an
// in-memory typed cell table.
package param

import (
	"fmt"
	"sync"

	"github.com/nmxmxh/fimod/internal/fimoerr"
)

// Type is one of the eight integer types a parameter may hold.
type Type int

const (
	U8 Type = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
)

func (t Type) String() string {
	switch t {
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Group is an authorization tier for reading or writing a parameter.
type Group int

const (
	Public Group = iota
	Dependency
	Private
)

// Relation is the caller's standing relative to a parameter's owning
// instance. The module core computes this from the dependency graph and
// passes it in; the store itself holds no notion of instances or edges.
type Relation int

const (
	// RelationOwner is the instance that declared the parameter.
	RelationOwner Relation = iota
	// RelationDependent is an instance holding a Static or Dynamic
	// dependency edge onto the owner.
	RelationDependent
	// RelationOther is any other caller.
	RelationOther
)

func (r Relation) authorized(g Group) bool {
	switch g {
	case Public:
		return true
	case Dependency:
		return r == RelationOwner || r == RelationDependent
	case Private:
		return r == RelationOwner
	default:
		return false
	}
}

// Value is a typed parameter value. All eight declared types round-trip
// through a single 64-bit cell; Type records which accessor is valid.
type Value struct {
	Type Type
	raw  uint64
}

func U8Value(v uint8) Value   { return Value{Type: U8, raw: uint64(v)} }
func U16Value(v uint16) Value { return Value{Type: U16, raw: uint64(v)} }
func U32Value(v uint32) Value { return Value{Type: U32, raw: uint64(v)} }
func U64Value(v uint64) Value { return Value{Type: U64, raw: v} }
func I8Value(v int8) Value    { return Value{Type: I8, raw: uint64(uint8(v))} }
func I16Value(v int16) Value  { return Value{Type: I16, raw: uint64(uint16(v))} }
func I32Value(v int32) Value  { return Value{Type: I32, raw: uint64(uint32(v))} }
func I64Value(v int64) Value  { return Value{Type: I64, raw: uint64(v)} }

func (v Value) U8() uint8   { return uint8(v.raw) }
func (v Value) U16() uint16 { return uint16(v.raw) }
func (v Value) U32() uint32 { return uint32(v.raw) }
func (v Value) U64() uint64 { return v.raw }
func (v Value) I8() int8    { return int8(uint8(v.raw)) }
func (v Value) I16() int16  { return int16(uint16(v.raw)) }
func (v Value) I32() int32  { return int32(uint32(v.raw)) }
func (v Value) I64() int64  { return int64(v.raw) }

// ReadHook is invoked instead of direct memory access when present. It
// runs under the calling task and must neither call back into the
// registry nor block.
type ReadHook func(current Value) Value

// WriteHook is the write-side counterpart of ReadHook; it receives the
// cell's current value and the proposed new value and returns the value
// actually stored.
type WriteHook func(current, proposed Value) Value

// Decl is everything needed to initialize a parameter cell.
type Decl struct {
	Name       string
	Type       Type
	ReadGroup  Group
	WriteGroup Group
	Default    Value
	ReadHook   ReadHook
	WriteHook  WriteHook
}

type cell struct {
	mu    sync.Mutex
	decl  Decl
	value Value
}

// Store holds every parameter cell declared by one instance.
type Store struct {
	mu    sync.RWMutex
	cells map[string]*cell
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{cells: make(map[string]*cell)}
}

// Declare initializes a new cell from decl's default value. Declaring a
// name twice is an error.
func (s *Store) Declare(decl Decl) error {
	if decl.Default.Type != decl.Type {
		return fimoerr.Newf(fimoerr.Malformed, "param: declared type %s does not match default value type %s", decl.Type, decl.Default.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cells[decl.Name]; ok {
		return fimoerr.Newf(fimoerr.AlreadyPresent, "param: %q already declared", decl.Name)
	}
	s.cells[decl.Name] = &cell{decl: decl, value: decl.Default}
	return nil
}

// Read authorizes rel against the parameter's read group, checks
// expectedType against the declared type, and returns the current value
// (run through the read hook, if any).
func (s *Store) Read(rel Relation, name string, expectedType Type) (Value, error) {
	c, err := s.lookup(name)
	if err != nil {
		return Value{}, err
	}
	if !rel.authorized(c.decl.ReadGroup) {
		return Value{}, fimoerr.Newf(fimoerr.AccessDenied, "param: read of %q denied", name)
	}
	if expectedType != c.decl.Type {
		return Value{}, fimoerr.Newf(fimoerr.Malformed, "param: %q is %s, not %s", name, c.decl.Type, expectedType)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.value
	if c.decl.ReadHook != nil {
		v = c.decl.ReadHook(v)
	}
	return v, nil
}

// Write authorizes rel against the parameter's write group, checks
// value's type against the declared type, and stores the result (run
// through the write hook, if any).
func (s *Store) Write(rel Relation, name string, value Value) error {
	c, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !rel.authorized(c.decl.WriteGroup) {
		return fimoerr.Newf(fimoerr.AccessDenied, "param: write of %q denied", name)
	}
	if value.Type != c.decl.Type {
		return fimoerr.Newf(fimoerr.Malformed, "param: %q is %s, not %s", name, c.decl.Type, value.Type)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	final := value
	if c.decl.WriteHook != nil {
		final = c.decl.WriteHook(c.value, value)
	}
	c.value = final
	return nil
}

// Names returns every declared parameter name, in no particular order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.cells))
	for name := range s.cells {
		out = append(out, name)
	}
	return out
}

func (s *Store) lookup(name string) (*cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[name]
	if !ok {
		return nil, fimoerr.Newf(fimoerr.NotFound, "param: %q not declared", name)
	}
	return c, nil
}
