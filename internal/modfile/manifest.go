// Package modfile encodes and decodes module.fimo_module manifests, the
// on-disk declarative counterpart of an in-process ExportDescriptor. A
// manifest only ever describes the static surface: a descriptor's
// constructors, destructors and event modifiers are Go closures and
// cannot round-trip through a document, so a manifest covers the name,
// target version, metadata, namespaces, resources, parameters, imports
// and static exports only.
package modfile

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/module"
	"github.com/nmxmxh/fimod/internal/param"
)

// Manifest is the yaml.v3-decoded shape of a module.fimo_module file.
type Manifest struct {
	Name                 string            `yaml:"name"`
	TargetRuntimeVersion string            `yaml:"target_runtime_version"`
	Description          string            `yaml:"description,omitempty"`
	Author               string            `yaml:"author,omitempty"`
	License              string            `yaml:"license,omitempty"`

	Namespaces []string          `yaml:"namespaces,omitempty"`
	Resources  []string          `yaml:"resources,omitempty"`
	Parameters []ParameterRef    `yaml:"parameters,omitempty"`
	Imports    []SymbolRef       `yaml:"imports,omitempty"`
	Exports    []StaticExportRef `yaml:"exports,omitempty"`
}

// SymbolRef is the wire shape of a fimover.SymbolKey.
type SymbolRef struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace,omitempty"`
	Version   string `yaml:"version"`
}

// StaticExportRef is a SymbolRef plus its exported value.
type StaticExportRef struct {
	SymbolRef `yaml:",inline"`
	Payload   any `yaml:"payload"`
}

// ParameterRef is the wire shape of a param.Decl. Access groups are
// spelled out rather than numbered so a hand-edited manifest stays
// readable.
type ParameterRef struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	ReadGroup  string `yaml:"read_group"`
	WriteGroup string `yaml:"write_group"`
	Default    uint64 `yaml:"default"`
}

// Decode parses a manifest document from r.
func Decode(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fimoerr.Wrap(fimoerr.Malformed, err, "modfile: malformed manifest document")
	}
	return m, nil
}

// DecodeFile reads and decodes the manifest at path.
func DecodeFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fimoerr.Wrap(fimoerr.NotFound, err, "modfile: cannot open manifest "+path)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes m to w as a manifest document.
func Encode(w io.Writer, m Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(m); err != nil {
		return fimoerr.Wrap(fimoerr.Malformed, err, "modfile: cannot encode manifest")
	}
	return nil
}

// EncodeFile writes m to path, creating or truncating it.
func EncodeFile(path string, m Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fimoerr.Wrap(fimoerr.Malformed, err, "modfile: cannot create manifest "+path)
	}
	defer f.Close()
	return Encode(f, m)
}

// ToDescriptor converts m into an ExportDescriptor the Loading Set can
// propose directly. It carries no Modifiers and no DynamicExports: those
// are always supplied by whatever Go code loads the manifest (see
// internal/wasmhost for one such supplier).
func (m Manifest) ToDescriptor() (module.ExportDescriptor, error) {
	target, err := fimover.Parse(m.TargetRuntimeVersion)
	if err != nil {
		return module.ExportDescriptor{}, fimoerr.Wrap(fimoerr.Malformed, err, "modfile: manifest "+m.Name+" has a malformed target_runtime_version")
	}

	d := module.ExportDescriptor{
		TargetRuntimeVersion: target,
		Name:                 m.Name,
		Description:          m.Description,
		Author:               m.Author,
		License:              m.License,
		Namespaces:           m.Namespaces,
	}
	for _, p := range m.Resources {
		d.Resources = append(d.Resources, module.Resource{Path: p})
	}
	for _, p := range m.Parameters {
		decl, err := p.toDecl()
		if err != nil {
			return module.ExportDescriptor{}, fimoerr.Wrap(fimoerr.Malformed, err, "modfile: manifest "+m.Name+" parameter "+p.Name)
		}
		d.Parameters = append(d.Parameters, decl)
	}
	for _, ref := range m.Imports {
		key, err := ref.toKey()
		if err != nil {
			return module.ExportDescriptor{}, fimoerr.Wrap(fimoerr.Malformed, err, "modfile: manifest "+m.Name+" import "+ref.Name)
		}
		d.Imports = append(d.Imports, module.Import{Key: key})
	}
	for _, ref := range m.Exports {
		key, err := ref.SymbolRef.toKey()
		if err != nil {
			return module.ExportDescriptor{}, fimoerr.Wrap(fimoerr.Malformed, err, "modfile: manifest "+m.Name+" export "+ref.Name)
		}
		d.Exports = append(d.Exports, module.StaticExport{Key: key, Payload: ref.Payload})
	}
	return d, nil
}

// FromDescriptor builds the manifest form of d's static surface. It
// returns an error if d carries Modifiers or DynamicExports, since those
// have no document representation.
func FromDescriptor(d module.ExportDescriptor) (Manifest, error) {
	if d.Modifiers != (module.Modifiers{}) {
		return Manifest{}, fimoerr.Newf(fimoerr.Malformed, "modfile: %q has modifiers, which cannot be serialized to a manifest", d.Name)
	}
	if len(d.DynamicExports) != 0 {
		return Manifest{}, fimoerr.Newf(fimoerr.Malformed, "modfile: %q has dynamic exports, which cannot be serialized to a manifest", d.Name)
	}

	m := Manifest{
		Name:                 d.Name,
		TargetRuntimeVersion: d.TargetRuntimeVersion.String(),
		Description:          d.Description,
		Author:               d.Author,
		License:              d.License,
		Namespaces:           d.Namespaces,
	}
	for _, r := range d.Resources {
		m.Resources = append(m.Resources, r.Path)
	}
	for _, p := range d.Parameters {
		m.Parameters = append(m.Parameters, parameterRefFromDecl(p))
	}
	for _, imp := range d.Imports {
		m.Imports = append(m.Imports, symbolRefFromKey(imp.Key))
	}
	for _, exp := range d.Exports {
		m.Exports = append(m.Exports, StaticExportRef{SymbolRef: symbolRefFromKey(exp.Key), Payload: exp.Payload})
	}
	return m, nil
}

func (r SymbolRef) toKey() (fimover.SymbolKey, error) {
	v, err := fimover.Parse(r.Version)
	if err != nil {
		return fimover.SymbolKey{}, err
	}
	return fimover.SymbolKey{Name: r.Name, Namespace: r.Namespace, Version: v}, nil
}

func symbolRefFromKey(k fimover.SymbolKey) SymbolRef {
	return SymbolRef{Name: k.Name, Namespace: k.Namespace, Version: k.Version.String()}
}

var paramTypes = map[string]param.Type{
	"u8": param.U8, "u16": param.U16, "u32": param.U32, "u64": param.U64,
	"i8": param.I8, "i16": param.I16, "i32": param.I32, "i64": param.I64,
}

var paramGroups = map[string]param.Group{
	"public": param.Public, "dependency": param.Dependency, "private": param.Private,
}

func (p ParameterRef) toDecl() (param.Decl, error) {
	typ, ok := paramTypes[p.Type]
	if !ok {
		return param.Decl{}, fmt.Errorf("unknown parameter type %q", p.Type)
	}
	readGroup, ok := paramGroups[p.ReadGroup]
	if !ok {
		return param.Decl{}, fmt.Errorf("unknown read_group %q", p.ReadGroup)
	}
	writeGroup, ok := paramGroups[p.WriteGroup]
	if !ok {
		return param.Decl{}, fmt.Errorf("unknown write_group %q", p.WriteGroup)
	}
	return param.Decl{
		Name:       p.Name,
		Type:       typ,
		ReadGroup:  readGroup,
		WriteGroup: writeGroup,
		Default:    valueFromRaw(typ, p.Default),
	}, nil
}

// valueFromRaw rebuilds a typed Value from its 64-bit wire form, the
// same shape every typed constructor in param.Value stores internally.
func valueFromRaw(typ param.Type, raw uint64) param.Value {
	switch typ {
	case param.U8:
		return param.U8Value(uint8(raw))
	case param.U16:
		return param.U16Value(uint16(raw))
	case param.U32:
		return param.U32Value(uint32(raw))
	case param.U64:
		return param.U64Value(raw)
	case param.I8:
		return param.I8Value(int8(raw))
	case param.I16:
		return param.I16Value(int16(raw))
	case param.I32:
		return param.I32Value(int32(raw))
	case param.I64:
		return param.I64Value(int64(raw))
	default:
		return param.Value{}
	}
}

func parameterRefFromDecl(d param.Decl) ParameterRef {
	return ParameterRef{
		Name:       d.Name,
		Type:       d.Type.String(),
		ReadGroup:  groupName(d.ReadGroup),
		WriteGroup: groupName(d.WriteGroup),
		Default:    d.Default.U64(),
	}
}

func groupName(g param.Group) string {
	switch g {
	case param.Public:
		return "public"
	case param.Dependency:
		return "dependency"
	case param.Private:
		return "private"
	default:
		return "public"
	}
}
