package modfile

import (
	"os"
	"path/filepath"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/module"
)

// Ext is the conventional file extension for an on-disk manifest.
const Ext = ".fimo_module"

// DirSource implements module.Source over every *.fimo_module file
// directly inside one directory. It does not recurse.
type DirSource struct {
	Dir string
}

// NewDirSource builds a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// ForEachExport implements module.Source.
func (s *DirSource) ForEachExport(filter func(module.ExportDescriptor) bool, yield func(module.ExportDescriptor) error) error {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return fimoerr.Wrap(fimoerr.NotFound, err, "modfile: cannot read directory "+s.Dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != Ext {
			continue
		}
		m, err := DecodeFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return err
		}
		d, err := m.ToDescriptor()
		if err != nil {
			return err
		}
		if filter != nil && !filter(d) {
			continue
		}
		if err := yield(d); err != nil {
			return err
		}
	}
	return nil
}

// RegistrySource implements module.Source over the static surface of
// every instance currently published in a Registry, the way a process
// might re-export its own already-loaded modules to a peer. Every
// published instance is yielded, described only by its name, the
// registry's runtime version and its static exports; its dynamic
// exports, modifiers, parameters, resources, imports and namespaces are
// not carried.
type RegistrySource struct {
	Registry *module.Registry
}

// NewRegistrySource wraps reg.
func NewRegistrySource(reg *module.Registry) *RegistrySource {
	return &RegistrySource{Registry: reg}
}

// ForEachExport implements module.Source.
func (s *RegistrySource) ForEachExport(filter func(module.ExportDescriptor) bool, yield func(module.ExportDescriptor) error) error {
	for _, name := range s.Registry.InstanceNames() {
		inst, err := s.Registry.FindByName(name)
		if err != nil {
			continue
		}
		d := module.ExportDescriptor{
			TargetRuntimeVersion: s.Registry.RuntimeVersion(),
			Name:                 inst.Info().Name,
			Exports:              inst.StaticExportSnapshot(),
		}
		if filter != nil && !filter(d) {
			continue
		}
		if err := yield(d); err != nil {
			return err
		}
	}
	return nil
}
