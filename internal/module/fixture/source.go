package fixture

import "github.com/nmxmxh/fimod/internal/module"

// Source is an in-memory module.Source over a fixed descriptor list, the
// synthetic counterpart to a directory scan or current-binary scan.
type Source struct {
	descriptors []module.ExportDescriptor
}

// NewSource wraps descriptors as a Source.
func NewSource(descriptors ...module.ExportDescriptor) *Source {
	return &Source{descriptors: descriptors}
}

// ForEachExport implements module.Source.
func (s *Source) ForEachExport(filter func(module.ExportDescriptor) bool, yield func(module.ExportDescriptor) error) error {
	for _, d := range s.descriptors {
		if filter != nil && !filter(d) {
			continue
		}
		if err := yield(d); err != nil {
			return err
		}
	}
	return nil
}
