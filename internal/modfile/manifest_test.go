package modfile_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/modfile"
	"github.com/nmxmxh/fimod/internal/module"
	"github.com/nmxmxh/fimod/internal/param"
)

func sampleDescriptor() module.ExportDescriptor {
	return module.ExportDescriptor{
		TargetRuntimeVersion: fimover.New(1, 0, 0),
		Name:                 "sample",
		Description:          "a sample module",
		Author:               "tester",
		License:              "MIT",
		Namespaces:           []string{"gfx"},
		Resources:            []module.Resource{{Path: "assets/icon.png"}},
		Parameters: []param.Decl{
			{Name: "level", Type: param.U8, ReadGroup: param.Dependency, WriteGroup: param.Private, Default: param.U8Value(3)},
		},
		Imports: []module.Import{
			{Key: fimover.SymbolKey{Name: "needed", Version: fimover.New(1, 0, 0)}},
		},
		Exports: []module.StaticExport{
			{Key: fimover.SymbolKey{Name: "sample_sym", Namespace: "gfx", Version: fimover.New(2, 1, 0)}, Payload: "hello"},
		},
	}
}

func TestDescriptorManifestRoundTrip(t *testing.T) {
	original := sampleDescriptor()

	m, err := modfile.FromDescriptor(original)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, modfile.Encode(&buf, m))

	decoded, err := modfile.Decode(&buf)
	require.NoError(t, err)

	roundTripped, err := decoded.ToDescriptor()
	require.NoError(t, err)

	assert.Equal(t, original.Name, roundTripped.Name)
	assert.Equal(t, original.TargetRuntimeVersion, roundTripped.TargetRuntimeVersion)
	assert.Equal(t, original.Description, roundTripped.Description)
	assert.Equal(t, original.Author, roundTripped.Author)
	assert.Equal(t, original.License, roundTripped.License)
	assert.Equal(t, original.Namespaces, roundTripped.Namespaces)
	if diff := cmp.Diff(original.Resources, roundTripped.Resources); diff != "" {
		t.Fatalf("resources changed across manifest round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Imports, roundTripped.Imports); diff != "" {
		t.Fatalf("imports changed across manifest round-trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original.Exports, roundTripped.Exports); diff != "" {
		t.Fatalf("exports changed across manifest round-trip (-want +got):\n%s", diff)
	}

	require.Len(t, roundTripped.Parameters, len(original.Parameters))
	for i, want := range original.Parameters {
		got := roundTripped.Parameters[i]
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.ReadGroup, got.ReadGroup)
		assert.Equal(t, want.WriteGroup, got.WriteGroup)
		assert.Equal(t, want.Default.U64(), got.Default.U64())
	}
}

func TestFromDescriptorRejectsModifiers(t *testing.T) {
	d := sampleDescriptor()
	d.Modifiers.StopEvent = &module.StopEventModifier{Fn: func(*module.Instance) {}}
	_, err := modfile.FromDescriptor(d)
	assert.Error(t, err)
}

func TestFromDescriptorRejectsDynamicExports(t *testing.T) {
	d := sampleDescriptor()
	d.DynamicExports = []module.DynamicExport{{Key: fimover.SymbolKey{Name: "x", Version: fimover.New(1, 0, 0)}}}
	_, err := modfile.FromDescriptor(d)
	assert.Error(t, err)
}

func TestDirSourceScansManifestFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := modfile.FromDescriptor(sampleDescriptor())
	require.NoError(t, err)
	require.NoError(t, modfile.EncodeFile(filepath.Join(dir, "sample.fimo_module"), m))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("not a manifest"), 0o644))

	src := modfile.NewDirSource(dir)
	var seen []string
	err = src.ForEachExport(nil, func(d module.ExportDescriptor) error {
		seen = append(seen, d.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sample"}, seen)
}

func TestRegistrySourceReExportsPublishedStaticSymbols(t *testing.T) {
	reg := module.New(fimover.New(1, 0, 0), nil)
	set := module.NewSet(reg)
	require.NoError(t, set.AddModule(nil, module.ExportDescriptor{
		TargetRuntimeVersion: fimover.New(1, 0, 0),
		Name:                 "provider",
		Exports: []module.StaticExport{
			{Key: fimover.SymbolKey{Name: "val", Version: fimover.New(1, 0, 0)}, Payload: 7},
		},
	}))
	result := set.Commit(context.Background()).Wait()
	require.Equal(t, []string{"provider"}, result.Published)

	src := modfile.NewRegistrySource(reg)
	var descriptors []module.ExportDescriptor
	require.NoError(t, src.ForEachExport(nil, func(d module.ExportDescriptor) error {
		descriptors = append(descriptors, d)
		return nil
	}))
	require.Len(t, descriptors, 1)
	assert.Equal(t, "provider", descriptors[0].Name)
	require.Len(t, descriptors[0].Exports, 1)
	assert.Equal(t, 7, descriptors[0].Exports[0].Payload)
}
