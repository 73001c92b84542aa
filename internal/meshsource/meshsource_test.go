package meshsource_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/fimod/internal/fimover"
	"github.com/nmxmxh/fimod/internal/meshsource"
	"github.com/nmxmxh/fimod/internal/module"
)

// This is a demo/integration fixture, not a unit test of production
// code: it dials a real local libp2p host over loopback, the way a
// process fetching modules from a peer would.
func TestPeerSourceFetchesServedManifests(t *testing.T) {
	served := module.ExportDescriptor{
		TargetRuntimeVersion: fimover.New(1, 0, 0),
		Name:                 "mesh_served",
		Exports: []module.StaticExport{
			{Key: fimover.SymbolKey{Name: "mesh_sym", Version: fimover.New(1, 0, 0)}, Payload: "remote"},
		},
	}

	host, err := meshsource.NewHost(staticSource{served})
	require.NoError(t, err)
	defer host.Close()

	addr := host.Addr()
	require.NotEmpty(t, addr)

	client, err := meshsource.NewPeerSource(addr)
	require.NoError(t, err)
	defer client.Close()

	var got []module.ExportDescriptor
	deadline := time.Now().Add(10 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		got = nil
		lastErr = client.ForEachExport(nil, func(d module.ExportDescriptor) error {
			got = append(got, d)
			return nil
		})
		if lastErr == nil && len(got) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, lastErr)
	require.Len(t, got, 1)
	assert.Equal(t, "mesh_served", got[0].Name)
	require.Len(t, got[0].Exports, 1)
	assert.Equal(t, "remote", got[0].Exports[0].Payload)
}

type staticSource struct {
	d module.ExportDescriptor
}

func (s staticSource) ForEachExport(filter func(module.ExportDescriptor) bool, yield func(module.ExportDescriptor) error) error {
	if filter != nil && !filter(s.d) {
		return nil
	}
	return yield(s.d)
}
