// Package meshsource is a demo/test-only module.Source that fetches
// manifests from a peer over github.com/libp2p/go-libp2p, showing the
// Loading Set accept modules proposed from a non-filesystem,
// non-in-process source. It is not a production distribution mechanism —
// this only wires the dependency for an integration test/demo fixture.
package meshsource

import (
	"bytes"
	"context"
	"io"

	libp2p "github.com/libp2p/go-libp2p"
	libp2pHost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"

	"github.com/nmxmxh/fimod/internal/fimoerr"
	"github.com/nmxmxh/fimod/internal/modfile"
	"github.com/nmxmxh/fimod/internal/module"
)

// ProtocolID is the libp2p stream protocol a Host serves manifests on.
const ProtocolID = "/fimod/manifest/1.0.0"

// Host serves the static surface of the module.Source given to NewHost
// to any peer that opens a ProtocolID stream, encoded as a sequence of yaml.v3 manifest
// documents.
type Host struct {
	host libp2pHost.Host
}

// NewHost starts a libp2p host and registers a stream handler that
// writes one manifest document per descriptor src yields, in response
// to every incoming ProtocolID stream.
func NewHost(src module.Source) (*Host, error) {
	h, err := libp2p.New()
	if err != nil {
		return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "meshsource: failed to start libp2p host")
	}
	h.SetStreamHandler(ProtocolID, func(s network.Stream) {
		defer s.Close()
		_ = src.ForEachExport(nil, func(d module.ExportDescriptor) error {
			m, err := modfile.FromDescriptor(d)
			if err != nil {
				// Descriptors with modifiers or dynamic exports have no
				// document form; skip rather than fail the whole stream.
				return nil
			}
			return modfile.Encode(s, m)
		})
	})
	return &Host{host: h}, nil
}

// Addr returns this host's dialable multiaddress, including its peer ID.
func (h *Host) Addr() string {
	addrs := h.host.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0].String() + "/p2p/" + h.host.ID().String()
}

// Close shuts the host down.
func (h *Host) Close() error {
	return h.host.Close()
}

// PeerSource implements module.Source by dialing a peer's Host over
// ProtocolID and decoding every manifest document it streams back.
type PeerSource struct {
	host     libp2pHost.Host
	peerAddr string
}

// NewPeerSource builds a PeerSource that will dial peerAddr (a
// "/p2p/..." multiaddr, as returned by Host.Addr) using its own
// ephemeral libp2p host.
func NewPeerSource(peerAddr string) (*PeerSource, error) {
	h, err := libp2p.New()
	if err != nil {
		return nil, fimoerr.Wrap(fimoerr.LoadFailed, err, "meshsource: failed to start libp2p client host")
	}
	return &PeerSource{host: h, peerAddr: peerAddr}, nil
}

// Close shuts the client host down.
func (s *PeerSource) Close() error {
	return s.host.Close()
}

// ForEachExport implements module.Source by opening one ProtocolID
// stream, decoding the manifest documents it carries, and yielding the
// matching descriptors.
func (s *PeerSource) ForEachExport(filter func(module.ExportDescriptor) bool, yield func(module.ExportDescriptor) error) error {
	maddr, err := ma.NewMultiaddr(s.peerAddr)
	if err != nil {
		return fimoerr.Wrap(fimoerr.Malformed, err, "meshsource: malformed peer address "+s.peerAddr)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fimoerr.Wrap(fimoerr.Malformed, err, "meshsource: cannot extract peer info from "+s.peerAddr)
	}

	ctx := context.Background()
	if err := s.host.Connect(ctx, *info); err != nil {
		return fimoerr.Wrap(fimoerr.LoadFailed, err, "meshsource: cannot connect to "+s.peerAddr)
	}
	stream, err := s.host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		return fimoerr.Wrap(fimoerr.LoadFailed, err, "meshsource: cannot open stream to "+s.peerAddr)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return fimoerr.Wrap(fimoerr.LoadFailed, err, "meshsource: failed reading manifest stream")
	}

	dec := yamlDocDecoder(data)
	for {
		m, ok, err := dec.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
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
}

// docDecoder pulls successive yaml.v3 documents out of one byte stream;
// yaml.v3's Decoder already treats "---"-separated input as a document
// sequence, so this drives one *yaml.Decoder across repeated calls
// until it reports io.EOF.
type docDecoder struct {
	dec *yaml.Decoder
}

func yamlDocDecoder(data []byte) *docDecoder {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return &docDecoder{dec: dec}
}

func (d *docDecoder) next() (modfile.Manifest, bool, error) {
	var m modfile.Manifest
	err := d.dec.Decode(&m)
	if err == io.EOF {
		return modfile.Manifest{}, false, nil
	}
	if err != nil {
		return modfile.Manifest{}, false, fimoerr.Wrap(fimoerr.Malformed, err, "meshsource: malformed manifest document")
	}
	return m, true, nil
}
