package capture

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(t *testing.T) gopacket.Packet {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2},
	}
	udp := layers.UDP{SrcPort: 1234, DstPort: 5678}
	require.NoError(t, udp.SetNetworkLayerForChecksum(&ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload([]byte("abc"))))

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	pkt.Metadata().CaptureInfo = gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	return pkt
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	w, err := NewWriter(path, layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	pkt := testFrame(t)
	require.NoError(t, w.WritePacket(pkt))
	require.NoError(t, w.WritePacket(pkt))
	assert.Equal(t, 2, w.Count())
	assert.Equal(t, path, w.Path())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, pkt.Data(), data)
	assert.Equal(t, len(pkt.Data()), ci.CaptureLength)

	_, _, err = r.ReadPacketData()
	require.NoError(t, err)
}

func TestWriterRejectsWritesAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	w, err := NewWriter(path, layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	assert.Error(t, w.WritePacket(testFrame(t)))
}

func TestWriterFillsMissingCaptureInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	w, err := NewWriter(path, layers.LinkTypeEthernet, 0)
	require.NoError(t, err)

	// A synthetic packet with no capture metadata still writes cleanly.
	pkt := testFrame(t)
	pkt.Metadata().CaptureInfo = gopacket.CaptureInfo{}
	require.NoError(t, w.WritePacket(pkt))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, len(data), ci.CaptureLength)
}
