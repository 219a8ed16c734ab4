package pcap

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Go2NetShield/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	frames := []gopacket.SerializableLayer{
		&layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true},
		&layers.UDP{SrcPort: 5353, DstPort: 53},
	}
	for i, transport := range frames {
		proto := layers.IPProtocolTCP
		if _, ok := transport.(*layers.UDP); ok {
			proto = layers.IPProtocolUDP
		}
		ip := &layers.IPv4{
			Version: 4, IHL: 5, TTL: 64, Protocol: proto,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
		}
		switch l := transport.(type) {
		case *layers.TCP:
			require.NoError(t, l.SetNetworkLayerForChecksum(ip))
		case *layers.UDP:
			require.NoError(t, l.SetNetworkLayerForChecksum(ip))
		}
		ether := &layers.Ethernet{
			SrcMAC: net.HardwareAddr{0, 1, 2, 3, 4, 5}, DstMAC: net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, ether, ip, transport, gopacket.Payload("data")))

		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Second),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		require.NoError(t, w.WritePacket(ci, buf.Bytes()))
	}
	return path
}

func TestReader_ReadPackets(t *testing.T) {
	reader, err := NewReader(writeFixture(t), logrus.New())
	require.NoError(t, err)
	defer reader.Close()
	require.NoError(t, reader.SetFilter(DefaultFilter))
	assert.False(t, reader.Live())

	out := make(chan *model.PacketInfo)
	go reader.ReadPackets(context.Background(), out)

	var got []*model.PacketInfo
	for info := range out {
		got = append(got, info)
	}

	require.Len(t, got, 2)
	assert.Equal(t, model.ProtoTCP, got[0].FiveTuple.Protocol)
	assert.Equal(t, model.ProtoUDP, got[1].FiveTuple.Protocol)
	assert.Equal(t, time.Second, got[1].Timestamp.Sub(got[0].Timestamp))
}

func TestReader_StopsOnCancel(t *testing.T) {
	reader, err := NewReader(writeFixture(t), logrus.New())
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *model.PacketInfo)
	done := make(chan struct{})
	go func() {
		reader.ReadPackets(ctx, out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after cancellation")
	}
}

func TestNewReader_MissingFile(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.pcap"), logrus.New())
	assert.Error(t, err)
}
