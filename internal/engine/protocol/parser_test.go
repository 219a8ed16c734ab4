package protocol

import (
	"net"
	"testing"
	"time"

	"Go2NetShield/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPacket(t *testing.T, ts time.Time, l ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, l...))

	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	packet.Metadata().Timestamp = ts
	packet.Metadata().CaptureLength = len(buf.Bytes())
	packet.Metadata().Length = len(buf.Bytes())
	return packet
}

func eth(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: t,
	}
}

func TestParsePacket_TCPv4(t *testing.T) {
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	info, err := ParsePacket(buildPacket(t, ts, eth(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload("hello")))
	require.NoError(t, err)

	assert.Equal(t, ts, info.Timestamp)
	assert.True(t, info.FiveTuple.SrcIP.Equal(net.IPv4(10, 0, 0, 1)))
	assert.True(t, info.FiveTuple.DstIP.Equal(net.IPv4(10, 0, 0, 2)))
	assert.Equal(t, uint16(40000), info.FiveTuple.SrcPort)
	assert.Equal(t, uint16(80), info.FiveTuple.DstPort)
	assert.Equal(t, model.ProtoTCP, info.FiveTuple.Protocol)
	assert.Equal(t, 5, info.PayloadLength)
	assert.Equal(t, model.FlagSYN|model.FlagACK, info.Flags)
	assert.Equal(t, "SA", info.Flags.String())
}

func TestParsePacket_UDPv6(t *testing.T) {
	ip := &layers.IPv6{
		Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::2"),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	info, err := ParsePacket(buildPacket(t, time.Now(), eth(layers.EthernetTypeIPv6), ip, udp, gopacket.Payload("abc")))
	require.NoError(t, err)

	assert.Equal(t, model.ProtoUDP, info.FiveTuple.Protocol)
	assert.Equal(t, uint16(53), info.FiveTuple.DstPort)
	assert.Equal(t, 3, info.PayloadLength)
	assert.Zero(t, info.Flags)
}

func TestParsePacket_RejectsNonTransport(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolICMPv4,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}

	_, err := ParsePacket(buildPacket(t, time.Now(), eth(layers.EthernetTypeIPv4), ip, icmp))
	assert.ErrorIs(t, err, ErrNotTransport)
}

func TestParsePacket_RejectsNonIP(t *testing.T) {
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: []byte{0, 1, 2, 3, 4, 5}, SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress: []byte{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{10, 0, 0, 2},
	}

	_, err := ParsePacket(buildPacket(t, time.Now(), eth(layers.EthernetTypeARP), arp))
	assert.ErrorIs(t, err, ErrNotIP)
}
