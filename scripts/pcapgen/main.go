package main

import (
	"flag"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

var services = []layers.TCPPort{80, 443, 21, 22, 25, 8080}

type generator struct {
	w    *pcapgo.Writer
	rng  *rand.Rand
	now  time.Time
	sent int
}

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	flows := flag.Int("flows", 200, "Number of complete TCP conversations to generate")
	scans := flag.Int("scans", 50, "Number of unanswered SYN probes from the scanning host")
	udpFlows := flag.Int("udp", 20, "Number of UDP request/response pairs")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	log := logrus.New()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	pcapWriter := pcapgo.NewWriter(f)
	if err := pcapWriter.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	g := &generator{
		w:   pcapWriter,
		rng: rand.New(rand.NewSource(*seed)),
		now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	server := net.IP{10, 0, 0, 10}

	// 1. Normal clients completing SYN, data, FIN exchanges.
	for i := 0; i < *flows; i++ {
		client := net.IP{10, 0, 1, byte(1 + g.rng.Intn(200))}
		g.conversation(client, server, layers.TCPPort(1024+g.rng.Intn(60000)), services[g.rng.Intn(len(services))])
		g.advance(50 * time.Millisecond)
	}

	// 2. A single host sweeping ports with SYNs that are reset.
	scanner := net.IP{192, 0, 2, 66}
	for i := 0; i < *scans; i++ {
		sport := layers.TCPPort(40000 + i)
		dport := layers.TCPPort(1 + g.rng.Intn(1024))
		g.tcp(scanner, server, sport, dport, layers.TCP{SYN: true}, 0)
		g.advance(time.Millisecond)
		g.tcp(server, scanner, dport, sport, layers.TCP{RST: true, ACK: true}, 0)
		g.advance(2 * time.Millisecond)
	}

	// 3. UDP request/response pairs. These flows end by timeout.
	for i := 0; i < *udpFlows; i++ {
		client := net.IP{10, 0, 2, byte(1 + g.rng.Intn(200))}
		sport := layers.UDPPort(1024 + g.rng.Intn(60000))
		g.udp(client, server, sport, 53, 40+g.rng.Intn(40))
		g.advance(3 * time.Millisecond)
		g.udp(server, client, 53, sport, 80+g.rng.Intn(400))
		g.advance(20 * time.Millisecond)
	}

	log.Printf("Successfully generated %d packets into %s.", g.sent, *outputFile)
}

func (g *generator) advance(d time.Duration) {
	g.now = g.now.Add(d)
}

func (g *generator) conversation(client, server net.IP, sport, dport layers.TCPPort) {
	g.tcp(client, server, sport, dport, layers.TCP{SYN: true}, 0)
	g.advance(time.Millisecond)
	g.tcp(server, client, dport, sport, layers.TCP{SYN: true, ACK: true}, 0)
	g.advance(time.Millisecond)
	g.tcp(client, server, sport, dport, layers.TCP{ACK: true}, 0)

	for i := 0; i < 1+g.rng.Intn(6); i++ {
		g.advance(time.Duration(1+g.rng.Intn(20)) * time.Millisecond)
		g.tcp(client, server, sport, dport, layers.TCP{PSH: true, ACK: true}, 50+g.rng.Intn(400))
		g.advance(time.Duration(1+g.rng.Intn(5)) * time.Millisecond)
		g.tcp(server, client, dport, sport, layers.TCP{PSH: true, ACK: true}, 200+g.rng.Intn(1200))
	}

	g.advance(time.Millisecond)
	g.tcp(client, server, sport, dport, layers.TCP{FIN: true, ACK: true}, 0)
	g.advance(time.Millisecond)
	g.tcp(server, client, dport, sport, layers.TCP{FIN: true, ACK: true}, 0)
}

func (g *generator) tcp(src, dst net.IP, sport, dport layers.TCPPort, flags layers.TCP, payloadSize int) {
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	tcp := flags
	tcp.SrcPort, tcp.DstPort = sport, dport
	tcp.Seq = g.rng.Uint32()
	tcp.Window = 14600
	tcp.SetNetworkLayerForChecksum(ip)
	g.write(ip, &tcp, payloadSize)
}

func (g *generator) udp(src, dst net.IP, sport, dport layers.UDPPort, payloadSize int) {
	ip := ipv4(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: sport, DstPort: dport}
	udp.SetNetworkLayerForChecksum(ip)
	g.write(ip, udp, payloadSize)
}

func ipv4(src, dst net.IP, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{SrcIP: src, DstIP: dst, Version: 4, TTL: 64, Protocol: proto}
}

func (g *generator) write(ip *layers.IPv4, transport gopacket.SerializableLayer, payloadSize int) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	payload := make([]byte, payloadSize)
	g.rng.Read(payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		logrus.Fatalf("Failed to serialize layers: %v", err)
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     g.now,
		CaptureLength: len(buf.Bytes()),
		Length:        len(buf.Bytes()),
	}
	if err := g.w.WritePacket(ci, buf.Bytes()); err != nil {
		logrus.Fatalf("Failed to write packet: %v", err)
	}
	g.sent++
}
