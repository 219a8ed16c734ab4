package model

import (
	"net"
	"strings"
	"time"
)

// IANA protocol numbers the sensor cares about.
const (
	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// TCPFlags is a bit set of TCP control flags observed on a segment or a flow.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

var flagLetters = []struct {
	flag   TCPFlags
	letter byte
}{
	{FlagFIN, 'F'}, {FlagSYN, 'S'}, {FlagRST, 'R'},
	{FlagPSH, 'P'}, {FlagACK, 'A'}, {FlagURG, 'U'},
}

// Has reports whether every flag in x is set in f.
func (f TCPFlags) Has(x TCPFlags) bool {
	return f&x == x
}

// String renders the flags in scapy-like letter notation, e.g. "SA".
func (f TCPFlags) String() string {
	var b strings.Builder
	for _, fl := range flagLetters {
		if f.Has(fl.flag) {
			b.WriteByte(fl.letter)
		}
	}
	return b.String()
}

// PacketInfo holds the metadata extracted from a single packet.
type PacketInfo struct {
	Timestamp     time.Time
	FiveTuple     FiveTuple
	Length        int // bytes on the wire
	PayloadLength int // transport payload bytes
	Flags         TCPFlags
}

// ProtocolName returns the lowercase label used in feature vectors.
func ProtocolName(proto uint8) string {
	switch proto {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	default:
		return "other"
	}
}
