// Package flowtable tracks bidirectional TCP and UDP connections and emits
// them once they terminate or go idle.
package flowtable

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"Go2NetShield/internal/model"
)

// Endpoint is one side of a connection.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

func (e Endpoint) compare(o Endpoint) int {
	if c := e.Addr.Compare(o.Addr); c != 0 {
		return c
	}
	switch {
	case e.Port < o.Port:
		return -1
	case e.Port > o.Port:
		return 1
	}
	return 0
}

// Key identifies a flow independently of packet direction. Lo always sorts
// before or equal to Hi.
type Key struct {
	Lo, Hi   Endpoint
	Protocol uint8
}

// NewKey builds the canonical key for a five-tuple.
func NewKey(t model.FiveTuple) (Key, error) {
	src, err := endpoint(t.SrcIP, t.SrcPort)
	if err != nil {
		return Key{}, err
	}
	dst, err := endpoint(t.DstIP, t.DstPort)
	if err != nil {
		return Key{}, err
	}
	if src.compare(dst) > 0 {
		src, dst = dst, src
	}
	return Key{Lo: src, Hi: dst, Protocol: t.Protocol}, nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s<->%s/%s", k.Lo, k.Hi, model.ProtocolName(k.Protocol))
}

func endpoint(ip net.IP, port uint16) (Endpoint, error) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return Endpoint{}, fmt.Errorf("invalid IP address %v", ip)
	}
	return Endpoint{Addr: addr.Unmap(), Port: port}, nil
}

// Reason records why a flow left the table.
type Reason int

const (
	ReasonTermination Reason = iota
	ReasonTimeout
)

func (r Reason) String() string {
	if r == ReasonTimeout {
		return "timeout"
	}
	return "termination"
}

// State is the in-progress record of one connection. Src is the endpoint
// that sent the first packet.
type State struct {
	Src, Dst  Endpoint
	Protocol  uint8
	StartTime time.Time
	LastSeen  time.Time

	FwdLengths []int
	BwdLengths []int
	FwdTimes   []time.Time
	BwdTimes   []time.Time

	FwdBytes int64 // transport payload sent by Src
	BwdBytes int64 // transport payload sent by Dst

	Flags model.TCPFlags
}

func newState(src, dst Endpoint, p *model.PacketInfo) *State {
	return &State{
		Src:       src,
		Dst:       dst,
		Protocol:  p.FiveTuple.Protocol,
		StartTime: p.Timestamp,
		LastSeen:  p.Timestamp,
	}
}

func (s *State) update(fromSrc bool, p *model.PacketInfo) {
	if p.Timestamp.After(s.LastSeen) {
		s.LastSeen = p.Timestamp
	}
	if fromSrc {
		s.FwdLengths = append(s.FwdLengths, p.Length)
		s.FwdTimes = append(s.FwdTimes, p.Timestamp)
		s.FwdBytes += int64(p.PayloadLength)
	} else {
		s.BwdLengths = append(s.BwdLengths, p.Length)
		s.BwdTimes = append(s.BwdTimes, p.Timestamp)
		s.BwdBytes += int64(p.PayloadLength)
	}
	s.Flags |= p.Flags
}

func (s *State) clone() *State {
	c := *s
	c.FwdLengths = append([]int(nil), s.FwdLengths...)
	c.BwdLengths = append([]int(nil), s.BwdLengths...)
	c.FwdTimes = append([]time.Time(nil), s.FwdTimes...)
	c.BwdTimes = append([]time.Time(nil), s.BwdTimes...)
	return &c
}

// Finalized is a flow removed from the table together with the history of
// its destination host as it stood at that moment.
type Finalized struct {
	Key     Key
	State   *State
	Reason  Reason
	Service string
	Flag    string
	At      time.Time // finalization instant
	History Snapshot
}

// Land reports whether both endpoints are identical.
func (f *Finalized) Land() bool {
	return f.State.Src == f.State.Dst
}
