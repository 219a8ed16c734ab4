package pcap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2NetShield/internal/engine/protocol"
	"Go2NetShield/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"
)

// DefaultFilter restricts capture to the transports the flow table tracks.
const DefaultFilter = "tcp or udp"

// Reader reads packets from a pcap file or a live interface.
type Reader struct {
	handle *pcap.Handle
	log    logrus.FieldLogger
	live   bool
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string, log logrus.FieldLogger) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", filePath, err)
	}
	return &Reader{handle: handle, log: log}, nil
}

// NewLiveReader opens a capture handle on a network interface.
func NewLiveReader(iface string, snapLen int32, promisc bool, log logrus.FieldLogger) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snapLen, promisc, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", iface, err)
	}
	return &Reader{handle: handle, log: log, live: true}, nil
}

// SetFilter applies a BPF filter expression to the handle.
func (r *Reader) SetFilter(expr string) error {
	if expr == "" {
		return nil
	}
	if err := r.handle.SetBPFFilter(expr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", expr, err)
	}
	return nil
}

// Live reports whether the reader captures from an interface.
func (r *Reader) Live() bool {
	return r.live
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadPackets parses every packet and sends the PacketInfo to out until the
// source is exhausted or ctx is cancelled. It closes out when done.
func (r *Reader) ReadPackets(ctx context.Context, out chan<- *model.PacketInfo) {
	defer close(out)

	source := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	packets := source.Packets()
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-packets:
			if !ok {
				return
			}
			info, err := protocol.ParsePacket(packet)
			if err != nil {
				// Unsupported link or network types are expected on a busy interface.
				if !errors.Is(err, protocol.ErrNotIP) && !errors.Is(err, protocol.ErrNotTransport) {
					r.log.WithError(err).Debug("Error parsing packet")
				}
				continue
			}
			select {
			case out <- info:
			case <-ctx.Done():
				return
			}
		}
	}
}
