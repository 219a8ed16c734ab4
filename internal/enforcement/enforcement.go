// Package enforcement applies block decisions to the host firewall.
package enforcement

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"Go2NetShield/internal/config"
	"Go2NetShield/internal/model"

	"github.com/sirupsen/logrus"
)

// Set names used in the nftables table.
const (
	SetIPv4 = "blocked_ips"
	SetIPv6 = "blocked_ips6"
)

// New builds the gateway selected by cfg.
func New(cfg config.EnforcementConfig, log logrus.FieldLogger) (model.Enforcer, error) {
	switch cfg.Type {
	case "dryrun":
		log.Warn("Enforcement is in dry-run mode, no firewall rules will be written")
		return NewDryRun(log), nil
	case "nftables":
		g, err := NewNFTables(cfg.Table, cfg.Chain, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown enforcement type: '%s'", cfg.Type)
	}
}

func parseIP(ip string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid address %q: %w", ip, err)
	}
	return addr.Unmap(), nil
}

// DryRun records block requests without touching the firewall.
type DryRun struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	blocked map[netip.Addr]struct{}
}

// NewDryRun creates an empty dry-run gateway.
func NewDryRun(log logrus.FieldLogger) *DryRun {
	return &DryRun{log: log, blocked: make(map[netip.Addr]struct{})}
}

func (d *DryRun) Block(_ context.Context, ip string) error {
	addr, err := parseIP(ip)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.blocked[addr] = struct{}{}
	d.mu.Unlock()
	d.log.WithField("ip", addr.String()).Info("[dry-run] would block address")
	return nil
}

// Blocked returns every address passed to Block, sorted.
func (d *DryRun) Blocked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	addrs := make([]netip.Addr, 0, len(d.blocked))
	for a := range d.blocked {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
