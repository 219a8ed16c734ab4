//go:build linux

package enforcement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// NFTables drops inbound traffic from addresses added to two named sets.
type NFTables struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	conn  *nftables.Conn
	table *nftables.Table
	set4  *nftables.Set
	set6  *nftables.Set
}

// NewNFTables creates the inet table, both address sets and an input chain
// whose rules drop packets from set members. Existing rules in the chain are
// replaced.
func NewNFTables(tableName, chainName string, log logrus.FieldLogger) (*NFTables, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open nftables connection: %w", err)
	}

	table := conn.AddTable(&nftables.Table{Family: nftables.TableFamilyINet, Name: tableName})
	set4 := &nftables.Set{Table: table, Name: SetIPv4, KeyType: nftables.TypeIPAddr}
	set6 := &nftables.Set{Table: table, Name: SetIPv6, KeyType: nftables.TypeIP6Addr}
	if err := conn.AddSet(set4, nil); err != nil {
		return nil, fmt.Errorf("failed to add set %s: %w", SetIPv4, err)
	}
	if err := conn.AddSet(set6, nil); err != nil {
		return nil, fmt.Errorf("failed to add set %s: %w", SetIPv6, err)
	}

	policy := nftables.ChainPolicyAccept
	chain := conn.AddChain(&nftables.Chain{
		Name:     chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})
	conn.FlushChain(chain)
	conn.AddRule(&nftables.Rule{Table: table, Chain: chain, Exprs: dropFrom(unix.NFPROTO_IPV4, 12, 4, set4)})
	conn.AddRule(&nftables.Rule{Table: table, Chain: chain, Exprs: dropFrom(unix.NFPROTO_IPV6, 8, 16, set6)})

	if err := conn.Flush(); err != nil {
		return nil, fmt.Errorf("failed to install nftables ruleset: %w", err)
	}
	log.WithFields(logrus.Fields{"table": tableName, "chain": chainName}).Info("nftables enforcement ready")
	return &NFTables{log: log, conn: conn, table: table, set4: set4, set6: set6}, nil
}

// dropFrom matches the source address at offset in the network header
// against set and drops on a hit.
func dropFrom(family byte, offset, length uint32, set *nftables.Set) []expr.Any {
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{family}},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: offset, Len: length},
		&expr.Lookup{SourceRegister: 1, SetName: set.Name, SetID: set.ID},
		&expr.Counter{},
		&expr.Verdict{Kind: expr.VerdictDrop},
	}
}

func (n *NFTables) Block(_ context.Context, ip string) error {
	addr, err := parseIP(ip)
	if err != nil {
		return err
	}

	set := n.set4
	if addr.Is6() {
		set = n.set6
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.SetAddElements(set, []nftables.SetElement{{Key: addr.AsSlice()}}); err != nil {
		return fmt.Errorf("failed to queue %s for %s: %w", addr, set.Name, err)
	}
	if err := n.conn.Flush(); err != nil {
		return fmt.Errorf("failed to add %s to %s: %w", addr, set.Name, err)
	}
	n.log.WithFields(logrus.Fields{"ip": addr.String(), "set": set.Name}).Info("Address added to nftables block set")
	return nil
}
