package flowtable

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"Go2NetShield/internal/model"
)

// Config holds the flow table limits.
type Config struct {
	Timeout        time.Duration // idle time after which a flow is finalized
	TimeWindow     time.Duration // span of the per-host recent window
	HostWindowSize int           // capacity of the per-host count window
}

// Table is the set of in-progress flows plus per-host history. All methods
// are safe for concurrent use; a single mutex guards both structures.
type Table struct {
	cfg Config

	mu        sync.Mutex
	flows     map[Key]*State
	hosts     map[netip.Addr]*hostHistory
	watermark time.Time
	untracked uint64
}

// New creates an empty table.
func New(cfg Config) *Table {
	if cfg.HostWindowSize <= 0 {
		cfg.HostWindowSize = 100
	}
	return &Table{
		cfg:   cfg,
		flows: make(map[Key]*State),
		hosts: make(map[netip.Addr]*hostHistory),
	}
}

// OnPacket applies a packet to the table. It returns the finalized flow when
// the packet carried FIN or RST for a tracked connection.
func (t *Table) OnPacket(p *model.PacketInfo) (*Finalized, bool) {
	if p.FiveTuple.Protocol != model.ProtoTCP && p.FiveTuple.Protocol != model.ProtoUDP {
		t.countUntracked()
		return nil, false
	}
	key, err := NewKey(p.FiveTuple)
	if err != nil {
		t.countUntracked()
		return nil, false
	}
	src, _ := endpoint(p.FiveTuple.SrcIP, p.FiveTuple.SrcPort)

	t.mu.Lock()
	defer t.mu.Unlock()

	if p.Timestamp.After(t.watermark) {
		t.watermark = p.Timestamp
	}

	state, ok := t.flows[key]
	if !ok {
		if !initiates(p) {
			t.untracked++
			return nil, false
		}
		dst := key.Hi
		if src == key.Hi {
			dst = key.Lo
		}
		state = newState(src, dst, p)
		t.flows[key] = state
	}
	state.update(src == state.Src, p)

	if p.FiveTuple.Protocol == model.ProtoTCP && (p.Flags.Has(model.FlagFIN) || p.Flags.Has(model.FlagRST)) {
		return t.finalizeLocked(key, state, ReasonTermination, p.Timestamp), true
	}
	return nil, false
}

// SweepTimeouts finalizes every flow idle for longer than the configured
// timeout and forgets hosts whose history has gone stale.
func (t *Table) SweepTimeouts(now time.Time) []*Finalized {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Key
	for key, state := range t.flows {
		if now.Sub(state.LastSeen) > t.cfg.Timeout {
			expired = append(expired, key)
		}
	}
	out := t.finalizeAllLocked(expired, now)
	t.pruneHostsLocked(now)
	return out
}

func (t *Table) pruneHostsLocked(now time.Time) {
	for addr, h := range t.hosts {
		h.evict(now, t.cfg.TimeWindow)
		if h.stale(now, t.cfg.Timeout) {
			delete(t.hosts, addr)
		}
	}
}

// Flush finalizes every remaining flow as timed out. Used at the end of an
// offline capture.
func (t *Table) Flush() []*Finalized {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]Key, 0, len(t.flows))
	for key := range t.flows {
		keys = append(keys, key)
	}
	return t.finalizeAllLocked(keys, t.watermark)
}

func (t *Table) finalizeAllLocked(keys []Key, now time.Time) []*Finalized {
	// Deterministic order keeps history appends reproducible.
	sort.Slice(keys, func(i, j int) bool {
		a, b := t.flows[keys[i]], t.flows[keys[j]]
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.Before(b.LastSeen)
		}
		return keys[i].String() < keys[j].String()
	})
	out := make([]*Finalized, 0, len(keys))
	for _, key := range keys {
		out = append(out, t.finalizeLocked(key, t.flows[key], ReasonTimeout, now))
	}
	return out
}

func (t *Table) finalizeLocked(key Key, state *State, reason Reason, now time.Time) *Finalized {
	delete(t.flows, key)

	f := &Finalized{
		Key:     key,
		State:   state,
		Reason:  reason,
		Service: ServiceLabel(state.Dst.Port),
		Flag:    FlagLabel(state.Protocol, state.Flags, reason),
		At:      now,
	}

	h, ok := t.hosts[state.Dst.Addr]
	if !ok {
		h = &hostHistory{}
		t.hosts[state.Dst.Addr] = h
	}
	h.append(HistoryEntry{
		Timestamp: now,
		Service:   f.Service,
		Flag:      f.Flag,
		Src:       state.Src,
	}, t.cfg.HostWindowSize)
	h.evict(now, t.cfg.TimeWindow)
	f.History = h.snapshot()
	return f
}

func initiates(p *model.PacketInfo) bool {
	if p.FiveTuple.Protocol == model.ProtoUDP {
		return true
	}
	return p.Flags.Has(model.FlagSYN) && !p.Flags.Has(model.FlagACK)
}

func (t *Table) countUntracked() {
	t.mu.Lock()
	t.untracked++
	t.mu.Unlock()
}

// Len returns the number of in-progress flows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// Hosts returns the number of destination hosts with retained history.
func (t *Table) Hosts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hosts)
}

// Lookup returns a copy of the state tracked for key.
func (t *Table) Lookup(key Key) (*State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.flows[key]
	if !ok {
		return nil, false
	}
	return state.clone(), true
}

// Watermark returns the latest packet timestamp seen. Offline replays sweep
// against it instead of the wall clock.
func (t *Table) Watermark() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watermark
}

// Untracked returns how many packets were dropped without changing state.
func (t *Table) Untracked() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.untracked
}
