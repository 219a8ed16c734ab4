package flowtable

import (
	"net"
	"testing"
	"time"

	"Go2NetShield/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	client = net.IPv4(192, 168, 1, 10)
	server = net.IPv4(192, 168, 1, 20)
	base   = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
)

func newTestTable() *Table {
	return New(Config{Timeout: 60 * time.Second, TimeWindow: 2 * time.Second, HostWindowSize: 3})
}

func tcp(ts time.Time, fromClient bool, srcPort uint16, flags model.TCPFlags, payload int) *model.PacketInfo {
	tuple := model.FiveTuple{SrcIP: client, DstIP: server, SrcPort: srcPort, DstPort: 80, Protocol: model.ProtoTCP}
	if !fromClient {
		tuple = model.FiveTuple{SrcIP: server, DstIP: client, SrcPort: 80, DstPort: srcPort, Protocol: model.ProtoTCP}
	}
	return &model.PacketInfo{Timestamp: ts, FiveTuple: tuple, Length: 54 + payload, PayloadLength: payload, Flags: flags}
}

func TestTable_SynDataFinProducesOneFlow(t *testing.T) {
	table := newTestTable()

	steps := []*model.PacketInfo{
		tcp(base, true, 40000, model.FlagSYN, 0),
		tcp(base.Add(10*time.Millisecond), false, 40000, model.FlagSYN|model.FlagACK, 0),
		tcp(base.Add(20*time.Millisecond), true, 40000, model.FlagACK|model.FlagPSH, 100),
		tcp(base.Add(30*time.Millisecond), false, 40000, model.FlagACK|model.FlagPSH, 300),
	}
	for _, p := range steps {
		fin, done := table.OnPacket(p)
		require.False(t, done)
		require.Nil(t, fin)
	}
	require.Equal(t, 1, table.Len(), "both directions must share one key")

	fin, done := table.OnPacket(tcp(base.Add(40*time.Millisecond), true, 40000, model.FlagFIN|model.FlagACK, 0))
	require.True(t, done)
	require.NotNil(t, fin)

	assert.Equal(t, 0, table.Len())
	assert.Equal(t, ReasonTermination, fin.Reason)
	assert.Equal(t, "http", fin.Service)
	assert.Equal(t, FlagSF, fin.Flag)
	assert.Equal(t, int64(100), fin.State.FwdBytes)
	assert.Equal(t, int64(300), fin.State.BwdBytes)
	assert.Len(t, fin.State.FwdLengths, 3)
	assert.Len(t, fin.State.BwdLengths, 2)
	assert.Equal(t, 40*time.Millisecond, fin.State.LastSeen.Sub(fin.State.StartTime))
	assert.Equal(t, uint16(80), fin.State.Dst.Port)
	require.Len(t, fin.History.Recent, 1, "a flow counts itself in its host history")
	require.Len(t, fin.History.Last, 1)
}

func TestTable_SymmetricKeys(t *testing.T) {
	a, err := NewKey(tcp(base, true, 40000, 0, 0).FiveTuple)
	require.NoError(t, err)
	b, err := NewKey(tcp(base, false, 40000, 0, 0).FiveTuple)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTable_DropsUntrackedNonInitiating(t *testing.T) {
	table := newTestTable()

	fin, done := table.OnPacket(tcp(base, true, 40000, model.FlagACK, 10))
	assert.Nil(t, fin)
	assert.False(t, done)
	assert.Equal(t, 0, table.Len())

	_, done = table.OnPacket(tcp(base, false, 40000, model.FlagSYN|model.FlagACK, 0))
	assert.False(t, done)
	assert.Equal(t, 0, table.Len())

	icmp := &model.PacketInfo{Timestamp: base, FiveTuple: model.FiveTuple{SrcIP: client, DstIP: server, Protocol: model.ProtoICMP}}
	_, done = table.OnPacket(icmp)
	assert.False(t, done)
	assert.Equal(t, uint64(3), table.Untracked())
}

func TestTable_TimeoutProducedOnce(t *testing.T) {
	table := newTestTable()
	table.OnPacket(tcp(base, true, 40000, model.FlagSYN, 0))
	table.OnPacket(tcp(base.Add(time.Second), false, 40000, model.FlagSYN|model.FlagACK, 0))

	assert.Empty(t, table.SweepTimeouts(base.Add(30*time.Second)))

	now := base.Add(62 * time.Second)
	out := table.SweepTimeouts(now)
	require.Len(t, out, 1)
	assert.Equal(t, ReasonTimeout, out[0].Reason)
	assert.Equal(t, FlagRSTO, out[0].Flag)
	assert.Equal(t, now, out[0].At)
	assert.Equal(t, base.Add(time.Second), out[0].State.LastSeen)

	assert.Empty(t, table.SweepTimeouts(now.Add(time.Minute)))
	assert.Equal(t, 0, table.Len())
}

func TestTable_UDPStartsOnFirstDatagram(t *testing.T) {
	table := newTestTable()
	dns := &model.PacketInfo{
		Timestamp: base,
		FiveTuple: model.FiveTuple{SrcIP: client, DstIP: server, SrcPort: 5353, DstPort: 53, Protocol: model.ProtoUDP},
		Length:    80, PayloadLength: 38,
	}
	_, done := table.OnPacket(dns)
	require.False(t, done)
	require.Equal(t, 1, table.Len())

	out := table.Flush()
	require.Len(t, out, 1)
	assert.Equal(t, "domain", out[0].Service)
	assert.Equal(t, FlagSF, out[0].Flag)
}

func TestTable_RstIsRejected(t *testing.T) {
	table := newTestTable()
	table.OnPacket(tcp(base, true, 40001, model.FlagSYN, 0))
	fin, done := table.OnPacket(tcp(base.Add(time.Millisecond), false, 40001, model.FlagRST|model.FlagACK, 0))
	require.True(t, done)
	assert.Equal(t, FlagREJ, fin.Flag)
}

func TestTable_HostHistoryWindows(t *testing.T) {
	table := newTestTable()
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		port := uint16(41000 + i)
		table.OnPacket(tcp(ts, true, port, model.FlagSYN, 0))
		table.OnPacket(tcp(ts.Add(time.Millisecond), true, port, model.FlagFIN, 0))
	}

	fin, done := table.OnPacket(tcp(base.Add(5*time.Second), true, 42000, model.FlagSYN|model.FlagFIN, 0))
	require.True(t, done)

	assert.Len(t, fin.History.Last, 3, "count window is bounded")
	// Entries finalized at 3.001s, 4.001s and 5s fall inside the 2s window.
	assert.Len(t, fin.History.Recent, 3)
	for _, e := range fin.History.Recent {
		assert.LessOrEqual(t, fin.At.Sub(e.Timestamp), 2*time.Second)
	}
}

func TestTable_LookupReturnsCopy(t *testing.T) {
	table := newTestTable()
	p := tcp(base, true, 40000, model.FlagSYN, 0)
	table.OnPacket(p)

	key, err := NewKey(p.FiveTuple)
	require.NoError(t, err)
	state, ok := table.Lookup(key)
	require.True(t, ok)
	state.FwdLengths[0] = 9999

	again, _ := table.Lookup(key)
	assert.Equal(t, 54, again.FwdLengths[0])
	assert.Equal(t, base, table.Watermark())
}

func TestFlagLabel(t *testing.T) {
	cases := []struct {
		proto  uint8
		flags  model.TCPFlags
		reason Reason
		want   string
	}{
		{model.ProtoTCP, model.FlagSYN | model.FlagFIN, ReasonTermination, FlagSF},
		{model.ProtoTCP, model.FlagSYN, ReasonTermination, FlagS0},
		{model.ProtoTCP, model.FlagSYN | model.FlagRST, ReasonTermination, FlagREJ},
		{model.ProtoTCP, model.FlagFIN, ReasonTermination, FlagOTH},
		{model.ProtoTCP, model.FlagSYN | model.FlagFIN, ReasonTimeout, FlagRSTO},
		{model.ProtoUDP, 0, ReasonTimeout, FlagSF},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FlagLabel(c.proto, c.flags, c.reason), "flags %s", c.flags)
	}
	assert.True(t, IsSError(FlagRSTO))
	assert.True(t, IsRError(FlagREJ))
	assert.Equal(t, "other", ServiceLabel(8080))
}

func TestTable_ServerFinClosesClientSyn(t *testing.T) {
	table := newTestTable()
	syn := &model.PacketInfo{
		Timestamp: base,
		FiveTuple: model.FiveTuple{SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2), SrcPort: 1111, DstPort: 80, Protocol: model.ProtoTCP},
		Length:    60,
		Flags:     model.FlagSYN,
	}
	fin := &model.PacketInfo{
		Timestamp: base.Add(5 * time.Millisecond),
		FiveTuple: model.FiveTuple{SrcIP: net.IPv4(10, 0, 0, 2), DstIP: net.IPv4(10, 0, 0, 1), SrcPort: 80, DstPort: 1111, Protocol: model.ProtoTCP},
		Length:    54,
		Flags:     model.FlagFIN,
	}

	out, done := table.OnPacket(syn)
	require.False(t, done)
	require.Nil(t, out)

	out, done = table.OnPacket(fin)
	require.True(t, done)
	require.NotNil(t, out)

	assert.Equal(t, 0, table.Len())
	assert.Equal(t, ReasonTermination, out.Reason)
	assert.Equal(t, FlagSF, out.Flag)
	assert.Equal(t, "10.0.0.1", out.State.Src.Addr.String())
	assert.Equal(t, uint16(1111), out.State.Src.Port)
	assert.Equal(t, uint16(80), out.State.Dst.Port)
	assert.Len(t, out.State.FwdLengths, 1)
	assert.Len(t, out.State.BwdLengths, 1)
}

func TestTable_SweepForgetsStaleHosts(t *testing.T) {
	table := newTestTable()
	table.OnPacket(tcp(base, true, 40000, model.FlagSYN, 0))
	_, done := table.OnPacket(tcp(base.Add(time.Millisecond), true, 40000, model.FlagFIN, 0))
	require.True(t, done)
	require.Equal(t, 1, table.Hosts())

	dns := &model.PacketInfo{
		Timestamp: base.Add(50 * time.Second),
		FiveTuple: model.FiveTuple{SrcIP: client, DstIP: net.IPv4(192, 168, 1, 53), SrcPort: 5353, DstPort: 53, Protocol: model.ProtoUDP},
		Length:    80, PayloadLength: 38,
	}
	table.OnPacket(dns)

	assert.Empty(t, table.SweepTimeouts(base.Add(30*time.Second)))
	assert.Equal(t, 1, table.Hosts(), "recent count window outlives the time window")

	assert.Empty(t, table.SweepTimeouts(base.Add(70*time.Second)))
	assert.Equal(t, 0, table.Hosts())
	assert.Equal(t, 1, table.Len())

	out := table.SweepTimeouts(base.Add(115 * time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, 1, table.Hosts(), "a host finalized in the same sweep is kept")
	assert.Len(t, out[0].History.Last, 1)
}
