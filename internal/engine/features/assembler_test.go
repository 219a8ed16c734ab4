package features

import (
	"net"
	"strconv"
	"testing"
	"time"

	"Go2NetShield/internal/engine/flowtable"
	"Go2NetShield/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func packet(ts time.Time, src, dst net.IP, sport, dport uint16, flags model.TCPFlags, payload int) *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp:     ts,
		FiveTuple:     model.FiveTuple{SrcIP: src, DstIP: dst, SrcPort: sport, DstPort: dport, Protocol: model.ProtoTCP},
		Length:        54 + payload,
		PayloadLength: payload,
		Flags:         flags,
	}
}

func runFlow(t *testing.T, table *flowtable.Table, start time.Time, src net.IP, sport uint16, closing model.TCPFlags) *flowtable.Finalized {
	t.Helper()
	dst := net.IPv4(10, 0, 0, 80)
	table.OnPacket(packet(start, src, dst, sport, 80, model.FlagSYN, 0))
	table.OnPacket(packet(start.Add(1*time.Millisecond), dst, src, 80, sport, model.FlagSYN|model.FlagACK, 0))
	table.OnPacket(packet(start.Add(3*time.Millisecond), src, dst, sport, 80, model.FlagACK|model.FlagPSH, 200))
	fin, done := table.OnPacket(packet(start.Add(4*time.Millisecond), src, dst, sport, 80, closing, 0))
	require.True(t, done)
	return fin
}

func valueOf(t *testing.T, v Vector, name string) float64 {
	t.Helper()
	s, ok := v.Get(name)
	require.True(t, ok, name)
	x, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err, name)
	return x
}

func TestAssemble_BasicFeatures(t *testing.T) {
	table := flowtable.New(flowtable.Config{Timeout: time.Minute, TimeWindow: 2 * time.Second, HostWindowSize: 100})
	fin := runFlow(t, table, base, net.IPv4(10, 0, 0, 1), 40000, model.FlagFIN|model.FlagACK)

	v := Assemble(fin, fin.History)
	require.Len(t, v, Len())
	require.Len(t, v.Strings(), len(Names))
	for i, f := range v {
		assert.Equal(t, Names[i], f.Name)
	}

	assert.Equal(t, 4000.0, valueOf(t, v, "duration"))
	proto, _ := v.Get("protocol_type")
	assert.Equal(t, "tcp", proto)
	service, _ := v.Get("service")
	assert.Equal(t, "http", service)
	flag, _ := v.Get("flag")
	assert.Equal(t, "SF", flag)
	assert.Equal(t, 200.0, valueOf(t, v, "src_bytes"))
	assert.Equal(t, 0.0, valueOf(t, v, "dst_bytes"))
	assert.Equal(t, 0.0, valueOf(t, v, "land"))
	assert.Equal(t, 3.0, valueOf(t, v, "fwd_pkt_count"))
	assert.Equal(t, 1.0, valueOf(t, v, "bwd_pkt_count"))
	assert.Equal(t, 54.0, valueOf(t, v, "fwd_pkt_len_min"))
	assert.Equal(t, 254.0, valueOf(t, v, "fwd_pkt_len_max"))
	assert.Equal(t, 362.0, valueOf(t, v, "fwd_pkt_len_total"))
	assert.Equal(t, 0.0, valueOf(t, v, "bwd_pkt_len_std"))
	// Gaps are 1ms, 2ms, 1ms.
	assert.Equal(t, 1000.0, valueOf(t, v, "flow_iat_min"))
	assert.Equal(t, 2000.0, valueOf(t, v, "flow_iat_max"))
	assert.InDelta(t, 4000.0/3, valueOf(t, v, "flow_iat_mean"), 1e-6)
	assert.Equal(t, 750.0, valueOf(t, v, "fwd_pkts_per_sec"))
	assert.Equal(t, 1.0, valueOf(t, v, "count"))
	assert.Equal(t, 1.0, valueOf(t, v, "same_srv_rate"))
}

func TestAssemble_RatesStayBounded(t *testing.T) {
	table := flowtable.New(flowtable.Config{Timeout: time.Minute, TimeWindow: 2 * time.Second, HostWindowSize: 100})

	var last *flowtable.Finalized
	for i := 0; i < 20; i++ {
		src := net.IPv4(10, 0, 1, byte(i%4+1))
		closing := model.FlagFIN
		if i%3 == 0 {
			closing = model.FlagRST
		}
		last = runFlow(t, table, base.Add(time.Duration(i)*100*time.Millisecond), src, uint16(42000+i), closing)
	}

	v := Assemble(last, last.History)
	require.Len(t, v, Len())
	for _, f := range v {
		if Categorical[f.Name] {
			continue
		}
		x, err := strconv.ParseFloat(f.Value, 64)
		require.NoError(t, err, f.Name)
		if len(f.Name) > 5 && f.Name[len(f.Name)-5:] == "_rate" {
			assert.GreaterOrEqual(t, x, 0.0, f.Name)
			assert.LessOrEqual(t, x, 1.0, f.Name)
		}
	}
	assert.Equal(t, 20.0, valueOf(t, v, "dst_host_count"))
	assert.Greater(t, valueOf(t, v, "rerror_rate"), 0.0)
}

func TestAssemble_TimedOutFlowUsesMinimumDuration(t *testing.T) {
	table := flowtable.New(flowtable.Config{Timeout: time.Second, TimeWindow: 2 * time.Second, HostWindowSize: 100})
	src, dst := net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 2)
	table.OnPacket(packet(base, src, dst, 40000, 8080, model.FlagSYN, 0))

	out := table.SweepTimeouts(base.Add(5 * time.Second))
	require.Len(t, out, 1)

	v := Assemble(out[0], out[0].History)
	assert.Equal(t, 1.0, valueOf(t, v, "duration"))
	flag, _ := v.Get("flag")
	assert.Equal(t, "RSTO", flag)
	service, _ := v.Get("service")
	assert.Equal(t, "other", service)
	assert.Equal(t, 0.0, valueOf(t, v, "flow_iat_mean"))
	assert.Equal(t, 1.0, valueOf(t, v, "serror_rate"))
}
