package features

import (
	"sort"
	"strconv"
	"time"

	"Go2NetShield/internal/engine/flowtable"
	"Go2NetShield/internal/model"
)

// Field is one named entry of a feature vector.
type Field struct {
	Name  string
	Value string
}

// Vector is a feature vector in contract order.
type Vector []Field

// Strings returns the values in order, as sent on the wire.
func (v Vector) Strings() []string {
	out := make([]string, len(v))
	for i, f := range v {
		out[i] = f.Value
	}
	return out
}

// Get returns the value of the named field.
func (v Vector) Get(name string) (string, bool) {
	for _, f := range v {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

type builder struct {
	values map[string]string
}

func (b *builder) num(name string, x float64) {
	b.values[name] = strconv.FormatFloat(x, 'f', -1, 64)
}

func (b *builder) label(name, s string) {
	b.values[name] = s
}

// Assemble computes the vector for a finalized flow and the history of its
// destination host. The result always has Len() fields; anything that cannot
// be computed is "0".
func Assemble(f *flowtable.Finalized, history flowtable.Snapshot) Vector {
	b := &builder{values: make(map[string]string, len(Names))}
	s := f.State

	durationUs := s.LastSeen.Sub(s.StartTime).Microseconds()
	if durationUs < 1 {
		durationUs = 1
	}
	b.num("duration", float64(durationUs))
	b.label("protocol_type", model.ProtocolName(s.Protocol))
	b.label("service", f.Service)
	b.label("flag", f.Flag)
	b.num("src_bytes", float64(s.FwdBytes))
	b.num("dst_bytes", float64(s.BwdBytes))
	land := 0.0
	if f.Land() {
		land = 1
	}
	b.num("land", land)

	b.num("fwd_pkt_count", float64(len(s.FwdLengths)))
	b.num("bwd_pkt_count", float64(len(s.BwdLengths)))
	lengths(b, "fwd", summarize(intsToFloats(s.FwdLengths)))
	lengths(b, "bwd", summarize(intsToFloats(s.BwdLengths)))

	iat := summarize(interArrival(s.FwdTimes, s.BwdTimes))
	b.num("flow_iat_mean", iat.mean)
	b.num("flow_iat_std", iat.std)
	b.num("flow_iat_max", iat.max)
	b.num("flow_iat_min", iat.min)

	seconds := float64(durationUs) / 1e6
	b.num("fwd_pkts_per_sec", float64(len(s.FwdLengths))/seconds)
	b.num("bwd_pkts_per_sec", float64(len(s.BwdLengths))/seconds)

	timeWindow(b, f, history.Recent)
	countWindow(b, f, history.Last)

	v := make(Vector, len(Names))
	for i, name := range Names {
		val, ok := b.values[name]
		if !ok {
			val = "0"
		}
		v[i] = Field{Name: name, Value: val}
	}
	return v
}

func lengths(b *builder, dir string, sum summary) {
	b.num(dir+"_pkt_len_total", sum.total)
	b.num(dir+"_pkt_len_min", sum.min)
	b.num(dir+"_pkt_len_max", sum.max)
	b.num(dir+"_pkt_len_mean", sum.mean)
	b.num(dir+"_pkt_len_std", sum.std)
}

// interArrival merges both directions and returns the gaps in microseconds.
func interArrival(fwd, bwd []time.Time) []float64 {
	all := make([]time.Time, 0, len(fwd)+len(bwd))
	all = append(all, fwd...)
	all = append(all, bwd...)
	if len(all) < 2 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })
	gaps := make([]float64, len(all)-1)
	for i := 1; i < len(all); i++ {
		gaps[i-1] = float64(all[i].Sub(all[i-1]).Microseconds())
	}
	return gaps
}

type windowCounts struct {
	total, srv        int
	serror, srvSerror int
	rerror, srvRerror int
	sameSrcPort       int
	services          map[string]struct{}
	srvHosts          map[string]struct{}
}

func tally(f *flowtable.Finalized, entries []flowtable.HistoryEntry) windowCounts {
	c := windowCounts{
		total:    len(entries),
		services: make(map[string]struct{}),
		srvHosts: make(map[string]struct{}),
	}
	for _, e := range entries {
		c.services[e.Service] = struct{}{}
		sameSrv := e.Service == f.Service
		serr := flowtable.IsSError(e.Flag)
		rerr := flowtable.IsRError(e.Flag)
		if serr {
			c.serror++
		}
		if rerr {
			c.rerror++
		}
		if sameSrv {
			c.srv++
			c.srvHosts[e.Src.Addr.String()] = struct{}{}
			if serr {
				c.srvSerror++
			}
			if rerr {
				c.srvRerror++
			}
		}
		if e.Src == f.State.Src {
			c.sameSrcPort++
		}
	}
	return c
}

func timeWindow(b *builder, f *flowtable.Finalized, entries []flowtable.HistoryEntry) {
	c := tally(f, entries)
	b.num("count", float64(c.total))
	b.num("srv_count", float64(c.srv))
	b.num("serror_rate", rate(c.serror, c.total))
	b.num("srv_serror_rate", rate(c.srvSerror, c.srv))
	b.num("rerror_rate", rate(c.rerror, c.total))
	b.num("srv_rerror_rate", rate(c.srvRerror, c.srv))
	b.num("same_srv_rate", rate(c.srv, c.total))
	b.num("diff_srv_rate", rate(len(c.services), c.total))
	b.num("srv_diff_host_rate", rate(len(c.srvHosts), c.srv))
}

func countWindow(b *builder, f *flowtable.Finalized, entries []flowtable.HistoryEntry) {
	c := tally(f, entries)
	b.num("dst_host_count", float64(c.total))
	b.num("dst_host_srv_count", float64(c.srv))
	b.num("dst_host_same_srv_rate", rate(c.srv, c.total))
	b.num("dst_host_diff_srv_rate", rate(len(c.services), c.total))
	b.num("dst_host_same_src_port_rate", rate(c.sameSrcPort, c.total))
	b.num("dst_host_srv_diff_host_rate", rate(len(c.srvHosts), c.srv))
	b.num("dst_host_serror_rate", rate(c.serror, c.total))
	b.num("dst_host_srv_serror_rate", rate(c.srvSerror, c.srv))
	b.num("dst_host_rerror_rate", rate(c.rerror, c.total))
	b.num("dst_host_srv_rerror_rate", rate(c.srvRerror, c.srv))
}
