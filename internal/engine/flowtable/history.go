package flowtable

import "time"

// HistoryEntry is a finalized connection as remembered by its destination host.
type HistoryEntry struct {
	Timestamp time.Time
	Service   string
	Flag      string
	Src       Endpoint
}

// Snapshot is a copy of both history windows of a host.
type Snapshot struct {
	Recent []HistoryEntry // entries within the time window
	Last   []HistoryEntry // the most recent entries, bounded by count
}

// hostHistory keeps a time-bounded and a count-bounded window per host.
type hostHistory struct {
	recent []HistoryEntry
	last   []HistoryEntry
}

func (h *hostHistory) append(e HistoryEntry, maxCount int) {
	h.recent = append(h.recent, e)
	h.last = append(h.last, e)
	if over := len(h.last) - maxCount; over > 0 {
		h.last = append(h.last[:0:0], h.last[over:]...)
	}
}

func (h *hostHistory) evict(now time.Time, window time.Duration) {
	i := 0
	for i < len(h.recent) && now.Sub(h.recent[i].Timestamp) > window {
		i++
	}
	if i > 0 {
		h.recent = append(h.recent[:0:0], h.recent[i:]...)
	}
}

// stale reports whether the recent window is empty and the newest connection
// finished more than idle ago.
func (h *hostHistory) stale(now time.Time, idle time.Duration) bool {
	if len(h.recent) > 0 {
		return false
	}
	return len(h.last) == 0 || now.Sub(h.last[len(h.last)-1].Timestamp) > idle
}

func (h *hostHistory) snapshot() Snapshot {
	return Snapshot{
		Recent: append([]HistoryEntry(nil), h.recent...),
		Last:   append([]HistoryEntry(nil), h.last...),
	}
}
