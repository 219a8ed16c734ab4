package escalation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps every tier in process memory. Expired documents are
// purged lazily on access.
type MemoryStore struct {
	retention time.Duration
	lease     time.Duration
	now       func() time.Time

	mu    sync.Mutex
	tiers map[Tier]map[string]*Event
}

// NewMemoryStore creates an empty store. A zero retention disables expiry.
func NewMemoryStore(retention, lease time.Duration, now func() time.Time) *MemoryStore {
	tiers := make(map[Tier]map[string]*Event)
	for _, t := range Tiers() {
		tiers[t] = make(map[string]*Event)
	}
	return &MemoryStore{retention: retention, lease: lease, now: now, tiers: tiers}
}

func (s *MemoryStore) tier(t Tier) (map[string]*Event, error) {
	m, ok := s.tiers[t]
	if !ok {
		return nil, fmt.Errorf("unknown tier: '%s'", t)
	}
	if t.Expires() && s.retention > 0 {
		now := s.now()
		for id, ev := range m {
			if now.Sub(ev.InsertedAt) > s.retention {
				delete(m, id)
			}
		}
	}
	return m, nil
}

func (s *MemoryStore) Insert(_ context.Context, t Tier, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.tier(t)
	if err != nil {
		return err
	}
	if _, ok := m[ev.ID]; ok {
		return fmt.Errorf("%w: %s in %s", ErrDuplicate, ev.ID, t)
	}
	stored := ev.Clone()
	stored.InsertedAt = s.now()
	m[ev.ID] = stored
	return nil
}

func (s *MemoryStore) FetchPending(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.tier(TierBlacklist)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var candidates []*Event
	for _, ev := range m {
		if ev.Reviewed || (ev.ClaimedUntil != nil && ev.ClaimedUntil.After(now)) {
			continue
		}
		candidates = append(candidates, ev)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].Timestamp.Equal(candidates[j].Timestamp) {
			return candidates[i].Timestamp.Before(candidates[j].Timestamp)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(s.lease)
	out := make([]*Event, len(candidates))
	for i, ev := range candidates {
		claimed := until
		ev.ClaimedUntil = &claimed
		out[i] = ev.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.tier(TierBlacklist)
	if err != nil {
		return err
	}
	ev, ok := m[id]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, TierBlacklist)
	}
	ev.ClaimedUntil = nil
	return nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, t Tier, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.tier(t)
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, t)
	}
	delete(m, id)
	return nil
}

func (s *MemoryStore) Move(_ context.Context, id string, to Tier, mutate func(*Event)) error {
	if to == TierBlacklist {
		return fmt.Errorf("cannot move an event within %s", TierBlacklist)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.tier(TierBlacklist)
	if err != nil {
		return err
	}
	dst, err := s.tier(to)
	if err != nil {
		return err
	}
	ev, ok := src[id]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, TierBlacklist)
	}

	moved := ev.Clone()
	if mutate != nil {
		mutate(moved)
	}
	moved.ClaimedUntil = nil
	moved.InsertedAt = s.now()
	dst[id] = moved
	delete(src, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, t Tier, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.tier(t)
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(m))
	for _, ev := range m {
		out = append(out, ev.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}
