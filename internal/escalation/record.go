package escalation

import (
	"context"
	"fmt"
)

// Record stores a freshly classified event. The log copy is written first so
// that every classified event survives even if the tier insert fails.
func Record(ctx context.Context, s Store, ev *Event) (Tier, error) {
	if err := s.Insert(ctx, TierLog, ev.Clone()); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", TierLog, err)
	}
	tier := TierFor(ev.Classification)
	if err := s.Insert(ctx, tier, ev.Clone()); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", tier, err)
	}
	return tier, nil
}
