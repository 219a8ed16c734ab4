package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2NetShield/internal/config"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when an event is absent from the requested tier.
	ErrNotFound = errors.New("event not found")
	// ErrDuplicate is returned when an ID already exists in the tier.
	ErrDuplicate = errors.New("duplicate event id")
)

// Store persists events across tiers. Implementations serialize writes per
// document; callers may share one Store across goroutines.
type Store interface {
	// Insert adds ev to tier.
	Insert(ctx context.Context, tier Tier, ev *Event) error
	// FetchPending claims up to limit unreviewed blacklist events, oldest
	// first. A claimed event is hidden from other fetches until its lease
	// runs out or it is released.
	FetchPending(ctx context.Context, limit int) ([]*Event, error)
	// Release drops the claim on a blacklist event.
	Release(ctx context.Context, id string) error
	// DeleteByID removes an event from tier.
	DeleteByID(ctx context.Context, tier Tier, id string) error
	// Move applies mutate to a blacklist event, writes it to the destination
	// tier and then removes it from blacklist. Replaying a Move whose insert
	// already happened is safe.
	Move(ctx context.Context, id string, to Tier, mutate func(*Event)) error
	// List returns the most recent events of a tier.
	List(ctx context.Context, tier Tier, limit int) ([]*Event, error)
	// Close releases the underlying resources.
	Close(ctx context.Context) error
}

// NewStore builds the store selected by cfg.
func NewStore(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) (Store, error) {
	retention := config.Duration(cfg.Retention)
	lease := config.Duration(cfg.Lease)
	switch cfg.Type {
	case "memory":
		log.WithField("retention", retention).Info("Using in-memory escalation store")
		return NewMemoryStore(retention, lease, time.Now), nil
	case "mongo":
		s, err := NewMongoStore(ctx, cfg.Mongo, retention, lease)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			s.Close(ctx)
			return nil, err
		}
		log.WithFields(logrus.Fields{"database": cfg.Mongo.Database, "retention": retention}).Info("Connected to MongoDB escalation store")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type: '%s'", cfg.Type)
	}
}
