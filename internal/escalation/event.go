// Package escalation holds the tiered event store and the reviewer that
// moves suspicious events to their final disposition.
package escalation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier is a partition of the escalation store.
type Tier string

const (
	TierLog            Tier = "log"
	TierWhitelist      Tier = "whitelist"
	TierBlacklist      Tier = "blacklist"
	TierFinalBlacklist Tier = "final_blacklist"
)

// Tiers lists every partition.
func Tiers() []Tier {
	return []Tier{TierLog, TierWhitelist, TierBlacklist, TierFinalBlacklist}
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier: '%s'", s)
}

// Expires reports whether documents in the tier are subject to retention.
func (t Tier) Expires() bool {
	return t != TierFinalBlacklist
}

// Event is a classified flow as stored in every tier.
type Event struct {
	ID             string     `bson:"_id" json:"id"`
	IPOrigin       string     `bson:"ip_origin" json:"ip_origin"`
	Features       []string   `bson:"feature_vector" json:"feature_vector"`
	Timestamp      time.Time  `bson:"timestamp" json:"timestamp"`
	Reviewed       bool       `bson:"reviewed" json:"reviewed"`
	Classification string     `bson:"classification" json:"classification"`
	Action         string     `bson:"action,omitempty" json:"action,omitempty"`
	DispositionAt  *time.Time `bson:"disposition_at,omitempty" json:"disposition_at,omitempty"`
	InsertedAt     time.Time  `bson:"inserted_at" json:"-"`
	ClaimedUntil   *time.Time `bson:"claimed_until,omitempty" json:"-"`
}

// NewEvent creates an unreviewed event with a fresh ID.
func NewEvent(ip string, features []string, classification string, now time.Time) *Event {
	return &Event{
		ID:             uuid.NewString(),
		IPOrigin:       ip,
		Features:       append([]string(nil), features...),
		Timestamp:      now.UTC(),
		Classification: classification,
	}
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	c := *e
	c.Features = append([]string(nil), e.Features...)
	if e.DispositionAt != nil {
		t := *e.DispositionAt
		c.DispositionAt = &t
	}
	if e.ClaimedUntil != nil {
		t := *e.ClaimedUntil
		c.ClaimedUntil = &t
	}
	return &c
}

// IsBenign reports whether a classifier label clears an event.
func IsBenign(label string) bool {
	return label == "benign" || label == "inlier"
}

// TierFor returns the review tier for a primary classification.
func TierFor(label string) Tier {
	if IsBenign(label) {
		return TierWhitelist
	}
	return TierBlacklist
}
