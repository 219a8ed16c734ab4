package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2NetShield/internal/config"
	"Go2NetShield/internal/metrics"
	"Go2NetShield/internal/model"

	"github.com/sirupsen/logrus"
)

// Clock abstracts time for the reviewer loop.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReviewerOptions tunes the review loop.
type ReviewerOptions struct {
	Interval  time.Duration // sleep between cycles
	Backoff   time.Duration // extra sleep after a failed cycle
	BatchSize int
	ActionTag string
	Reconcile bool // re-apply final_blacklist blocks on start
}

// OptionsFromConfig converts the validated reviewer section.
func OptionsFromConfig(cfg config.ReviewerConfig) ReviewerOptions {
	return ReviewerOptions{
		Interval:  config.Duration(cfg.Interval),
		Backoff:   config.Duration(cfg.Backoff),
		BatchSize: cfg.BatchSize,
		ActionTag: cfg.ActionTag,
		Reconcile: cfg.ReconcileOnStart,
	}
}

// CycleStats summarizes one review pass.
type CycleStats struct {
	Fetched     int
	Whitelisted int
	Confirmed   int
	Deferred    int // enforcement failed; event released for the next cycle
	Failed      int // classification or store errors
}

// Reviewer re-examines blacklisted events with the secondary classifier and
// enforces confirmed attacks. It runs a single sequential loop.
type Reviewer struct {
	store      Store
	classifier model.Classifier
	enforcer   model.Enforcer
	cache      *BlockCache
	clock      Clock
	opts       ReviewerOptions
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	incidents  model.IncidentSink
}

// NewReviewer wires a reviewer. m may be nil.
func NewReviewer(store Store, classifier model.Classifier, enforcer model.Enforcer, opts ReviewerOptions, log logrus.FieldLogger, m *metrics.Metrics) *Reviewer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ActionTag == "" {
		opts.ActionTag = "blocked"
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Reviewer{
		store:      store,
		classifier: classifier,
		enforcer:   enforcer,
		cache:      NewBlockCache(),
		clock:      SystemClock{},
		opts:       opts,
		log:        log.WithField("component", "reviewer"),
		metrics:    m,
	}
}

// WithClock replaces the wall clock.
func (r *Reviewer) WithClock(c Clock) *Reviewer {
	r.clock = c
	return r
}

// WithIncidentSink forwards confirmed attacks to s.
func (r *Reviewer) WithIncidentSink(s model.IncidentSink) *Reviewer {
	r.incidents = s
	return r
}

// Cache exposes the session enforcement cache.
func (r *Reviewer) Cache() *BlockCache {
	return r.cache
}

// Run reconciles if configured and then reviews until ctx is cancelled.
func (r *Reviewer) Run(ctx context.Context) error {
	if r.opts.Reconcile {
		if err := r.Reconcile(ctx); err != nil {
			r.log.WithError(err).Error("Reconciliation against final_blacklist failed")
		}
	}

	r.log.WithField("interval", r.opts.Interval).Info("Entering review loop")
	for {
		wait := r.opts.Interval
		stats, err := r.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.WithError(err).Error("Review cycle failed, backing off")
			wait = r.opts.Interval + r.opts.Backoff
		} else if stats.Fetched == 0 {
			r.log.Debug("No pending events in blacklist")
		}

		if err := r.clock.Sleep(ctx, wait); err != nil {
			r.log.Info("Review loop stopped")
			return nil
		}
	}
}

// RunCycle claims one batch of pending events and disposes of each. It
// returns an error when the batch could not be fetched or a collaborator
// panicked; events claimed by a panicked cycle are retried once their lease
// expires.
func (r *Reviewer) RunCycle(ctx context.Context) (stats CycleStats, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("review cycle panicked: %v", p)
		}
	}()

	events, err := r.store.FetchPending(ctx, r.opts.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	stats.Fetched = len(events)
	if len(events) > 0 {
		r.log.WithField("count", len(events)).Info("Reviewing pending events")
	}

	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		switch r.review(ctx, ev) {
		case TierWhitelist:
			stats.Whitelisted++
		case TierFinalBlacklist:
			stats.Confirmed++
		case TierBlacklist:
			stats.Deferred++
		default:
			stats.Failed++
		}
	}
	r.metrics.ReviewCycles.Inc()
	return stats, nil
}

// review returns the tier the event ended in, or "" when it could not be processed.
func (r *Reviewer) review(ctx context.Context, ev *Event) Tier {
	log := r.log.WithFields(logrus.Fields{"event": ev.ID, "ip": ev.IPOrigin})

	label, err := r.classifier.Classify(ev.Features)
	if err != nil {
		// The claim is left to expire so the event is retried later.
		log.WithError(err).Error("Secondary classification failed")
		return ""
	}
	log = log.WithField("verdict", label)

	if IsBenign(label) {
		err := r.store.Move(ctx, ev.ID, TierWhitelist, func(e *Event) {
			now := r.clock.Now().UTC()
			e.Reviewed = true
			e.Classification = label
			e.DispositionAt = &now
		})
		if err != nil {
			log.WithError(err).Error("Failed to move false positive to whitelist")
			return ""
		}
		r.metrics.Dispositions.WithLabelValues(string(TierWhitelist)).Inc()
		log.Info("False positive moved to whitelist")
		return TierWhitelist
	}

	if !r.cache.Contains(ev.IPOrigin) {
		if err := r.enforcer.Block(ctx, ev.IPOrigin); err != nil {
			r.metrics.EnforcementFailures.Inc()
			log.WithError(err).Warn("Enforcement failed, event stays pending")
			if err := r.store.Release(ctx, ev.ID); err != nil && !errors.Is(err, ErrNotFound) {
				log.WithError(err).Error("Failed to release claim")
			}
			return TierBlacklist
		}
		r.cache.Add(ev.IPOrigin, r.clock.Now())
		log.Warn("Address blocked")
	}

	var at time.Time
	err = r.store.Move(ctx, ev.ID, TierFinalBlacklist, func(e *Event) {
		at = r.clock.Now().UTC()
		e.Reviewed = true
		e.Classification = label
		e.Action = r.opts.ActionTag
		e.DispositionAt = &at
	})
	if err != nil {
		log.WithError(err).Error("Failed to move confirmed attack to final_blacklist")
		return ""
	}
	r.metrics.Dispositions.WithLabelValues(string(TierFinalBlacklist)).Inc()

	if r.incidents != nil {
		r.incidents.Report(model.Incident{
			EventID:        ev.ID,
			IP:             ev.IPOrigin,
			Classification: label,
			Action:         r.opts.ActionTag,
			At:             at,
		})
	}
	return TierFinalBlacklist
}

// Reconcile re-applies enforcement for every address in final_blacklist and
// seeds the cache with those that succeed.
func (r *Reviewer) Reconcile(ctx context.Context) error {
	events, err := r.store.List(ctx, TierFinalBlacklist, 0)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", TierFinalBlacklist, err)
	}

	var failed int
	for _, ev := range events {
		if r.cache.Contains(ev.IPOrigin) {
			continue
		}
		if err := r.enforcer.Block(ctx, ev.IPOrigin); err != nil {
			failed++
			r.metrics.EnforcementFailures.Inc()
			r.log.WithError(err).WithField("ip", ev.IPOrigin).Warn("Failed to re-apply block")
			continue
		}
		r.cache.Add(ev.IPOrigin, r.clock.Now())
	}
	r.log.WithFields(logrus.Fields{"restored": r.cache.Len(), "failed": failed}).Info("Reconciled blocks from final_blacklist")
	if failed > 0 {
		return fmt.Errorf("%d address(es) could not be re-blocked", failed)
	}
	return nil
}
