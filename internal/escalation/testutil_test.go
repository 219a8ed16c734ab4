package escalation

import (
	"context"
	"errors"
	"sync"
	"time"

	"Go2NetShield/internal/model"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// cancel is invoked once len(sleeps) reaches stopAfter.
	stopAfter int
	cancel    context.CancelFunc
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if c.cancel != nil && len(c.sleeps) >= c.stopAfter {
		c.cancel()
	}
	c.mu.Unlock()
	return ctx.Err()
}

// scriptedClassifier returns a fixed label per IP, or err when set.
type scriptedClassifier struct {
	labels map[string]string
	err    error
}

func (c *scriptedClassifier) Classify(data []string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	// The first feature carries the IP in tests.
	if l, ok := c.labels[data[0]]; ok {
		return l, nil
	}
	return "inlier", nil
}

type recordingEnforcer struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]int // remaining failures per IP
}

func (e *recordingEnforcer) Block(_ context.Context, ip string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, ip)
	if e.failFor[ip] > 0 {
		e.failFor[ip]--
		return errors.New("firewall unavailable")
	}
	return nil
}

func (e *recordingEnforcer) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type incidentRecorder struct {
	mu        sync.Mutex
	incidents []model.Incident
}

func (r *incidentRecorder) Report(i model.Incident) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, i)
}
