// Package alerter batches confirmed incidents into periodic email reports.
package alerter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"Go2NetShield/internal/model"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/sirupsen/logrus"
)

const maxPending = 1000

// Alerter implements model.IncidentSink. Incidents reported between two ticks
// are sent as one consolidated notification.
type Alerter struct {
	notifier      model.Notifier
	analyzer      model.Analyzer
	checkInterval time.Duration
	aiTimeout     time.Duration
	log           logrus.FieldLogger

	mu      sync.Mutex
	pending []model.Incident
	dropped int
}

// New creates an alerter. analyzer may be nil.
func New(checkInterval time.Duration, notifier model.Notifier, analyzer model.Analyzer, log logrus.FieldLogger) *Alerter {
	return &Alerter{
		notifier:      notifier,
		analyzer:      analyzer,
		checkInterval: checkInterval,
		aiTimeout:     60 * time.Second,
		log:           log,
	}
}

// Report queues an incident for the next notification.
func (a *Alerter) Report(inc model.Incident) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.pending) >= maxPending {
		a.dropped++
		return
	}
	a.pending = append(a.pending, inc)
}

// Run sends a notification on every tick until ctx is cancelled, then sends
// whatever is still pending.
func (a *Alerter) Run(ctx context.Context) error {
	a.log.WithField("interval", a.checkInterval).Info("Alerter started")
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Flush(ctx)
		case <-ctx.Done():
			a.log.Info("Stopping Alerter...")
			a.Flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

// Flush sends the pending incidents, if any, and reports how many were sent.
func (a *Alerter) Flush(ctx context.Context) int {
	a.mu.Lock()
	incidents := a.pending
	dropped := a.dropped
	a.pending = nil
	a.dropped = 0
	a.mu.Unlock()

	if len(incidents) == 0 {
		return 0
	}

	lines := make([]string, len(incidents))
	for i, inc := range incidents {
		lines[i] = inc.String()
	}

	md := summaryMarkdown(incidents, dropped)
	if analysis := a.analyze(ctx, strings.Join(lines, "\n")); analysis != "" {
		md += "\n\n## AI-Powered Analysis\n\n" + analysis
	}
	body := string(markdown.ToHTML([]byte(md), parser.NewWithExtensions(parser.CommonExtensions), nil))

	subject := fmt.Sprintf("Go2NetShield Incident Summary (%d Blocked)", len(incidents))
	if err := a.notifier.Send(subject, body); err != nil {
		a.log.WithError(err).Error("Failed to send consolidated incident notification")
		return 0
	}
	a.log.WithField("incidents", len(incidents)).Info("Consolidated incident notification sent")
	return len(incidents)
}

func (a *Alerter) analyze(ctx context.Context, input string) string {
	if a.analyzer == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, a.aiTimeout)
	defer cancel()

	out, err := a.analyzer.AnalyzeIncidents(ctx, input)
	if err != nil {
		a.log.WithError(err).Warn("Failed to get AI analysis")
		return ""
	}
	return out
}

func summaryMarkdown(incidents []model.Incident, dropped int) string {
	var b strings.Builder
	b.WriteString("# Go2NetShield Incident Summary\n\n")
	b.WriteString("The following sources were confirmed as attacks and blocked since the last report.\n\n")
	b.WriteString("| Time (UTC) | Source | Classification | Action | Event |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, inc := range incidents {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			inc.At.UTC().Format(time.RFC3339), inc.IP, inc.Classification, inc.Action, inc.EventID)
	}
	if dropped > 0 {
		fmt.Fprintf(&b, "\n%d further incidents were not listed because the report buffer was full.\n", dropped)
	}
	return b.String()
}
