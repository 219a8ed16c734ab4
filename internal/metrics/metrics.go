// Package metrics holds the Prometheus collectors exported by the sensor,
// analyzer and reviewer.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "gonetshield"

// Metrics groups every collector. A single instance is shared per process.
type Metrics struct {
	PacketsSeen    prometheus.Counter
	PacketsDropped prometheus.Counter
	ActiveFlows    prometheus.Gauge
	FlowsFinalized *prometheus.CounterVec // reason
	SendFailures   prometheus.Counter
	QueueDrops     prometheus.Counter

	Requests             *prometheus.CounterVec // result
	VerificationFailures prometheus.Counter
	StoreFailures        prometheus.Counter

	Dispositions        *prometheus.CounterVec // disposition
	EnforcementFailures prometheus.Counter
	ReviewCycles        prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "packets_total",
			Help: "Packets handed to the flow table.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "packets_untracked_total",
			Help: "Packets that matched no flow and did not start one.",
		}),
		ActiveFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "active_flows",
			Help: "Flows currently tracked by the flow table.",
		}),
		FlowsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "flows_finalized_total",
			Help: "Finalized flows by reason.",
		}, []string{"reason"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "send_failures_total",
			Help: "Feature vectors that could not be delivered to the analyzer.",
		}),
		QueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "queue_drops_total",
			Help: "Finalized flows dropped because the sender queue was full.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analyzer", Name: "requests_total",
			Help: "Analysis requests by result.",
		}, []string{"result"}),
		VerificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analyzer", Name: "verification_failures_total",
			Help: "Envelopes rejected by signature or AEAD verification.",
		}),
		StoreFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "analyzer", Name: "store_failures_total",
			Help: "Escalation store writes that failed.",
		}),
		Dispositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reviewer", Name: "dispositions_total",
			Help: "Reviewed blacklist events by disposition.",
		}, []string{"disposition"}),
		EnforcementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reviewer", Name: "enforcement_failures_total",
			Help: "Block calls that failed and deferred an event.",
		}),
		ReviewCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reviewer", Name: "cycles_total",
			Help: "Completed review poll cycles.",
		}),
	}

	reg.MustRegister(
		m.PacketsSeen, m.PacketsDropped, m.ActiveFlows, m.FlowsFinalized,
		m.SendFailures, m.QueueDrops, m.Requests, m.VerificationFailures,
		m.StoreFailures, m.Dispositions, m.EnforcementFailures, m.ReviewCycles,
	)
	return m
}

// NewNop returns collectors registered with a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Serve exposes the default registry on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Metrics listener starting")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
