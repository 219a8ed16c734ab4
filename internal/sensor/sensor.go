// Package sensor drives the capture pipeline: packets feed the flow table,
// finalized flows are assembled into vectors and shipped to the analyzer.
package sensor

import (
	"context"
	"sync"
	"time"

	"Go2NetShield/internal/engine/features"
	"Go2NetShield/internal/engine/flowtable"
	"Go2NetShield/internal/metrics"
	"Go2NetShield/internal/model"
	"Go2NetShield/internal/secure"
	"Go2NetShield/internal/transport"

	"github.com/sirupsen/logrus"
)

// Options tunes the sensor goroutines.
type Options struct {
	SweepInterval time.Duration
	NumSenders    int
	QueueSize     int
	SendTimeout   time.Duration
	// Offline sweeps against packet timestamps and flushes every open flow
	// once the packet source is exhausted.
	Offline bool
}

// Sensor owns the flow table and the sender worker pool.
type Sensor struct {
	table       *flowtable.Table
	encoder     Encoder
	sender      transport.Sender   // nil in calibration-only mode
	calibration *CalibrationWriter // nil unless calibrating
	opts        Options
	log         logrus.FieldLogger
	metrics     *metrics.Metrics

	jobs          chan *flowtable.Finalized
	done          chan struct{}
	sendWg        sync.WaitGroup
	sweepWg       sync.WaitGroup
	lastUntracked uint64
}

// New creates a sensor. At least one of sender and calibration must be set.
func New(table *flowtable.Table, encoder Encoder, sender transport.Sender, calibration *CalibrationWriter, opts Options, log logrus.FieldLogger, m *metrics.Metrics) *Sensor {
	if opts.NumSenders <= 0 {
		opts.NumSenders = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 10 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Sensor{
		table:       table,
		encoder:     encoder,
		sender:      sender,
		calibration: calibration,
		opts:        opts,
		log:         log.WithField("component", "sensor"),
		metrics:     m,
		jobs:        make(chan *flowtable.Finalized, opts.QueueSize),
		done:        make(chan struct{}),
	}
}

// Run consumes packets until the channel closes or ctx is cancelled, then
// drains the sender pool.
func (s *Sensor) Run(ctx context.Context, packets <-chan *model.PacketInfo) {
	s.sendWg.Add(s.opts.NumSenders)
	for i := 0; i < s.opts.NumSenders; i++ {
		go s.sendWorker(ctx)
	}
	if !s.opts.Offline {
		s.sweepWg.Add(1)
		go s.runSweeper()
	}
	s.log.WithFields(logrus.Fields{"senders": s.opts.NumSenders, "sweep": s.opts.SweepInterval}).Info("Sensor started")

	s.ingest(ctx, packets)

	close(s.done)
	s.sweepWg.Wait()
	if s.opts.Offline {
		for _, f := range s.table.Flush() {
			s.enqueueBlocking(f)
		}
	}
	close(s.jobs)
	s.sendWg.Wait()
	s.recordTableStats()
	s.log.Info("Sensor stopped")
}

func (s *Sensor) ingest(ctx context.Context, packets <-chan *model.PacketInfo) {
	var lastSweep time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-packets:
			if !ok {
				return
			}
			s.metrics.PacketsSeen.Inc()
			f, done := s.table.OnPacket(p)
			if !s.opts.Offline {
				if done {
					s.enqueue(f)
				}
				continue
			}

			// Replays sweep on packet time, inline with ingestion.
			if done {
				s.enqueueBlocking(f)
			}
			if lastSweep.IsZero() {
				lastSweep = p.Timestamp
			}
			if p.Timestamp.Sub(lastSweep) >= s.opts.SweepInterval {
				for _, f := range s.table.SweepTimeouts(p.Timestamp) {
					s.enqueueBlocking(f)
				}
				lastSweep = p.Timestamp
			}
		}
	}
}

func (s *Sensor) runSweeper() {
	defer s.sweepWg.Done()
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Sensor) sweep() {
	expired := s.table.SweepTimeouts(time.Now())
	for _, f := range expired {
		s.enqueue(f)
	}
	if len(expired) > 0 {
		s.log.WithField("count", len(expired)).Debug("Swept idle flows")
	}
	s.recordTableStats()
}

func (s *Sensor) recordTableStats() {
	s.metrics.ActiveFlows.Set(float64(s.table.Len()))
	untracked := s.table.Untracked()
	if delta := untracked - s.lastUntracked; delta > 0 {
		s.metrics.PacketsDropped.Add(float64(delta))
	}
	s.lastUntracked = untracked
}

// enqueue hands a finalized flow to the sender pool, dropping it when the
// queue is full.
func (s *Sensor) enqueue(f *flowtable.Finalized) {
	s.metrics.FlowsFinalized.WithLabelValues(f.Reason.String()).Inc()
	select {
	case s.jobs <- f:
	default:
		s.metrics.QueueDrops.Inc()
		s.log.WithField("flow", f.Key.String()).Warn("Sender queue is full, dropping flow")
	}
}

// enqueueBlocking is used for replays, where losing flows to back-pressure
// would make results depend on machine speed.
func (s *Sensor) enqueueBlocking(f *flowtable.Finalized) {
	s.metrics.FlowsFinalized.WithLabelValues(f.Reason.String()).Inc()
	s.jobs <- f
}

func (s *Sensor) sendWorker(ctx context.Context) {
	defer s.sendWg.Done()
	for f := range s.jobs {
		s.process(ctx, f)
	}
}

func (s *Sensor) process(ctx context.Context, f *flowtable.Finalized) {
	vec := features.Assemble(f, f.History)
	ip := f.State.Src.Addr.String()
	log := s.log.WithFields(logrus.Fields{"flow": f.Key.String(), "reason": f.Reason.String()})

	if s.calibration != nil {
		if err := s.calibration.Write(ip, vec); err != nil {
			log.WithError(err).Error("Failed to write calibration row")
		}
	}
	if s.sender == nil {
		return
	}

	body, err := s.encoder.Encode(secure.Payload{IP: ip, Data: vec.Strings()})
	if err != nil {
		s.metrics.SendFailures.Inc()
		log.WithError(err).Error("Failed to encode feature vector")
		return
	}

	// Sends outlive a cancelled capture so that the final flush is delivered.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SendTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, body); err != nil {
		s.metrics.SendFailures.Inc()
		log.WithError(err).Warn("Failed to deliver feature vector")
		return
	}
	log.Debug("Feature vector delivered")
}
