package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Go2NetShield/internal/config"
	"Go2NetShield/internal/model"

	"github.com/sirupsen/logrus"
)

// Batcher buffers archive records and hands them to a writer on every tick.
// Add never blocks; once maxPending records are waiting, new ones are dropped.
type Batcher struct {
	writer     model.Writer
	maxPending int
	log        logrus.FieldLogger

	mu      sync.Mutex
	pending []model.ArchiveRecord
	dropped uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewBatcher creates a batcher for writer.
func NewBatcher(writer model.Writer, maxPending int, log logrus.FieldLogger) *Batcher {
	if maxPending <= 0 {
		maxPending = 10000
	}
	return &Batcher{
		writer:     writer,
		maxPending: maxPending,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Add queues a record for the next flush.
func (b *Batcher) Add(r model.ArchiveRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) >= b.maxPending {
		b.dropped++
		return
	}
	b.pending = append(b.pending, r)
}

// Dropped returns how many records were discarded because the buffer was full.
func (b *Batcher) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Start launches the flush loop.
func (b *Batcher) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.writer.GetInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.Flush(context.Background())
			case <-b.done:
				return
			}
		}
	}()
	b.log.WithField("interval", b.writer.GetInterval()).Info("Archive batcher started")
}

// Stop ends the loop and writes whatever is still buffered.
func (b *Batcher) Stop() {
	close(b.done)
	b.wg.Wait()
	b.Flush(context.Background())
	b.log.Info("Archive batcher stopped")
}

// Flush writes the buffered records. A failed batch is logged and discarded.
func (b *Batcher) Flush(ctx context.Context) int {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	if err := b.writer.Write(ctx, batch); err != nil {
		b.log.WithError(err).WithField("events", len(batch)).Error("Failed to archive events")
		return 0
	}
	return len(batch)
}

// NewWriter builds the writer selected by cfg. It returns nil for type "none".
func NewWriter(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (model.Writer, error) {
	interval := config.Duration(cfg.Archive.FlushInterval)
	switch cfg.Archive.Type {
	case "none", "":
		return nil, nil
	case "gob":
		return NewGobWriter(cfg.Archive.Path, interval), nil
	case "clickhouse":
		w, err := NewClickHouseWriter(ctx, cfg.ClickHouse, interval, log)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown archive type: '%s'", cfg.Archive.Type)
	}
}
