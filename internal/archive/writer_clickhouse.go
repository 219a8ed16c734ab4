// Package archive keeps an append-only analytics copy of every classified
// event, separate from the escalation store.
package archive

import (
	"context"
	"fmt"
	"time"

	"Go2NetShield/internal/config"
	"Go2NetShield/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS analysis_events (
    Timestamp      DateTime64(3),
    EventID        String,
    IPOrigin       String,
    Classification LowCardinality(String),
    Features       Array(String)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (IPOrigin, Timestamp);
`

// ClickHouseWriter implements model.Writer for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
	log      logrus.FieldLogger
}

// NewClickHouseWriter connects and makes sure the events table exists.
func NewClickHouseWriter(ctx context.Context, cfg config.ClickHouseConfig, interval time.Duration, log logrus.FieldLogger) (*ClickHouseWriter, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(ctx, createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.WithField("host", cfg.Host).Info("Connected to ClickHouse, analysis_events table ready")

	return &ClickHouseWriter{conn: conn, interval: interval, log: log}, nil
}

func connect(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// GetInterval returns the configured flush interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

// Write inserts records in a single batch.
func (w *ClickHouseWriter) Write(ctx context.Context, records []model.ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO analysis_events")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range records {
		err := batch.Append(r.Timestamp, r.EventID, r.IPOrigin, r.Classification, r.Features)
		if err != nil {
			return fmt.Errorf("failed to append event %s to batch: %w", r.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	w.log.WithField("events", len(records)).Debug("Wrote events to ClickHouse")
	return nil
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
