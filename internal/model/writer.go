package model

import (
	"context"
	"time"
)

// ArchiveRecord is a single classified event as seen by an analytics archive.
type ArchiveRecord struct {
	EventID        string
	IPOrigin       string
	Classification string
	Features       []string
	Timestamp      time.Time
}

// Writer defines a generic interface for writing classified events to a persistent archive.
type Writer interface {
	// Write persists a batch of records.
	Write(ctx context.Context, records []ArchiveRecord) error

	// GetInterval returns the configured flush interval for this writer.
	GetInterval() time.Duration
}
