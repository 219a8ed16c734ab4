package archive

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Go2NetShield/internal/model"
)

const timestampLayout = "2006-01-02_15-04-05"

// Summary is written next to every gob batch.
type Summary struct {
	Events           int            `json:"events"`
	ByClassification map[string]int `json:"by_classification"`
	First            time.Time      `json:"first"`
	Last             time.Time      `json:"last"`
	Timestamp        string         `json:"timestamp"`
}

// GobWriter archives each batch under <root>/<timestamp>/ as events.gob plus
// summary.json. It implements model.Writer.
type GobWriter struct {
	rootPath string
	interval time.Duration
	now      func() time.Time
}

// NewGobWriter creates a writer rooted at rootPath.
func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval, now: time.Now}
}

// GetInterval returns the configured flush interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *GobWriter) Write(_ context.Context, records []model.ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}

	// 1. Create the timestamped directory. Batches flushed within the same
	// second share a directory, so the file names carry a sequence suffix.
	timestamp := w.now().UTC().Format(timestampLayout)
	dir := filepath.Join(w.rootPath, timestamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	seq, err := nextSequence(dir)
	if err != nil {
		return err
	}

	// 2. Encode the records.
	dataPath := filepath.Join(dir, fmt.Sprintf("events_%d.gob", seq))
	if err := writeGob(dataPath, records); err != nil {
		return err
	}

	// 3. Write the summary.
	summary := summarize(records)
	summary.Timestamp = timestamp
	summaryPath := filepath.Join(dir, fmt.Sprintf("summary_%d.json", seq))
	f, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

func nextSequence(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "events_*.gob"))
	if err != nil {
		return 0, fmt.Errorf("failed to list archive directory: %w", err)
	}
	return len(matches), nil
}

func writeGob(path string, records []model.ArchiveRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file '%s': %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(records); err != nil {
		return fmt.Errorf("failed to encode events to gob for file '%s': %w", path, err)
	}
	return nil
}

// ReadGob decodes a batch written by GobWriter.
func ReadGob(path string) ([]model.ArchiveRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []model.ArchiveRecord
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode '%s': %w", path, err)
	}
	return records, nil
}

func summarize(records []model.ArchiveRecord) Summary {
	s := Summary{Events: len(records), ByClassification: make(map[string]int)}
	for i, r := range records {
		s.ByClassification[r.Classification]++
		if i == 0 || r.Timestamp.Before(s.First) {
			s.First = r.Timestamp
		}
		if r.Timestamp.After(s.Last) {
			s.Last = r.Timestamp
		}
	}
	return s
}
