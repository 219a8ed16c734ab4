package sensor

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"Go2NetShield/internal/engine/features"
)

// CalibrationWriter appends feature vectors to a CSV file used as a local
// traffic baseline for training.
type CalibrationWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	rows int
}

// NewCalibrationWriter opens path for appending and writes the header when
// the file is new.
func NewCalibrationWriter(path string) (*CalibrationWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create calibration directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	c := &CalibrationWriter{file: file, w: csv.NewWriter(file)}
	if info.Size() == 0 {
		header := append([]string{"ip_origin"}, features.Names...)
		if err := c.w.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write calibration header: %w", err)
		}
	}
	return c, nil
}

// Write appends one row.
func (c *CalibrationWriter) Write(ip string, v features.Vector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Write(append([]string{ip}, v.Strings()...)); err != nil {
		return err
	}
	c.rows++
	// Keep the file usable if the process is killed.
	if c.rows%100 == 0 {
		c.w.Flush()
	}
	return c.w.Error()
}

// Rows returns the number of vectors written by this writer.
func (c *CalibrationWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Close flushes and closes the file.
func (c *CalibrationWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
