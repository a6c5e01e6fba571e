package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/keiba-shutuba/models"
)

// namedWriter labels an output so errors say which file failed.
type namedWriter struct {
	name string
	w    OutputWriter
}

// MultiWriter hands every batch to several outputs, e.g. the workbook plus
// a CSV copy of the same table.
type MultiWriter struct {
	mu      sync.Mutex
	writers []namedWriter
}

// NewMultiWriter fans out to writers keyed by path. paths and writers are
// parallel slices.
func NewMultiWriter(paths []string, writers []OutputWriter) (*MultiWriter, error) {
	if len(paths) != len(writers) {
		return nil, fmt.Errorf("multi writer: %d paths for %d writers", len(paths), len(writers))
	}
	mw := &MultiWriter{}
	for i, w := range writers {
		mw.writers = append(mw.writers, namedWriter{name: filepath.Base(paths[i]), w: w})
	}
	return mw, nil
}

// NewDualWriter writes the table as CSV and as JSON lines.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}
	return NewMultiWriter(
		[]string{csvFilename, jsonFilename},
		[]OutputWriter{csvWriter, jsonWriter},
	)
}

// Write stops at the first output that rejects the batch.
func (mw *MultiWriter) Write(rows []models.EntryRow) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, nw := range mw.writers {
		if err := nw.w.Write(rows); err != nil {
			return fmt.Errorf("%s: %w", nw.name, err)
		}
	}
	return nil
}

// Close closes every output even when one fails. A workbook that renders
// nothing leaves the text outputs intact.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, nw := range mw.writers {
		if err := nw.w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nw.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks every output file.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, nw := range mw.writers {
		if err := nw.w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nw.name, err))
		}
	}
	return errors.Join(errs...)
}
