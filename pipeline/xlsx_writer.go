package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/keiba-shutuba/config"
	"github.com/aluiziolira/keiba-shutuba/models"
)

// TableRenderer turns an aggregated table into workbook bytes.
type TableRenderer interface {
	Render(table models.EntryTable) ([]byte, error)
}

// XLSXWriter buffers rows and renders them as one workbook on Close.
type XLSXWriter struct {
	filename string
	renderer TableRenderer

	mu     sync.Mutex
	rows   []models.EntryRow
	closed bool
}

// NewXLSXWriter prepares a workbook writer targeting filename.
func NewXLSXWriter(filename string, renderer TableRenderer) (*XLSXWriter, error) {
	if renderer == nil {
		return nil, fmt.Errorf("xlsx writer needs a renderer")
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &XLSXWriter{filename: filename, renderer: renderer}, nil
}

// Write buffers rows until Close.
func (xw *XLSXWriter) Write(rows []models.EntryRow) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.closed {
		return ErrPipelineClosed
	}
	xw.rows = append(xw.rows, rows...)
	return nil
}

// Close renders the buffered rows and writes the workbook file.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.closed {
		return nil
	}
	xw.closed = true

	table := models.NewEntryTable()
	table.Rows = xw.rows
	data, err := xw.renderer.Render(table)
	if err != nil {
		return fmt.Errorf("render workbook: %w", err)
	}
	if err := os.WriteFile(xw.filename, data, 0o644); err != nil {
		return fmt.Errorf("write xlsx file: %w", err)
	}
	return nil
}

// Validate ensures the workbook file was written.
func (xw *XLSXWriter) Validate() error {
	return validateFile(xw.filename, "xlsx")
}

// FileName returns the download/output name for a date: <label>_<date>.<ext>.
func FileName(label, date, ext string) string {
	return fmt.Sprintf("%s_%s.%s", label, date, ext)
}

// NewWriter creates the writer for format inside dir and returns the paths
// it will produce.
func NewWriter(format, dir, label, date string, renderer TableRenderer) (OutputWriter, []string, error) {
	path := func(ext string) string {
		return filepath.Join(dir, FileName(label, date, ext))
	}

	switch format {
	case config.FormatXLSX:
		p := path("xlsx")
		w, err := NewXLSXWriter(p, renderer)
		return w, []string{p}, err
	case config.FormatCSV:
		p := path("csv")
		w, err := NewCSVWriter(p)
		return w, []string{p}, err
	case config.FormatJSON:
		p := path("jsonl")
		w, err := NewJSONWriter(p)
		return w, []string{p}, err
	case config.FormatDual:
		csvPath, jsonPath := path("csv"), path("jsonl")
		w, err := NewDualWriter(csvPath, jsonPath)
		return w, []string{csvPath, jsonPath}, err
	case config.FormatAll:
		paths := []string{path("xlsx"), path("csv"), path("jsonl")}
		xw, err := NewXLSXWriter(paths[0], renderer)
		if err != nil {
			return nil, nil, err
		}
		dw, err := NewDualWriter(paths[1], paths[2])
		if err != nil {
			return nil, nil, err
		}
		w, err := NewMultiWriter([]string{paths[0], "csv+jsonl"}, []OutputWriter{xw, dw})
		return w, paths, err
	default:
		return nil, nil, fmt.Errorf("unsupported output format %q", format)
	}
}
