package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/keiba-shutuba/config"
	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/aluiziolira/keiba-shutuba/workbook"
)

var sampleRow = models.EntryRow{
	Venue:       "中山",
	Race:        "11R",
	PostTime:    "15:40",
	Gate:        "3",
	HorseNumber: "5",
	HorseName:   "サンプルホース",
	Jockey:      "騎手A",
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entries.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]models.EntryRow{sampleRow}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != models.ColumnVenue || records[0][6] != models.ColumnJockey {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][5] != "サンプルホース" {
		t.Fatalf("unexpected record: %v", records[1])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entries.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]models.EntryRow{sampleRow, sampleRow}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.EntryRow
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded != sampleRow {
			t.Fatalf("decoded %+v, want %+v", decoded, sampleRow)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "entries.csv")
	jsonPath := filepath.Join(dir, "entries.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write([]models.EntryRow{sampleRow}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
}

type failingCloser struct {
	mockWriter
	err error
}

func (f *failingCloser) Close() error {
	f.mockWriter.Close()
	return f.err
}

func TestMultiWriterClosesEveryOutput(t *testing.T) {
	first := &failingCloser{err: errors.New("disk full")}
	second := &mockWriter{}

	mw, err := NewMultiWriter([]string{"a.xlsx", "b.csv"}, []OutputWriter{first, second})
	if err != nil {
		t.Fatalf("new multi writer: %v", err)
	}
	if err := mw.Write([]models.EntryRow{sampleRow}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if first.totalWritten() != 1 || second.totalWritten() != 1 {
		t.Fatalf("rows fanned out = %d/%d, want 1/1", first.totalWritten(), second.totalWritten())
	}

	err = mw.Close()
	if err == nil || !strings.Contains(err.Error(), "a.xlsx") {
		t.Fatalf("close error = %v, want one naming a.xlsx", err)
	}
	if !second.closed {
		t.Fatalf("second output left open after first failed")
	}

	if _, err := NewMultiWriter([]string{"a"}, nil); err == nil {
		t.Fatalf("expected mismatched paths error")
	}
}

func TestWriteAllKeepsTextOutputsWhenNothingRenders(t *testing.T) {
	dir := t.TempDir()
	w, paths, err := NewWriter(config.FormatAll, dir, "出馬表", "20240106", workbook.NewRenderer(100, nil))
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	unrenderable := sampleRow
	unrenderable.Gate = ""
	table := models.NewEntryTable()
	table.Rows = []models.EntryRow{unrenderable}

	if err := Write(w, table, 0); !errors.Is(err, workbook.ErrNoRows) {
		t.Fatalf("write error = %v, want ErrNoRows", err)
	}
	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Fatalf("workbook written although nothing rendered")
	}
	for _, p := range paths[1:] {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("text output %s missing: %v", p, err)
		}
	}
}

type stubRenderer struct {
	got models.EntryTable
	err error
}

func (s *stubRenderer) Render(table models.EntryTable) ([]byte, error) {
	s.got = table
	if s.err != nil {
		return nil, s.err
	}
	return []byte("PK"), nil
}

func TestXLSXWriterRendersOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "entries.xlsx")
	renderer := &stubRenderer{}

	writer, err := NewXLSXWriter(path, renderer)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.Write([]models.EntryRow{sampleRow}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("workbook written before close")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if renderer.got.Len() != 1 {
		t.Fatalf("renderer saw %d rows, want 1", renderer.got.Len())
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Write([]models.EntryRow{sampleRow}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed after close, got %v", err)
	}
}

func TestXLSXWriterRenderError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.xlsx")
	writer, err := NewXLSXWriter(path, &stubRenderer{err: errors.New("bad schema")})
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.Close(); err == nil {
		t.Fatalf("expected render error")
	}
}

func TestNewWriterFormats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		want   []string
	}{
		{config.FormatXLSX, []string{"出馬表_20240101.xlsx"}},
		{config.FormatCSV, []string{"出馬表_20240101.csv"}},
		{config.FormatJSON, []string{"出馬表_20240101.jsonl"}},
		{config.FormatDual, []string{"出馬表_20240101.csv", "出馬表_20240101.jsonl"}},
		{config.FormatAll, []string{"出馬表_20240101.xlsx", "出馬表_20240101.csv", "出馬表_20240101.jsonl"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, paths, err := NewWriter(tt.format, dir, "出馬表", "20240101", &stubRenderer{})
			if err != nil {
				t.Fatalf("new writer: %v", err)
			}
			defer w.Close()
			if len(paths) != len(tt.want) {
				t.Fatalf("paths = %v, want %v", paths, tt.want)
			}
			for i, name := range tt.want {
				if filepath.Base(paths[i]) != name {
					t.Fatalf("path %d = %s, want %s", i, paths[i], name)
				}
			}
		})
	}

	if _, _, err := NewWriter("pdf", dir, "x", "20240101", nil); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
