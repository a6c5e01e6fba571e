package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/aluiziolira/keiba-shutuba/parser"
	"go.uber.org/zap"
)

var (
	// ErrPipelineClosed is returned when Process is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// DefaultBatchSize is the number of rows handed to a writer per call.
const DefaultBatchSize = 64

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []models.EntryRow) error
	Close() error
	Validate() error
}

// Pipeline aggregates per-race results for one date: failed races are
// logged and set aside, rows are validated and de-duplicated.
type Pipeline struct {
	batchSize int
	logger    *zap.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	rows   []models.EntryRow
	failed []models.RaceID
	closed bool

	metrics metrics
}

// NewPipeline builds an empty aggregator.
func NewPipeline(log *zap.Logger) *Pipeline {
	return &Pipeline{
		batchSize: DefaultBatchSize,
		logger:    logger.OrNop(log),
		seen:      make(map[string]struct{}),
		metrics:   newMetrics(),
	}
}

// Process folds one race result into the aggregate. A failed race is
// recorded and skipped; it never fails the pipeline.
func (p *Pipeline) Process(res models.RaceResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}

	if !res.OK() {
		p.failed = append(p.failed, res.RaceID)
		p.metrics.addFailure()
		p.logger.Warn("race skipped",
			zap.String("race_id", string(res.RaceID)),
			zap.Error(res.Err),
		)
		return nil
	}

	for _, row := range res.Table.Rows {
		p.prepare(row)
	}
	return nil
}

// Close stops accepting results. Aggregated rows stay readable.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Table returns the aggregated rows sorted by (venue, race, horse number)
// under the canonical column set.
func (p *Pipeline) Table() models.EntryTable {
	p.mu.Lock()
	rows := make([]models.EntryRow, len(p.rows))
	copy(rows, p.rows)
	p.mu.Unlock()

	SortRows(rows)
	table := models.NewEntryTable()
	table.Rows = rows
	return table
}

// FailedRaces returns the identifiers of races that could not be extracted.
func (p *Pipeline) FailedRaces() []models.RaceID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.RaceID, len(p.failed))
	copy(out, p.failed)
	return out
}

// WriteTo writes the sorted table through w. See Write.
func (p *Pipeline) WriteTo(w OutputWriter) error {
	return Write(w, p.Table(), p.batchSize)
}

// Write sends table rows through w in batches of batchSize, then closes
// and validates the output.
func Write(w OutputWriter, table models.EntryTable, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	rows := table.Rows
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.Write(rows[start:end]); err != nil {
			w.Close()
			return fmt.Errorf("write batch: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics.snapshot()
}

func (p *Pipeline) prepare(row models.EntryRow) {
	if err := parser.ValidateEntry(&row); err != nil {
		p.metrics.addValidation("invalid_record")
		return
	}
	key := row.Key()
	if _, ok := p.seen[key]; ok {
		p.metrics.addValidation("duplicate_entry")
		return
	}
	p.seen[key] = struct{}{}
	p.rows = append(p.rows, row)
	p.metrics.incrementProcessed()
}

// SortRows orders rows by venue, then race number, then horse number.
// Race labels and horse numbers compare numerically so that "10R" follows
// "9R"; ties keep their input order.
func SortRows(rows []models.EntryRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Venue != b.Venue {
			return a.Venue < b.Venue
		}
		if c := compareNumeric(a.Race, b.Race); c != 0 {
			return c < 0
		}
		return compareNumeric(a.HorseNumber, b.HorseNumber) < 0
	})
}

// compareNumeric compares the leading digits of a and b, falling back to
// plain string order when either has none or they are equal.
func compareNumeric(a, b string) int {
	na, okA := leadingInt(a)
	nb, okB := leadingInt(b)
	if okA && okB && na != nb {
		if na < nb {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func leadingInt(s string) (int, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	return n, err == nil
}

type metrics struct {
	processed  int64
	failed     int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.processed++
}

func (m *metrics) addFailure() {
	m.failed++
}

func (m *metrics) addValidation(kind string) {
	m.validation[kind]++
}

func (m *metrics) snapshot() map[string]interface{} {
	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_rows":    m.processed,
		"failed_races":      m.failed,
		"validation_errors": copyValidation,
	}
}
