// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"time"
)

// Canonical column names of an entry table, in output order.
const (
	ColumnVenue       = "競馬場名"
	ColumnRace        = "レース"
	ColumnPostTime    = "発走時刻"
	ColumnGate        = "枠番"
	ColumnHorseNumber = "馬番"
	ColumnHorseName   = "馬名"
	ColumnJockey      = "騎手名"
)

// CanonicalColumns is the column set every extracted table carries.
var CanonicalColumns = []string{
	ColumnVenue,
	ColumnRace,
	ColumnPostTime,
	ColumnGate,
	ColumnHorseNumber,
	ColumnHorseName,
	ColumnJockey,
}

// RaceID is the 12-digit code identifying one race on one date at one venue.
type RaceID string

// EntryRow is one horse's entry in one race. Numeric fields stay textual
// until the workbook renderer coerces them.
type EntryRow struct {
	Venue       string `csv:"venue" json:"venue"`
	Race        string `csv:"race" json:"race"`
	PostTime    string `csv:"post_time" json:"post_time"`
	Gate        string `csv:"gate" json:"gate"`
	HorseNumber string `csv:"horse_number" json:"horse_number"`
	HorseName   string `csv:"horse_name" json:"horse_name"`
	Jockey      string `csv:"jockey" json:"jockey"`
}

// Key identifies a row within a date: (venue, race label, horse number).
func (r EntryRow) Key() string {
	return r.Venue + "\x00" + r.Race + "\x00" + r.HorseNumber
}

// Record returns the row values in canonical column order.
func (r EntryRow) Record() []string {
	return []string{r.Venue, r.Race, r.PostTime, r.Gate, r.HorseNumber, r.HorseName, r.Jockey}
}

// EntryTable is an ordered collection of entry rows plus the columns the
// producer populated.
type EntryTable struct {
	Columns []string
	Rows    []EntryRow
}

// NewEntryTable returns an empty table carrying the canonical column set.
func NewEntryTable() EntryTable {
	cols := make([]string, len(CanonicalColumns))
	copy(cols, CanonicalColumns)
	return EntryTable{Columns: cols}
}

// Len reports the number of rows.
func (t EntryTable) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t EntryTable) Empty() bool {
	return len(t.Rows) == 0
}

// HasColumns reports whether every named column is present.
func (t EntryTable) HasColumns(names ...string) bool {
	present := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		present[c] = struct{}{}
	}
	for _, n := range names {
		if _, ok := present[n]; !ok {
			return false
		}
	}
	return true
}

// RaceResult is the outcome of extracting one race: either a table or an
// error, never both.
type RaceResult struct {
	RaceID RaceID
	Table  EntryTable
	Err    error
}

// OK reports whether the extraction succeeded.
func (r RaceResult) OK() bool {
	return r.Err == nil
}

// EmptyResultWarning signals that a date produced no usable rows. It is a
// soft outcome surfaced to the user, not a failure of the run.
type EmptyResultWarning struct {
	Date string
	// Reason replaces the default race-day hint, e.g. when rows were found
	// but none could be rendered.
	Reason string
}

func (w *EmptyResultWarning) Error() string {
	if w.Reason != "" {
		return fmt.Sprintf("no usable rows for %s: %s", w.Date, w.Reason)
	}
	return fmt.Sprintf("no races found for %s; check that it is a race day", w.Date)
}

// ScrapeResult holds the overall result of a scraping run.
type ScrapeResult struct {
	RunID          string
	Date           string
	Table          EntryTable
	StartTime      time.Time
	EndTime        time.Time
	RacesFound     int
	FailedRaces    []RaceID
	FailedVenues   []string
	ErrorsByType   map[string]int
	RequestCount   int
	DroppedInvalid int
	DroppedDupes   int
}

// Warning returns an EmptyResultWarning when the run produced no rows.
func (r *ScrapeResult) Warning() *EmptyResultWarning {
	if r == nil || r.Table.Empty() {
		date := ""
		if r != nil {
			date = r.Date
		}
		return &EmptyResultWarning{Date: date}
	}
	return nil
}
