package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/aluiziolira/keiba-shutuba/models"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// success prints a green message with a checkmark prefix.
func success(format string, a ...any) {
	green.Printf("✓ %s\n", fmt.Sprintf(format, a...))
}

func warning(format string, a ...any) {
	yellow.Printf("⚠️  %s\n", fmt.Sprintf(format, a...))
}

// failure prints title and detail to stderr and returns an error for cobra,
// which stays silent about it.
func failure(title string, err error) error {
	red.Fprintf(os.Stderr, "%s\n", title)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	return fmt.Errorf("%s", title)
}

// raceSummary is one line of the post-run table.
type raceSummary struct {
	Venue    string
	Race     string
	PostTime string
	Runners  int
}

// summarizeRaces counts runners per (venue, race) in first-seen order.
// Rows arrive sorted, so first-seen order is the table order.
func summarizeRaces(rows []models.EntryRow) []raceSummary {
	index := make(map[string]int)
	var out []raceSummary
	for _, row := range rows {
		key := row.Venue + "\x00" + row.Race
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, raceSummary{Venue: row.Venue, Race: row.Race, PostTime: row.PostTime})
		}
		out[i].Runners++
	}
	return out
}

// printSummary renders the per-race table and the run totals to w.
func printSummary(w io.Writer, result *models.ScrapeResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("競馬場", "レース", "発走", "頭数")
	for _, s := range summarizeRaces(result.Table.Rows) {
		if err := table.Append([]string{s.Venue, s.Race, s.PostTime, strconv.Itoa(s.Runners)}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	cyan.Fprintf(w, "run %s: %d races found, %d rows, %d failed, %d requests in %s\n",
		result.RunID,
		result.RacesFound,
		result.Table.Len(),
		len(result.FailedRaces),
		result.RequestCount,
		formatDuration(result.EndTime.Sub(result.StartTime)),
	)
	if len(result.FailedVenues) > 0 {
		fmt.Fprintf(w, "venues without listings: %v\n", result.FailedVenues)
	}
	for kind, n := range result.ErrorsByType {
		fmt.Fprintf(w, "  %s: %d\n", kind, n)
	}
	return nil
}
