// Package workbook renders an aggregated entry table as a formatted xlsx
// workbook with one sheet per race.
package workbook

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Layout constants of a race sheet.
const (
	titleRow    = 1
	headerRow   = 2
	dataStart   = 3
	titleHeight = 42.0
	rowHeight   = 22.0
	pageMargin  = 0.3
	lastCol     = "F"
)

// HeaderLabels are the column captions written on row 2.
var HeaderLabels = []string{"枠番", "馬番", "印", "馬名", "騎手名", "コメント"}

// MarkChoices feed the dropdown of the mark column.
var MarkChoices = []string{"◎", "◯", "▲", "△"}

var columnWidths = []float64{4, 4, 4, 20, 12, 42}

// RequiredColumns must be present in a table handed to Render.
var RequiredColumns = []string{
	models.ColumnVenue,
	models.ColumnRace,
	models.ColumnGate,
	models.ColumnHorseNumber,
	models.ColumnHorseName,
	models.ColumnJockey,
}

// ErrNoRows is returned when no row survives coercion.
var ErrNoRows = errors.New("workbook: no renderable rows")

// NoRowsWarning is the soft outcome shown instead of a workbook when Render
// returns ErrNoRows for date.
func NoRowsWarning(date string) *models.EmptyResultWarning {
	return &models.EmptyResultWarning{
		Date:   date,
		Reason: "no entry has a numeric race, gate and horse number; no workbook was written",
	}
}

// SchemaError reports a table lacking required columns.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("workbook: required columns missing: %s", strings.Join(e.Missing, ", "))
}

var raceNumberPattern = regexp.MustCompile(`\d+`)

// Renderer builds workbooks from entry tables.
type Renderer struct {
	Zoom   int
	logger *zap.Logger
}

// NewRenderer returns a renderer whose sheets open at zoom percent.
func NewRenderer(zoom int, log *zap.Logger) *Renderer {
	return &Renderer{Zoom: zoom, logger: logger.OrNop(log)}
}

type sheetRow struct {
	gate   int
	number int
	name   string
	jockey string
}

type raceGroup struct {
	venue    string
	race     int
	postTime time.Time
	hasTime  bool
	rows     []sheetRow
}

// Render returns the xlsx bytes for table. Rows whose race, gate or horse
// number cannot be read as integers are dropped.
func (r *Renderer) Render(table models.EntryTable) ([]byte, error) {
	if err := checkSchema(table); err != nil {
		return nil, err
	}

	groups := r.groupRaces(table)
	if len(groups) == 0 {
		return nil, ErrNoRows
	}

	f := excelize.NewFile()
	defer f.Close()

	styles := newStyleCache(f)
	used := make(map[string]struct{}, len(groups))
	for i, g := range groups {
		name := uniqueSheetName(SheetName(g.venue, g.race), used)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return nil, fmt.Errorf("name sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
		if err := r.writeSheet(f, name, g, styles); err != nil {
			return nil, fmt.Errorf("write sheet %q: %w", name, err)
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	r.logger.Debug("workbook rendered",
		zap.Int("sheets", len(groups)),
		zap.Int("styles", styles.size()),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

func checkSchema(table models.EntryTable) error {
	var missing []string
	for _, c := range RequiredColumns {
		if !table.HasColumns(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// groupRaces coerces rows and orders race groups by (earliest post time,
// venue, race). Groups without any valid post time sort last.
func (r *Renderer) groupRaces(table models.EntryTable) []*raceGroup {
	withTime := table.HasColumns(models.ColumnPostTime)
	index := make(map[string]*raceGroup)
	var groups []*raceGroup
	dropped := 0

	for _, row := range table.Rows {
		race, ok1 := raceNumber(row.Race)
		gate, ok2 := wholeNumber(row.Gate)
		number, ok3 := wholeNumber(row.HorseNumber)
		if row.Venue == "" || !ok1 || !ok2 || !ok3 {
			dropped++
			continue
		}

		key := row.Venue + "\x00" + strconv.Itoa(race)
		g, ok := index[key]
		if !ok {
			g = &raceGroup{venue: row.Venue, race: race}
			index[key] = g
			groups = append(groups, g)
		}
		if withTime {
			if t, err := time.Parse("15:04", strings.TrimSpace(row.PostTime)); err == nil {
				if !g.hasTime || t.Before(g.postTime) {
					g.postTime, g.hasTime = t, true
				}
			}
		}
		g.rows = append(g.rows, sheetRow{gate: gate, number: number, name: row.HorseName, jockey: row.Jockey})
	}
	if dropped > 0 {
		r.logger.Debug("rows dropped before rendering", zap.Int("rows", dropped))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.hasTime != b.hasTime {
			return a.hasTime
		}
		if a.hasTime && !a.postTime.Equal(b.postTime) {
			return a.postTime.Before(b.postTime)
		}
		if a.venue != b.venue {
			return a.venue < b.venue
		}
		return a.race < b.race
	})
	for _, g := range groups {
		sort.SliceStable(g.rows, func(i, j int) bool {
			if g.rows[i].gate != g.rows[j].gate {
				return g.rows[i].gate < g.rows[j].gate
			}
			return g.rows[i].number < g.rows[j].number
		})
	}
	return groups
}

func raceNumber(s string) (int, bool) {
	m := raceNumberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}

func wholeNumber(s string) (int, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v != float64(int(v)) {
		return 0, false
	}
	return int(v), true
}

// SheetName returns "<venue>-<race>R" made safe for a worksheet name.
func SheetName(venue string, race int) string {
	name := strings.Trim(fmt.Sprintf("%s-%dR", venue, race), "'")
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, name)
	return truncateRunes(name, excelize.MaxSheetNameLength)
}

func uniqueSheetName(name string, used map[string]struct{}) string {
	candidate := name
	for n := 2; ; n++ {
		if _, taken := used[strings.ToLower(candidate)]; !taken {
			break
		}
		suffix := fmt.Sprintf("~%d", n)
		candidate = truncateRunes(name, excelize.MaxSheetNameLength-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func cell(col string, row int) string {
	return col + strconv.Itoa(row)
}

func (r *Renderer) writeSheet(f *excelize.File, sheet string, g *raceGroup, styles *styleCache) error {
	if err := r.layout(f, sheet); err != nil {
		return err
	}

	titleStyle, err := styles.get(styleKey{kind: kindTitle})
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s%dR　レースコメント：", g.venue, g.race)
	if err := f.SetCellValue(sheet, cell("A", titleRow), title); err != nil {
		return err
	}
	if err := f.MergeCell(sheet, cell("A", titleRow), cell(lastCol, titleRow)); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, cell("A", titleRow), cell(lastCol, titleRow), titleStyle); err != nil {
		return err
	}
	if err := f.SetRowHeight(sheet, titleRow, titleHeight); err != nil {
		return err
	}

	for c, label := range HeaderLabels {
		col, _ := excelize.ColumnNumberToName(c + 1)
		id, err := styles.get(styleKey{kind: kindHeader, top: true, left: c == 0, right: c == len(HeaderLabels)-1})
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell(col, headerRow), label); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell(col, headerRow), cell(col, headerRow), id); err != nil {
			return err
		}
	}

	n := len(g.rows)
	bottomRow := dataStart + n - 1
	for i, row := range g.rows {
		wr := dataStart + i
		top, bottom := wr == dataStart, wr == bottomRow

		cellStyle, err := styles.get(styleKey{kind: kindCell, top: top, bottom: bottom})
		if err != nil {
			return err
		}
		wrapStyle, err := styles.get(styleKey{kind: kindWrap, top: top, bottom: bottom, right: true})
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell("D", wr), row.name); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell("E", wr), row.jockey); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell("C", wr), cell("E", wr), cellStyle); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell("F", wr), cell("F", wr), wrapStyle); err != nil {
			return err
		}
	}

	gates := make([]int, n)
	for i, row := range g.rows {
		gates[i] = row.gate
	}
	for _, run := range GateRuns(gates) {
		if err := writeGateRun(f, sheet, g.rows, run, bottomRow, styles); err != nil {
			return err
		}
	}

	dv := excelize.NewDataValidation(true)
	dv.SetSqref(fmt.Sprintf("C%d:C%d", dataStart, bottomRow))
	if err := dv.SetDropList(MarkChoices); err != nil {
		return err
	}
	return f.AddDataValidation(sheet, dv)
}

// writeGateRun renders one gate block: a merged colored cell in column A
// and colored horse numbers in column B.
func writeGateRun(f *excelize.File, sheet string, rows []sheetRow, run Run, bottomRow int, styles *styleCache) error {
	bg, font := WakuColor(run.Gate)
	r1 := dataStart + run.Start
	r2 := r1 + run.Len - 1

	gateStyle, err := styles.get(styleKey{
		kind: kindWaku, top: r1 == dataStart, bottom: r2 == bottomRow, left: true, bg: bg, font: font,
	})
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell("A", r1), run.Gate); err != nil {
		return err
	}
	if r2 > r1 {
		if err := f.MergeCell(sheet, cell("A", r1), cell("A", r2)); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheet, cell("A", r1), cell("A", r2), gateStyle); err != nil {
		return err
	}

	for wr := r1; wr <= r2; wr++ {
		numberStyle, err := styles.get(styleKey{
			kind: kindWaku, top: wr == dataStart, bottom: wr == bottomRow, bg: bg, font: font,
		})
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell("B", wr), rows[wr-dataStart].number); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell("B", wr), cell("B", wr), numberStyle); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) layout(f *excelize.File, sheet string) error {
	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}

	height, custom := rowHeight, true
	if err := f.SetSheetProps(sheet, &excelize.SheetPropsOptions{
		DefaultRowHeight: &height,
		CustomHeight:     &custom,
	}); err != nil {
		return err
	}

	gridlines := false
	zoom := float64(r.Zoom)
	if err := f.SetSheetView(sheet, 0, &excelize.ViewOptions{
		ShowGridLines: &gridlines,
		ZoomScale:     &zoom,
	}); err != nil {
		return err
	}

	margin := pageMargin
	return f.SetPageMargins(sheet, &excelize.PageLayoutMarginsOptions{
		Top:    &margin,
		Bottom: &margin,
		Left:   &margin,
		Right:  &margin,
	})
}
