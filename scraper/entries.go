package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/aluiziolira/keiba-shutuba/parser"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// RaceInfoSelector matches the block holding the post time.
const RaceInfoSelector = ".RaceData01"

// Extractor turns one race's entry page into entry rows.
type Extractor struct {
	fetcher DocumentFetcher
	baseURL string
	logger  *zap.Logger
}

// NewExtractor builds an extractor reading entry pages under baseURL.
func NewExtractor(fetcher DocumentFetcher, baseURL string, log *zap.Logger) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.OrNop(log),
	}
}

// EntryURL returns the entry page URL of a race.
func (e *Extractor) EntryURL(id models.RaceID) string {
	return fmt.Sprintf("%s/race/shutuba.html?race_id=%s", e.baseURL, id)
}

// Extract fetches and parses one race. Failures are carried in the result.
func (e *Extractor) Extract(id models.RaceID) models.RaceResult {
	entryURL := e.EntryURL(id)
	page, err := e.fetcher.Fetch(entryURL, parser.EntryPageMarkers)
	if err != nil {
		return models.RaceResult{RaceID: id, Err: err}
	}

	table, err := ParseEntryPage(page.Text)
	if err != nil {
		return models.RaceResult{RaceID: id, Err: &ParseError{URL: entryURL, Err: err}}
	}
	e.logger.Debug("race extracted",
		zap.String("race_id", string(id)),
		zap.Int("rows", table.Len()),
		zap.String("encoding", page.Encoding),
	)
	return models.RaceResult{RaceID: id, Table: table}
}

// ParseEntryPage extracts race metadata and one row per starting horse.
// A page without an entry table yields an empty table, not an error.
func ParseEntryPage(text string) (models.EntryTable, error) {
	table := models.NewEntryTable()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return table, fmt.Errorf("parsing HTML: %w", err)
	}

	venue, race := parser.ParseTitle(strippedText(doc.Find("title").First()))
	postTime := ""
	if info := doc.Find(RaceInfoSelector).First(); info.Length() > 0 {
		postTime = parser.ParsePostTime(strings.Join(strippedStrings(info), " "))
	}

	tbl := findEntryTable(doc)
	if tbl == nil {
		return table, nil
	}

	rows := tbl.Find("tr")
	headers := cellTexts(rows.First().Find("th, td"))
	idx, _ := parser.ResolveColumns(headers)

	seen := make(map[string]struct{})
	rows.Each(func(i int, tr *goquery.Selection) {
		if i == 0 || tr.Find("th").Length() > 0 {
			return
		}
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return
		}
		cols := cellTexts(tds)

		row := models.EntryRow{
			Venue:       venue,
			Race:        race,
			PostTime:    postTime,
			Gate:        parser.NormalizeText(parser.Pick(cols, idx.Gate)),
			HorseNumber: parser.NormalizeText(parser.Pick(cols, idx.HorseNumber)),
			HorseName:   parser.NormalizeText(parser.Pick(cols, idx.HorseName)),
			Jockey:      parser.NormalizeText(parser.Pick(cols, idx.Jockey)),
		}
		if parser.ValidateEntry(&row) != nil {
			return
		}
		// Upstream markup occasionally repeats a horse; the first wins.
		if _, dup := seen[row.HorseNumber]; dup {
			return
		}
		seen[row.HorseNumber] = struct{}{}
		table.Rows = append(table.Rows, row)
	})

	return table, nil
}

// findEntryTable returns the first table whose leading cells mention an
// entry marker.
func findEntryTable(doc *goquery.Document) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		if parser.IsEntryHeader(cellTexts(tbl.Find("th, td"))) {
			found = tbl
			return false
		}
		return true
	})
	return found
}

func cellTexts(cells *goquery.Selection) []string {
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		out = append(out, strippedText(c))
	})
	return out
}

// strippedText concatenates the trimmed text nodes under s.
func strippedText(s *goquery.Selection) string {
	return strings.Join(strippedStrings(s), "")
}

// strippedStrings returns the non-empty trimmed text nodes under s in
// document order.
func strippedStrings(s *goquery.Selection) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out = append(out, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return out
}
