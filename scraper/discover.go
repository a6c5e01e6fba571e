package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/aluiziolira/keiba-shutuba/parser"
	"go.uber.org/zap"
)

// VenueSlots is the number of venue codes (01..10) enumerated per date.
const VenueSlots = 10

// ListingLinkSelector matches race links on a venue listing page.
const ListingLinkSelector = ".RaceList_DataItem a[href*='race_id=']"

// Discoverer enumerates the race identifiers held on a date.
type Discoverer struct {
	fetcher DocumentFetcher
	baseURL string
	logger  *zap.Logger
}

// NewDiscoverer builds a discoverer reading listing pages under baseURL.
func NewDiscoverer(fetcher DocumentFetcher, baseURL string, log *zap.Logger) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.OrNop(log),
	}
}

// ListingURL returns the listing page URL for one date and venue slot.
func (d *Discoverer) ListingURL(date string, venue int) string {
	return fmt.Sprintf("%s/top/race_list_sub.html?kaisai_date=%s&kaisai_place=%02d", d.baseURL, date, venue)
}

// Discover fetches every venue slot for date and returns the sorted unique
// race identifiers. A slot that fails to fetch is logged and skipped; its
// URL is reported in failed.
func (d *Discoverer) Discover(ctx context.Context, date string) (ids []models.RaceID, failed []string, err error) {
	found := make(map[string]struct{})
	for venue := 1; venue <= VenueSlots; venue++ {
		if err := ctx.Err(); err != nil {
			return nil, failed, err
		}
		listingURL := d.ListingURL(date, venue)
		page, err := d.fetcher.Fetch(listingURL, parser.ListingMarkers)
		if err != nil {
			d.logger.Warn("venue listing fetch failed",
				zap.String("url", listingURL),
				zap.String("category", errorTypeLabel(err)),
				zap.Error(err),
			)
			failed = append(failed, listingURL)
			continue
		}
		raceIDs, err := ParseRaceIDs(page.Text)
		if err != nil {
			d.logger.Warn("venue listing parse failed", zap.String("url", listingURL), zap.Error(err))
			failed = append(failed, listingURL)
			continue
		}
		for _, id := range raceIDs {
			found[id] = struct{}{}
		}
		d.logger.Debug("venue listing scanned",
			zap.Int("venue", venue),
			zap.Int("races", len(raceIDs)),
			zap.String("encoding", page.Encoding),
		)
	}

	keys := make([]string, 0, len(found))
	for id := range found {
		keys = append(keys, id)
	}
	sort.Strings(keys)

	ids = make([]models.RaceID, len(keys))
	for i, k := range keys {
		ids[i] = models.RaceID(k)
	}
	return ids, failed, nil
}

// ParseRaceIDs returns the race identifiers linked from a listing page in
// document order, possibly with repeats.
func ParseRaceIDs(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	ids := make([]string, 0)
	doc.Find(ListingLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if id, ok := parser.ParseRaceID(href); ok {
			ids = append(ids, id)
		}
	})
	return ids, nil
}
