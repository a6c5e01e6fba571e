package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aluiziolira/keiba-shutuba/config"
	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/aluiziolira/keiba-shutuba/parser"
	"github.com/aluiziolira/keiba-shutuba/pipeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scraper collects the entry table of every race held on a date.
type Scraper struct {
	cfg     *config.Config
	fetcher *Fetcher
	Metrics *Metrics
	logger  *zap.Logger

	// Runs are serialized; the fetcher issues one request at a time.
	runMu sync.Mutex
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, log *zap.Logger) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics, log)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		Metrics: metrics,
		logger:  logger.OrNop(log),
	}, nil
}

// WithTransport swaps the HTTP transport of the underlying fetcher.
func (s *Scraper) WithTransport(rt http.RoundTripper) {
	s.fetcher.WithTransport(rt)
}

// Run normalizes rawDate, discovers the date's races and aggregates their
// entries. An invalid date yields a *parser.InvalidInputError. Per-race
// failures are logged and reported in the result, never returned.
func (s *Scraper) Run(ctx context.Context, rawDate string) (*models.ScrapeResult, error) {
	date, err := parser.NormalizeDate(rawDate)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	log := s.logger.With(zap.String("run_id", runID), zap.String("date", date))
	start := time.Now()
	requestsBefore := s.fetcher.RequestCount()

	log.Info("scrape started", zap.String("base_url", s.cfg.BaseURL))

	discoverer := NewDiscoverer(s.fetcher, s.cfg.BaseURL, log)
	ids, failedVenues, err := discoverer.Discover(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("discover races: %w", err)
	}
	log.Info("races discovered", zap.Int("races", len(ids)), zap.Int("failed_venues", len(failedVenues)))

	extractor := NewExtractor(s.fetcher, s.cfg.BaseURL, log)
	p := pipeline.NewPipeline(log)
	errorsByType := make(map[string]int)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := extractor.Extract(id)
		if res.OK() {
			s.Metrics.AddEntries(res.Table.Len())
		} else {
			label := errorTypeLabel(res.Err)
			errorsByType[label]++
			s.Metrics.IncRaceFailed()
			if label == KindParse {
				s.Metrics.IncError(KindParse)
			}
		}
		if err := p.Process(res); err != nil {
			return nil, fmt.Errorf("aggregate race %s: %w", id, err)
		}
	}
	p.Close()

	validation, _ := p.GetMetrics()["validation_errors"].(map[string]int)
	result := &models.ScrapeResult{
		RunID:          runID,
		Date:           date,
		Table:          p.Table(),
		StartTime:      start,
		EndTime:        time.Now(),
		RacesFound:     len(ids),
		FailedRaces:    p.FailedRaces(),
		FailedVenues:   failedVenues,
		ErrorsByType:   errorsByType,
		RequestCount:   s.fetcher.RequestCount() - requestsBefore,
		DroppedInvalid: validation["invalid_record"],
		DroppedDupes:   validation["duplicate_entry"],
	}

	log.Info("scrape finished",
		zap.Int("races", result.RacesFound),
		zap.Int("failed_races", len(result.FailedRaces)),
		zap.Int("rows", result.Table.Len()),
		zap.Int("requests", result.RequestCount),
		zap.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	if w := result.Warning(); w != nil {
		log.Warn("empty result", zap.Error(w))
	}
	return result, nil
}
