package scraper

import (
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/keiba-shutuba/config"
	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// colly context keys.
const (
	ctxStart       = "start"
	ctxBody        = "body"
	ctxContentType = "content_type"
	ctxStatus      = "status"
)

// Page is a fetched document decoded to text.
type Page struct {
	URL      string
	Text     string
	Encoding string
	// Matched is false when no candidate encoding produced a marker and the
	// text came from the unconditional fallback.
	Matched bool
}

// DocumentFetcher retrieves a page and decodes it, using markers to judge
// which text encoding is right.
type DocumentFetcher interface {
	Fetch(rawURL string, markers []string, opts ...FetchOption) (*Page, error)
}

// FetchOption adjusts the request headers of a single fetch.
type FetchOption func(http.Header)

// WithHeader overrides one request header for a single fetch.
func WithHeader(key, value string) FetchOption {
	return func(h http.Header) {
		h.Set(key, value)
	}
}

// Fetcher issues one synchronous GET per page through a colly collector.
type Fetcher struct {
	collector *colly.Collector
	userAgent string
	metrics   *Metrics
	logger    *zap.Logger

	requestCount int64
}

// NewFetcher builds a fetcher for cfg.BaseURL's host.
func NewFetcher(cfg *config.Config, metrics *Metrics, log *zap.Logger) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	f := &Fetcher{
		collector: collector,
		userAgent: cfg.UserAgent,
		metrics:   metrics,
		logger:    logger.OrNop(log),
	}
	f.configureHandlers()
	return f, nil
}

// WithTransport swaps the HTTP transport, e.g. for fixtures in tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// RequestCount reports how many requests have been issued.
func (f *Fetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		atomic.AddInt64(&f.requestCount, 1)
		f.metrics.IncRequest("started")
		f.logger.Debug("fetching page", zap.String("url", r.URL.String()))
	})

	// The encoding is resolved by decodeBody, so the declared charset is
	// stashed and stripped here to keep colly from converting the body.
	f.collector.OnResponseHeaders(func(r *colly.Response) {
		ct := r.Headers.Get("Content-Type")
		r.Ctx.Put(ctxContentType, ct)
		if mediaType, params, err := mime.ParseMediaType(ct); err == nil && params["charset"] != "" {
			r.Headers.Set("Content-Type", mediaType)
		}
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, r.Body)
		r.Ctx.Put(ctxStatus, r.StatusCode)
		f.metrics.IncRequest("completed")
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxStatus, r.StatusCode)
		f.metrics.IncRequest("failed")
	})
}

// Fetch issues one GET for rawURL and decodes the body. markers are the
// substrings whose presence confirms a candidate encoding.
func (f *Fetcher) Fetch(rawURL string, markers []string, opts ...FetchOption) (*Page, error) {
	hdr := http.Header{}
	hdr.Set("User-Agent", f.userAgent)
	for _, opt := range opts {
		opt(hdr)
	}

	ctx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, ctx, hdr); err != nil {
		status, _ := ctx.GetAny(ctxStatus).(int)
		fe := classifyError(rawURL, err, status)
		f.metrics.IncError(fe.Kind)
		return nil, fe
	}

	body, _ := ctx.GetAny(ctxBody).([]byte)
	text, enc, matched := decodeBody(body, ctx.Get(ctxContentType), markers)
	f.metrics.IncEncoding(enc, matched)
	if !matched {
		f.logger.Debug("no encoding produced a marker, using fallback",
			zap.String("url", rawURL),
			zap.String("encoding", enc),
		)
	}

	return &Page{URL: rawURL, Text: text, Encoding: enc, Matched: matched}, nil
}
