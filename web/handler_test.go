package web

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/aluiziolira/keiba-shutuba/parser"
	"github.com/aluiziolira/keiba-shutuba/workbook"
	"github.com/prometheus/client_golang/prometheus"
)

type stubScraper struct {
	mu     sync.Mutex
	calls  []string
	result *models.ScrapeResult
	err    error
}

func (s *stubScraper) Run(_ context.Context, rawDate string) (*models.ScrapeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, rawDate)
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	res.Date = rawDate
	return &res, nil
}

func (s *stubScraper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubRenderer struct {
	calls int
	err   error
}

func (r *stubRenderer) Render(table models.EntryTable) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("xlsx-bytes"), nil
}

func resultWithRows() *models.ScrapeResult {
	table := models.NewEntryTable()
	table.Rows = []models.EntryRow{{
		Venue: "中山", Race: "11R", PostTime: "15:40", Gate: "1", HorseNumber: "1", HorseName: "アルファ", Jockey: "騎手A",
	}}
	return &models.ScrapeResult{RunID: "run-1", Table: table, RacesFound: 1}
}

func emptyResult() *models.ScrapeResult {
	return &models.ScrapeResult{RunID: "run-2", Table: models.NewEntryTable()}
}

func newTestServer(s Scraper, r Renderer, cacheSize int) http.Handler {
	h := New(s, r, Options{Label: "出馬表", CacheSize: cacheSize, CacheTTL: time.Minute}, nil)
	return NewServer(h, prometheus.NewRegistry(), nil)
}

func postDate(t *testing.T, srv http.Handler, date string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"date": {date}}
	req := httptest.NewRequest(http.MethodPost, "/shutuba", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestIndexRendersForm(t *testing.T) {
	srv := newTestServer(&stubScraper{result: resultWithRows()}, &stubRenderer{}, 0)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="date"`) || !strings.Contains(body, `action="/shutuba"`) {
		t.Fatalf("form missing from body: %s", body)
	}
}

func TestGenerateReturnsWorkbook(t *testing.T) {
	scraper := &stubScraper{result: resultWithRows()}
	renderer := &stubRenderer{}
	srv := newTestServer(scraper, renderer, 0)

	rec := postDate(t, srv, "240106")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != XLSXContentType {
		t.Fatalf("content type = %q", ct)
	}
	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("content disposition: %v", err)
	}
	if params["filename"] != "出馬表_20240106.xlsx" {
		t.Fatalf("filename = %q", params["filename"])
	}
	if rec.Body.String() != "xlsx-bytes" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if len(scraper.calls) != 1 || scraper.calls[0] != "20240106" {
		t.Fatalf("scraper calls = %v", scraper.calls)
	}
}

func TestGenerateInvalidDate(t *testing.T) {
	scraper := &stubScraper{result: resultWithRows()}
	srv := newTestServer(scraper, &stubRenderer{}, 0)

	rec := postDate(t, srv, "abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	want := (&parser.InvalidInputError{Input: "abc"}).Error()
	// html/template escapes the quotes around the input.
	if !strings.Contains(rec.Body.String(), strings.ReplaceAll(want, `"`, "&#34;")) {
		t.Fatalf("body lacks error %q: %s", want, rec.Body.String())
	}
	if scraper.callCount() != 0 {
		t.Fatalf("scraper must not run for an invalid date")
	}
}

func TestGenerateEmptyResultWarns(t *testing.T) {
	renderer := &stubRenderer{}
	srv := newTestServer(&stubScraper{result: emptyResult()}, renderer, 0)

	rec := postDate(t, srv, "20240102")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := (&models.EmptyResultWarning{Date: "20240102"}).Error()
	if !strings.Contains(rec.Body.String(), want) {
		t.Fatalf("body lacks warning %q", want)
	}
	if renderer.calls != 0 {
		t.Fatalf("renderer invoked for empty result")
	}
}

func TestGenerateScrapeFailure(t *testing.T) {
	srv := newTestServer(&stubScraper{err: errors.New("boom")}, &stubRenderer{}, 0)
	rec := postDate(t, srv, "20240106")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerateRenderFailure(t *testing.T) {
	srv := newTestServer(&stubScraper{result: resultWithRows()}, &stubRenderer{err: errors.New("schema")}, 0)
	rec := postDate(t, srv, "20240106")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGenerateNoRenderableRowsWarns(t *testing.T) {
	srv := newTestServer(&stubScraper{result: resultWithRows()}, &stubRenderer{err: workbook.ErrNoRows}, 0)

	rec := postDate(t, srv, "20240106")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == XLSXContentType {
		t.Fatalf("workbook served although nothing was rendered")
	}
	if !strings.Contains(rec.Body.String(), "no usable rows for 20240106") {
		t.Fatalf("body lacks warning: %s", rec.Body.String())
	}
}

func TestGenerateCachesNonEmptyResults(t *testing.T) {
	scraper := &stubScraper{result: resultWithRows()}
	srv := newTestServer(scraper, &stubRenderer{}, 4)

	for i := 0; i < 2; i++ {
		if rec := postDate(t, srv, "20240106"); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	// YYMMDD form of the same date hits the same entry.
	if rec := postDate(t, srv, "240106"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := scraper.callCount(); got != 1 {
		t.Fatalf("scraper calls = %d, want 1", got)
	}
}

func TestGenerateDoesNotCacheEmptyResults(t *testing.T) {
	scraper := &stubScraper{result: emptyResult()}
	srv := newTestServer(scraper, &stubRenderer{}, 4)

	postDate(t, srv, "20240102")
	postDate(t, srv, "20240102")
	if got := scraper.callCount(); got != 2 {
		t.Fatalf("scraper calls = %d, want 2", got)
	}
}

func TestEntriesJSON(t *testing.T) {
	srv := newTestServer(&stubScraper{result: resultWithRows()}, &stubRenderer{}, 0)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entries?date=240106", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp entriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Date != "20240106" || len(resp.Rows) != 1 || resp.Rows[0].HorseName != "アルファ" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Warning != "" {
		t.Fatalf("unexpected warning %q", resp.Warning)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entries?date=1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid date status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(&stubScraper{result: resultWithRows()}, &stubRenderer{}, 0)

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}

	h := New(&stubScraper{result: resultWithRows()}, &stubRenderer{}, Options{Label: "x"}, nil)
	rec := httptest.NewRecorder()
	NewServer(h, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code == http.StatusOK {
		t.Fatalf("metrics served without a gatherer")
	}
}
