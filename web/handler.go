// Package web serves the interactive front end: a date form that returns
// the entry workbook as a download.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"time"

	"github.com/aluiziolira/keiba-shutuba/logger"
	"github.com/aluiziolira/keiba-shutuba/models"
	"github.com/aluiziolira/keiba-shutuba/parser"
	"github.com/aluiziolira/keiba-shutuba/pipeline"
	"github.com/aluiziolira/keiba-shutuba/workbook"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// XLSXContentType is the MIME type of the downloaded workbook.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Scraper runs one scrape for a raw date string.
type Scraper interface {
	Run(ctx context.Context, rawDate string) (*models.ScrapeResult, error)
}

// Renderer turns an entry table into workbook bytes.
type Renderer interface {
	Render(table models.EntryTable) ([]byte, error)
}

// Options tune the handler.
type Options struct {
	Label     string
	CacheSize int
	CacheTTL  time.Duration
}

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	scraper  Scraper
	renderer Renderer
	label    string
	cache    *expirable.LRU[string, *models.ScrapeResult]
	logger   *zap.Logger
}

// New creates a Handler. A zero CacheSize disables result caching.
func New(s Scraper, r Renderer, opts Options, log *zap.Logger) *Handler {
	h := &Handler{
		scraper:  s,
		renderer: r,
		label:    opts.Label,
		logger:   logger.OrNop(log),
	}
	if opts.CacheSize > 0 {
		h.cache = expirable.NewLRU[string, *models.ScrapeResult](opts.CacheSize, nil, opts.CacheTTL)
	}
	return h
}

type pageData struct {
	Date    string
	Error   string
	Warning string
}

// Index renders the date form.
func (h *Handler) Index(c echo.Context) error {
	return h.page(c, http.StatusOK, pageData{})
}

// Generate scrapes the submitted date and answers with the workbook, or
// with the form and a message when the date is invalid or has no races.
func (h *Handler) Generate(c echo.Context) error {
	raw := c.FormValue("date")
	date, err := parser.NormalizeDate(raw)
	if err != nil {
		return h.page(c, http.StatusBadRequest, pageData{Date: raw, Error: err.Error()})
	}

	result, err := h.result(c.Request().Context(), date)
	if err != nil {
		return err
	}
	if w := result.Warning(); w != nil {
		return h.page(c, http.StatusOK, pageData{Date: raw, Warning: w.Error()})
	}

	data, err := h.renderer.Render(result.Table)
	if errors.Is(err, workbook.ErrNoRows) {
		h.logger.Warn("no renderable rows", zap.String("date", date), zap.Int("rows", result.Table.Len()))
		return h.page(c, http.StatusOK, pageData{Date: raw, Warning: workbook.NoRowsWarning(date).Error()})
	}
	if err != nil {
		h.logger.Error("render workbook failed", zap.String("date", date), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "workbook rendering failed")
	}

	name := pipeline.FileName(h.label, date, "xlsx")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	c.Response().Header().Set("X-Row-Count", fmt.Sprint(result.Table.Len()))
	return c.Blob(http.StatusOK, XLSXContentType, data)
}

type entriesResponse struct {
	RunID        string            `json:"runId"`
	Date         string            `json:"date"`
	RacesFound   int               `json:"racesFound"`
	FailedRaces  []models.RaceID   `json:"failedRaces"`
	Rows         []models.EntryRow `json:"rows"`
	Warning      string            `json:"warning,omitempty"`
	ErrorsByType map[string]int    `json:"errorsByType,omitempty"`
}

// Entries returns the aggregated table for ?date= as JSON.
func (h *Handler) Entries(c echo.Context) error {
	date, err := parser.NormalizeDate(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.result(c.Request().Context(), date)
	if err != nil {
		return err
	}

	resp := entriesResponse{
		RunID:        result.RunID,
		Date:         result.Date,
		RacesFound:   result.RacesFound,
		FailedRaces:  result.FailedRaces,
		Rows:         result.Table.Rows,
		ErrorsByType: result.ErrorsByType,
	}
	if resp.Rows == nil {
		resp.Rows = []models.EntryRow{}
	}
	if w := result.Warning(); w != nil {
		resp.Warning = w.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// result returns a cached scrape for date or runs a new one. Empty results
// are not cached since entries may be published later.
func (h *Handler) result(ctx context.Context, date string) (*models.ScrapeResult, error) {
	if h.cache != nil {
		if cached, ok := h.cache.Get(date); ok {
			h.logger.Debug("serving cached result", zap.String("date", date), zap.String("run_id", cached.RunID))
			return cached, nil
		}
	}

	result, err := h.scraper.Run(ctx, date)
	if err != nil {
		var invalid *parser.InvalidInputError
		if errors.As(err, &invalid) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("scrape failed", zap.String("date", date), zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusBadGateway, "scrape failed")
	}
	if h.cache != nil && result.Warning() == nil {
		h.cache.Add(date, result)
	}
	return result, nil
}

func (h *Handler) page(c echo.Context, status int, data pageData) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return indexTemplate.Execute(c.Response(), data)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>netkeiba 出馬表生成</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
.error { color: #b00020; }
.warning { color: #8a6d00; }
</style>
</head>
<body>
<h1>netkeiba 出馬表生成ツール</h1>
<form method="post" action="/shutuba">
<label>取得日 (YYYYMMDD または YYMMDD)
<input type="text" name="date" value="{{.Date}}" autofocus>
</label>
<button type="submit">出馬表を取得してExcelを生成</button>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Warning}}<p class="warning">{{.Warning}}</p>{{end}}
</body>
</html>
`))
