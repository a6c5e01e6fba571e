package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Fetch error kinds, used as log fields and metric labels.
const (
	KindTimeout     = "timeout"
	KindConnection  = "connection"
	KindForbidden   = "forbidden"
	KindNotFound    = "not_found"
	KindRateLimited = "rate_limited"
	KindStatus      = "http_status"
	KindParse       = "parse"
	KindOther       = "other"
)

// Sentinels matched by errors.Is against a FetchError of the same kind.
var (
	ErrTimeout     = errors.New("request timeout")
	ErrConnection  = errors.New("connection error")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
)

var kindSentinels = map[string]error{
	KindTimeout:     ErrTimeout,
	KindConnection:  ErrConnection,
	KindForbidden:   ErrForbidden,
	KindNotFound:    ErrNotFound,
	KindRateLimited: ErrRateLimited,
}

// FetchError is a classified failure to retrieve one page.
type FetchError struct {
	URL    string
	Status int
	Kind   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: fetch %s: status %d: %v", e.Kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: fetch %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// ParseError reports a page that was fetched but could not be parsed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func classifyError(url string, err error, statusCode int) *FetchError {
	fe := &FetchError{URL: url, Status: statusCode, Err: err, Kind: KindOther}
	if err == nil {
		fe.Err = fmt.Errorf("http status %d", statusCode)
	}

	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fe.Kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = KindTimeout
	case errors.As(err, &opErr):
		fe.Kind = KindConnection
	case statusCode == http.StatusForbidden:
		fe.Kind = KindForbidden
	case statusCode == http.StatusNotFound:
		fe.Kind = KindNotFound
	case statusCode == http.StatusTooManyRequests:
		fe.Kind = KindRateLimited
	case statusCode >= http.StatusMultipleChoices:
		fe.Kind = KindStatus
	}
	return fe
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return KindParse
	}
	return KindOther
}
