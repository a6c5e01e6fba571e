package scraper

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/aluiziolira/keiba-shutuba/parser"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
)

// candidateEncodings are tried, in order, after the transport's own
// encoding when decoding a page.
var candidateEncodings = []string{"utf-8", "euc-jp", "shift_jis", "cp932"}

var errInvalidSequence = errors.New("invalid byte sequence")

// transportEncoding returns the charset declared by the response, or the
// detector's best guess when the response declares none.
func transportEncoding(contentType string, body []byte) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := strings.TrimSpace(params["charset"]); cs != "" {
			return strings.ToLower(cs)
		}
	}
	if len(body) == 0 {
		return ""
	}
	res, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || res == nil {
		return ""
	}
	return strings.ToLower(res.Charset)
}

// decodeBody picks the first candidate encoding that decodes body cleanly
// and yields text containing one of markers. When none does, the
// transport encoding (or UTF-8) is applied leniently; that path never fails.
func decodeBody(body []byte, contentType string, markers []string) (text, enc string, matched bool) {
	detected := transportEncoding(contentType, body)
	candidates := append([]string{detected}, candidateEncodings...)
	for _, name := range candidates {
		if name == "" {
			continue
		}
		t, err := decodeStrict(body, name)
		if err != nil {
			continue
		}
		if parser.ContainsAny(t, markers) {
			return t, name, true
		}
	}

	enc = detected
	if enc == "" {
		enc = "utf-8"
	}
	return decodeLenient(body, enc), enc, false
}

func isUTF8(name string) bool {
	switch name {
	case "utf-8", "utf8":
		return true
	}
	return false
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ReplaceAll(name, "_", "-") {
	case "euc-jp", "eucjp":
		return japanese.EUCJP, nil
	case "shift-jis", "sjis", "cp932", "ms932", "windows-31j":
		return japanese.ShiftJIS, nil
	}
	e, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return e, nil
}

func decodeStrict(body []byte, name string) (string, error) {
	if isUTF8(name) {
		if !utf8.Valid(body) {
			return "", errInvalidSequence
		}
		return string(body), nil
	}
	e, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	out, err := e.NewDecoder().Bytes(body)
	if err != nil {
		return "", err
	}
	// x/text decoders substitute U+FFFD for bytes they cannot map.
	if strings.ContainsRune(string(out), utf8.RuneError) {
		return "", errInvalidSequence
	}
	return string(out), nil
}

func decodeLenient(body []byte, name string) string {
	if !isUTF8(name) {
		if e, err := lookupEncoding(name); err == nil {
			if out, err := e.NewDecoder().Bytes(body); err == nil {
				return string(out)
			}
		}
	}
	return strings.ToValidUTF8(string(body), string(utf8.RuneError))
}
