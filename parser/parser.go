package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/keiba-shutuba/models"
	"golang.org/x/text/unicode/norm"
)

var horseNumberPattern = regexp.MustCompile(`^[0-9]{1,2}$`)

// ValidateEntry ensures the extractor captured a usable horse number.
func ValidateEntry(r *models.EntryRow) error {
	if r == nil {
		return fmt.Errorf("entry is nil")
	}
	if !ValidHorseNumber(r.HorseNumber) {
		return fmt.Errorf("entry has invalid horse number %q", r.HorseNumber)
	}
	return nil
}

// ValidHorseNumber reports whether s is a 1 or 2 digit number.
func ValidHorseNumber(s string) bool {
	return horseNumberPattern.MatchString(s)
}

// NormalizeText folds full-width characters to their half-width forms
// (NFKC) and trims surrounding whitespace.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
