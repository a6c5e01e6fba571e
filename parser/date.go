package parser

import (
	"fmt"
	"strings"
)

// DateFormats describes the accepted date inputs.
const DateFormats = "YYYYMMDD or YYMMDD (digits only)"

// InvalidInputError reports a malformed date string.
type InvalidInputError struct {
	Input string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid date %q: expected %s", e.Input, DateFormats)
}

// NormalizeDate expands a 6-digit date with the "20" century prefix and
// passes an 8-digit date through. Calendar validity is not checked.
func NormalizeDate(input string) (string, error) {
	s := strings.TrimSpace(input)
	if !isDigits(s) {
		return "", &InvalidInputError{Input: input}
	}
	switch len(s) {
	case 6:
		return "20" + s, nil
	case 8:
		return s, nil
	default:
		return "", &InvalidInputError{Input: input}
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
