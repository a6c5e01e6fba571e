package parser

import (
	"regexp"
	"strings"
)

// Listing page markers. A decoded listing page containing any of these is
// taken to be correctly decoded.
var ListingMarkers = []string{"RaceList_DataItem", "race_id="}

// Entry page markers.
var EntryPageMarkers = []string{"出馬表", "馬番", "騎手"}

// Header markers used to locate the entry table and its columns.
const (
	GateMarker        = "枠"
	HorseNumberMarker = "馬番"
	HorseNameMarker   = "馬名"
	JockeyMarker      = "騎手"
)

// EntryTableMarkers lists the header markers in match order.
var EntryTableMarkers = []string{GateMarker, HorseNumberMarker, HorseNameMarker, JockeyMarker}

// HeaderScanLimit caps how many header/data cells of a table are inspected
// when deciding whether it is the entry table.
const HeaderScanLimit = 24

var (
	// Venue runs up to any whitespace, including U+3000 and NBSP.
	titlePattern    = regexp.MustCompile(`([^\s\v\x{85}\p{Z}]+?)(\d+)R`)
	postTimePattern = regexp.MustCompile(`(\d{1,2}:\d{2})`)
	raceIDPattern   = regexp.MustCompile(`race_id=(\d{12})`)
)

// ContainsAny reports whether text contains at least one marker.
func ContainsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// ParseTitle extracts the venue name and race label ("11R") from a page
// title such as "中山11R 出馬表". Both are empty when the title does not match.
func ParseTitle(title string) (venue, race string) {
	m := titlePattern.FindStringSubmatch(title)
	if m == nil {
		return "", ""
	}
	return m[1], m[2] + "R"
}

// ParsePostTime returns the first H:MM or HH:MM found in text.
func ParsePostTime(text string) string {
	return postTimePattern.FindString(text)
}

// ParseRaceID returns the 12-digit race identifier referenced by href.
func ParseRaceID(href string) (string, bool) {
	m := raceIDPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsEntryHeader reports whether the leading cell texts of a table mention
// any entry table marker.
func IsEntryHeader(cells []string) bool {
	if len(cells) > HeaderScanLimit {
		cells = cells[:HeaderScanLimit]
	}
	return ContainsAny(strings.Join(cells, " "), EntryTableMarkers)
}

// Absent marks a column that was not found in the header.
const Absent = -1

// ColumnIndex maps the entry fields to header cell positions.
type ColumnIndex struct {
	Gate        int
	HorseNumber int
	HorseName   int
	Jockey      int
}

// ResolveColumns assigns each field the first header cell containing its
// marker. ok is false when no field matched.
func ResolveColumns(headers []string) (idx ColumnIndex, ok bool) {
	idx = ColumnIndex{Gate: Absent, HorseNumber: Absent, HorseName: Absent, Jockey: Absent}
	for i, h := range headers {
		if idx.Gate == Absent && strings.Contains(h, GateMarker) {
			idx.Gate = i
		}
		if idx.HorseNumber == Absent && strings.Contains(h, HorseNumberMarker) {
			idx.HorseNumber = i
		}
		if idx.HorseName == Absent && strings.Contains(h, HorseNameMarker) {
			idx.HorseName = i
		}
		if idx.Jockey == Absent && strings.Contains(h, JockeyMarker) {
			idx.Jockey = i
		}
	}
	ok = idx.Gate != Absent || idx.HorseNumber != Absent || idx.HorseName != Absent || idx.Jockey != Absent
	return idx, ok
}

// Pick returns cols[i] trimmed, or "" when i is absent or out of range.
func Pick(cols []string, i int) string {
	if i < 0 || i >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[i])
}
