package core

// convert.go turns user-provided cell text into dates.
//
// The candidate formats mirror what people actually type into spreadsheets:
//   - ISO, US and EU numeric dates with slash or dash separators
//   - Compact YYYYMMDD
//   - Long and abbreviated month names ("January 15, 2024", "15 Jan 2024")
//
// Formats are tried in list order and the first that parses wins. The
// permissive AutoFormat covers timestamps and other common renderings
// (RFC 3339, "2024-01-15 10:30:00", "1/15/2024 3:04 PM") on top of the list.
// Two-digit years are deliberately absent: "01/02/03" has no safe reading.

import (
	"strings"
	"time"
)

// DateFormat is a named date representation with the Go layouts that parse it.
type DateFormat struct {
	// Pattern is the strftime-style name, e.g. "%Y-%m-%d".
	Pattern string

	layouts []string
	auto    bool
}

// Parse parses s with the format's layouts.
// The cell is cleaned first; blank or unparseable cells return false.
func (f *DateFormat) Parse(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}
	if f.auto {
		return parseAny(s)
	}
	return parseLayouts(s, f.layouts)
}

func (f *DateFormat) String() string {
	return f.Pattern
}

// CandidateFormats is the ordered list of explicit formats tried by the classifier.
// Single-digit month/day layouts also accept zero-padded input.
var CandidateFormats = []*DateFormat{
	{Pattern: "%Y-%m-%d", layouts: []string{"2006-1-2"}},
	{Pattern: "%m/%d/%Y", layouts: []string{"1/2/2006"}},
	{Pattern: "%d/%m/%Y", layouts: []string{"2/1/2006"}},
	{Pattern: "%Y/%m/%d", layouts: []string{"2006/1/2"}},
	{Pattern: "%m-%d-%Y", layouts: []string{"1-2-2006"}},
	{Pattern: "%d-%m-%Y", layouts: []string{"2-1-2006"}},
	{Pattern: "%Y%m%d", layouts: []string{"20060102"}},
	{Pattern: "%B %d, %Y", layouts: []string{"January 2, 2006"}},
	{Pattern: "%b %d, %Y", layouts: []string{"Jan 2, 2006"}},
	{Pattern: "%d %B %Y", layouts: []string{"2 January 2006"}},
	{Pattern: "%d %b %Y", layouts: []string{"2 Jan 2006"}},
}

// AutoFormat is the permissive parser tried after every explicit format.
var AutoFormat = &DateFormat{Pattern: "auto", auto: true}

// permissiveLayouts are accepted by AutoFormat in addition to CandidateFormats.
var permissiveLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"2006.1.2",
	"1.2.2006",
	"Jan 2 2006",
	"January 2 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.ANSIC,
}

// FormatByPattern looks up a candidate format by its strftime-style pattern.
// "auto" returns AutoFormat.
func FormatByPattern(pattern string) (*DateFormat, bool) {
	if pattern == AutoFormat.Pattern {
		return AutoFormat, true
	}
	for _, f := range CandidateFormats {
		if f.Pattern == pattern {
			return f, true
		}
	}
	return nil, false
}

// ParseDate parses s with every candidate format, then the permissive layouts.
func ParseDate(s string) (time.Time, bool) {
	return AutoFormat.Parse(s)
}

func parseAny(s string) (time.Time, bool) {
	for _, f := range CandidateFormats {
		if t, ok := parseLayouts(s, f.layouts); ok {
			return t, true
		}
	}
	return parseLayouts(s, permissiveLayouts)
}

func parseLayouts(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// nullTokens are cell values treated as missing, compared case-insensitively.
var nullTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"#n/a": true,
	"nan":  true,
	"null": true,
	"none": true,
}

// isBlank reports whether a cell is null.
func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) > 4 {
		return false
	}
	return nullTokens[strings.ToLower(s)]
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
