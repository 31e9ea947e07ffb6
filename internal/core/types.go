package core

import (
	"path/filepath"
	"strings"
	"time"
)

// Format identifies a supported tabular file type.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
	FormatXLS
)

func (f Format) String() string {
	names := []string{"unknown", "csv", "xlsx", "xls"}
	if int(f) < len(names) {
		return names[f]
	}
	return "unknown"
}

// Streams reports whether the format has a record-at-a-time reader.
// Formats that do not stream are fully materialized for range extraction.
func (f Format) Streams() bool {
	return f == FormatCSV
}

// FormatFromPath returns the format implied by the file extension.
// Unrecognized extensions yield an *UnsupportedFormatError.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		return FormatUnknown, &UnsupportedFormatError{Ext: ext}
	}
}

// Kind is the scalar type of a column.
type Kind uint8

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindDatetime
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDatetime:
		return "datetime"
	default:
		return "string"
	}
}

// Column is a named, typed column of cell values.
type Column struct {
	Name string
	Kind Kind

	// Header is the column's text in the file's header row. Name is that
	// text made non-blank and unique. Empty for derived columns.
	Header string

	// Values holds the cell text as read from the file. Blank cells are null.
	Values []string

	// Times holds parsed values for KindDatetime columns, aligned with Values.
	// A zero time is null.
	Times []time.Time
}

// IsNull reports whether the cell at row i is null.
func (c *Column) IsNull(i int) bool {
	if c.Kind == KindDatetime && i < len(c.Times) {
		return c.Times[i].IsZero()
	}
	if i >= len(c.Values) {
		return true
	}
	return isBlank(c.Values[i])
}

// Dataset is an ordered sequence of uniquely named columns.
type Dataset struct {
	Columns []Column
}

// Headers returns the header row to write back out: each column's original
// header text, or its name for derived columns.
func (d *Dataset) Headers() []string {
	headers := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		if c.Header != "" {
			headers[i] = c.Header
		} else {
			headers[i] = c.Name
		}
	}
	return headers
}

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// Rows returns the number of data rows.
func (d *Dataset) Rows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// Row returns the cell text of row i in column order.
func (d *Dataset) Row(i int) []string {
	row := make([]string, len(d.Columns))
	for j := range d.Columns {
		if i < len(d.Columns[j].Values) {
			row[j] = d.Columns[j].Values[i]
		}
	}
	return row
}

// Candidate is a column the classifier identified as holding dates.
type Candidate struct {
	Column string

	// Format is nil when the column is natively typed as datetime.
	Format *DateFormat
}

// FormatName returns the strftime-style pattern of the candidate,
// or "native" for natively typed columns.
func (c Candidate) FormatName() string {
	if c.Format == nil {
		return "native"
	}
	return c.Format.Pattern
}

// DateRange is the running min/max of the parsed values in a column.
type DateRange struct {
	Earliest time.Time
	Latest   time.Time
	Count    int // values that parsed
}

// Empty reports whether no value parsed.
func (r DateRange) Empty() bool {
	return r.Count == 0
}

func (r *DateRange) observe(t time.Time) {
	if r.Count == 0 || t.Before(r.Earliest) {
		r.Earliest = t
	}
	if r.Count == 0 || t.After(r.Latest) {
		r.Latest = t
	}
	r.Count++
}

// ISO returns the bounds as ISO-8601 strings, or nils for an empty range.
func (r DateRange) ISO() (earliest, latest *string) {
	if r.Empty() {
		return nil, nil
	}
	e, l := FormatISO(r.Earliest), FormatISO(r.Latest)
	return &e, &l
}

// FormatISO renders t as 2006-01-02T15:04:05, appending the offset for non-UTC times.
func FormatISO(t time.Time) string {
	if t.Location() == time.UTC {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}
