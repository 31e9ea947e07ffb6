package core

import (
	"context"
	"fmt"
	"strings"
)

// source reads one supported Format. The set of sources is closed: one per
// Format constant, selected by sourceFor.
type source interface {
	// header returns the column names without reading data rows.
	header(path string) ([]string, error)

	// load reads up to maxRows data rows (all rows when maxRows < 0).
	load(ctx context.Context, path string, maxRows int) (*Dataset, error)
}

func sourceFor(f Format) (source, error) {
	switch f {
	case FormatCSV:
		return csvSource{}, nil
	case FormatXLSX:
		return xlsxSource{}, nil
	case FormatXLS:
		return xlsSource{}, nil
	default:
		return nil, &UnsupportedFormatError{}
	}
}

func sourceForPath(path string) (Format, source, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return FormatUnknown, nil, err
	}
	src, err := sourceFor(f)
	return f, src, err
}

// uniqueNames normalizes a header row: blank names become "Unnamed: <index>"
// and repeats get a ".N" suffix, so every name in a Dataset is unique.
func uniqueNames(raw []string) []string {
	used := make(map[string]bool, len(raw))
	names := make([]string, len(raw))
	for i, name := range raw {
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		names[i] = uniqueName(name, used)
	}
	return names
}

// uniqueName returns name, or name.N for the smallest N not in used, and marks it used.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 1; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s.%d", name, n)
	}
	used[candidate] = true
	return candidate
}

// newStringDataset creates an empty dataset of string columns from a raw
// header row.
func newStringDataset(header []string) *Dataset {
	names := uniqueNames(header)
	ds := &Dataset{Columns: make([]Column, len(names))}
	for i, name := range names {
		ds.Columns[i] = Column{Name: name, Kind: KindString, Header: header[i]}
	}
	return ds
}

// appendRow adds a record, padding short rows with blanks and dropping extra fields.
func (d *Dataset) appendRow(record []string) {
	for j := range d.Columns {
		v := ""
		if j < len(record) {
			v = record[j]
		}
		d.Columns[j].Values = append(d.Columns[j].Values, v)
	}
}
