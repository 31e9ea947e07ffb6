package core

// harmonize.go normalizes every detected date column to ISO-8601.
//
// For each date column a derived <column>_harmonized column is appended after
// the original columns, holding YYYY-MM-DD or an empty string when the cell is
// null or does not parse. Original columns are written back untouched.

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// HarmonizedSuffix is appended to the name of each derived column.
const HarmonizedSuffix = "_harmonized"

const isoDate = "2006-01-02"

// Harmonize loads the file, detects all date columns and returns CSV bytes
// with a header row, the original columns and one harmonized column per date
// column. A file without date columns is re-emitted unchanged in content.
func (e *Engine) Harmonize(ctx context.Context, path string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.HarmonizeTo(ctx, path, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HarmonizeTo writes the harmonized CSV to w and returns the detected columns.
func (e *Engine) HarmonizeTo(ctx context.Context, path string, w io.Writer) ([]Candidate, error) {
	ds, err := e.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	candidates := e.classifier.ClassifyAll(ds)
	out := HarmonizeDataset(ds, candidates)
	if err := WriteCSV(w, out); err != nil {
		return nil, err
	}
	return candidates, nil
}

// HarmonizeDataset returns a copy of ds with a harmonized column appended for
// each candidate. Candidates naming absent columns are ignored.
func HarmonizeDataset(ds *Dataset, candidates []Candidate) *Dataset {
	out := &Dataset{Columns: make([]Column, len(ds.Columns), len(ds.Columns)+len(candidates))}
	copy(out.Columns, ds.Columns)

	used := make(map[string]bool, len(ds.Columns))
	for _, c := range ds.Columns {
		used[c.Name] = true
	}

	for _, cand := range candidates {
		col, ok := ds.Column(cand.Column)
		if !ok {
			continue
		}
		out.Columns = append(out.Columns, Column{
			Name:   uniqueName(col.Name+HarmonizedSuffix, used),
			Kind:   KindString,
			Values: harmonizeColumn(col, cand.Format),
		})
	}
	return out
}

func harmonizeColumn(col *Column, format *DateFormat) []string {
	values := make([]string, len(col.Values))
	if col.Kind == KindDatetime {
		for i := range values {
			if i < len(col.Times) {
				values[i] = isoOrEmpty(col.Times[i])
			}
		}
		return values
	}

	parser := parserFor(format)
	for i, v := range col.Values {
		if col.IsNull(i) {
			continue
		}
		if t, ok := parser.Parse(v); ok {
			values[i] = t.Format(isoDate)
		}
	}
	return values
}

func isoOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(isoDate)
}

// WriteCSV serializes ds with the file's original header row and no index
// column.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Headers()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := 0; i < ds.Rows(); i++ {
		if err := cw.Write(ds.Row(i)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
