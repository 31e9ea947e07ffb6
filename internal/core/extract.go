package core

// extract.go computes the earliest and latest date in a column.
//
// Two strategies, selected by Format:
//   - Streaming (CSV): one record at a time through encoding/csv with a running
//     min/max, so memory does not grow with file size.
//   - Materializing (xlsx, xls): the sheet is loaded, the column coerced to
//     dates, nulls dropped, then min/max taken.
//
// Cells that are null or do not parse are excluded from the reduction. Only a
// failure to read the file as a whole is returned as an error.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Range returns the earliest and latest date in column. When hint is nil,
// each cell is parsed with every candidate format and then AutoFormat.
// An empty DateRange means no cell parsed.
func (e *Engine) Range(ctx context.Context, path, column string, hint *DateFormat) (DateRange, error) {
	format, src, err := sourceForPath(path)
	if err != nil {
		return DateRange{}, err
	}
	if format.Streams() {
		return streamRange(ctx, path, column, hint)
	}

	ds, err := src.load(ctx, path, -1)
	if err != nil {
		return DateRange{}, err
	}
	col, ok := ds.Column(column)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	return columnRange(col, hint), nil
}

// columnRange reduces a materialized column.
func columnRange(col *Column, hint *DateFormat) DateRange {
	var r DateRange
	if col.Kind == KindDatetime {
		for _, t := range col.Times {
			if !t.IsZero() {
				r.observe(t)
			}
		}
		return r
	}

	parser := parserFor(hint)
	for i, v := range col.Values {
		if col.IsNull(i) {
			continue
		}
		if t, ok := parser.Parse(v); ok {
			r.observe(t)
		}
	}
	return r
}

// streamRange reduces one CSV column without buffering the file.
func streamRange(ctx context.Context, path, column string, hint *DateFormat) (DateRange, error) {
	f, err := os.Open(path)
	if err != nil {
		return DateRange{}, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	counter := WrapForStreaming(f)
	cr := newCSVReader(counter)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return DateRange{}, nil
	}
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid csv header: %w", err)
	}
	idx := -1
	for i, name := range uniqueNames(header) {
		if name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return DateRange{}, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	parser := parserFor(hint)
	var r DateRange
	records, skipped := 0, 0
	for {
		if records%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return DateRange{}, err
			}
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if isRecordError(err) {
			skipped++
			records++
			continue
		}
		if err != nil {
			return DateRange{}, fmt.Errorf("read csv: %w", err)
		}
		records++

		if idx >= len(record) || isBlank(record[idx]) {
			continue
		}
		if t, ok := parser.Parse(record[idx]); ok {
			r.observe(t)
		}
	}

	slog.Debug("streamed date range",
		"file", filepath.Base(path),
		"column", column,
		"records", records,
		"parsed", r.Count,
		"skipped", skipped,
		"bytes", counter.BytesRead,
	)
	return r, nil
}

func parserFor(hint *DateFormat) *DateFormat {
	if hint == nil {
		return AutoFormat
	}
	return hint
}
