package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ContextCheckInterval is how often (in records) to check for context cancellation.
// Checking every record would be expensive; 100 records is sub-millisecond of work.
var ContextCheckInterval = 100

// csvSource reads delimited text. CSV carries no type information, so every
// column is KindString and date detection relies on the candidate formats.
type csvSource struct{}

func (csvSource) header(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	header, err := newCSVReader(WrapForStreaming(f)).Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	return uniqueNames(header), nil
}

func (csvSource) load(ctx context.Context, path string, maxRows int) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	cr := newCSVReader(WrapForStreaming(f))
	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	ds := newStringDataset(header)
	skipped := 0
	for rows := 0; maxRows < 0 || rows < maxRows; {
		if rows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if isRecordError(err) {
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		ds.appendRow(record)
		rows++
	}

	if skipped > 0 {
		slog.Debug("skipped malformed csv records", "file", filepath.Base(path), "skipped", skipped)
	}
	return ds, nil
}

// isRecordError reports whether err concerns a single malformed record
// that can be skipped without abandoning the file.
func isRecordError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}
