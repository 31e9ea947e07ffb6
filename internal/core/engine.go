package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
)

// DefaultSampleRows is how many data rows are read for classification.
const DefaultSampleRows = 1000

// Options tunes the engine. Zero values select the defaults.
type Options struct {
	// SampleRows bounds the row prefix read for classification.
	SampleRows int

	// SampleSize is the number of non-null values sampled per column.
	SampleSize int

	// Threshold is the minimum parsed fraction for a format to match.
	Threshold float64
}

// Engine runs sniffing, classification, range extraction and harmonization
// against files on disk. It is stateless and safe for concurrent use.
type Engine struct {
	sampleRows int
	classifier Classifier
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	rows := opts.SampleRows
	if rows <= 0 {
		rows = DefaultSampleRows
	}
	return &Engine{
		sampleRows: rows,
		classifier: NewClassifier(opts.SampleSize, opts.Threshold),
	}
}

// Classifier returns the classifier the engine applies.
func (e *Engine) Classifier() Classifier {
	return e.classifier
}

// ColumnNames returns the file's column names without reading data rows.
func (e *Engine) ColumnNames(path string) ([]string, error) {
	_, src, err := sourceForPath(path)
	if err != nil {
		return nil, err
	}
	return src.header(path)
}

// Sample reads the bounded row prefix used for classification.
func (e *Engine) Sample(ctx context.Context, path string) (*Dataset, error) {
	return e.read(ctx, path, e.sampleRows)
}

// Load reads the whole file.
func (e *Engine) Load(ctx context.Context, path string) (*Dataset, error) {
	return e.read(ctx, path, -1)
}

// Preview reads the first rows of the file.
func (e *Engine) Preview(ctx context.Context, path string, rows int) (*Dataset, error) {
	if rows < 0 {
		rows = 0
	}
	return e.read(ctx, path, rows)
}

func (e *Engine) read(ctx context.Context, path string, maxRows int) (*Dataset, error) {
	_, src, err := sourceForPath(path)
	if err != nil {
		return nil, err
	}
	return src.load(ctx, path, maxRows)
}

// Detect samples the file and returns its first date column.
// The boolean is false when the file has no date column.
func (e *Engine) Detect(ctx context.Context, path string) (Candidate, bool, error) {
	ds, err := e.Sample(ctx, path)
	if err != nil {
		return Candidate{}, false, err
	}
	cand, ok := e.classifier.Classify(ds)
	slog.Debug("date column detection",
		"file", filepath.Base(path),
		"sample_rows", ds.Rows(),
		"columns", len(ds.Columns),
		"found", ok,
		"column", cand.Column,
		"format", cand.FormatName(),
	)
	return cand, ok, nil
}

// DetectAll samples the file and returns every date column.
func (e *Engine) DetectAll(ctx context.Context, path string) ([]Candidate, error) {
	ds, err := e.Sample(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.classifier.ClassifyAll(ds), nil
}

// HasColumn reports whether the file's header contains name.
func (e *Engine) HasColumn(path, name string) (bool, error) {
	names, err := e.ColumnNames(path)
	if err != nil {
		return false, fmt.Errorf("read columns: %w", err)
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}
