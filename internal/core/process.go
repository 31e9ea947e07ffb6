package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// ChoiceMode says how the date column of a run is chosen.
type ChoiceMode int

const (
	// ChoiceAuto runs the classifier.
	ChoiceAuto ChoiceMode = iota

	// ChoiceColumn uses a named column, falling back to ChoiceAuto when the
	// file has no such column.
	ChoiceColumn

	// ChoiceNone records that the file has no date column.
	ChoiceNone
)

func (m ChoiceMode) String() string {
	switch m {
	case ChoiceAuto:
		return "auto"
	case ChoiceColumn:
		return "column"
	case ChoiceNone:
		return "none"
	default:
		return fmt.Sprintf("ChoiceMode(%d)", int(m))
	}
}

// ParseChoiceMode accepts "auto", "column" and "none". Empty means auto.
func ParseChoiceMode(s string) (ChoiceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ChoiceAuto, nil
	case "column":
		return ChoiceColumn, nil
	case "none":
		return ChoiceNone, nil
	default:
		return ChoiceAuto, fmt.Errorf("unknown column mode %q (want auto, column or none)", s)
	}
}

// ColumnChoice is the user's date column selection for one run.
type ColumnChoice struct {
	Mode   ChoiceMode
	Column string

	// Format restricts parsing of a user column. Nil parses permissively.
	Format *DateFormat
}

func AutoDetect() ColumnChoice { return ColumnChoice{Mode: ChoiceAuto} }

func UseColumn(name string) ColumnChoice { return ColumnChoice{Mode: ChoiceColumn, Column: name} }

// UseColumnFormat is UseColumn with the column's values parsed by format only.
func UseColumnFormat(name string, format *DateFormat) ColumnChoice {
	return ColumnChoice{Mode: ChoiceColumn, Column: name, Format: format}
}

// ParseFormatHint resolves a strftime-style pattern such as "%d/%m/%Y" or
// "auto". Empty means no hint.
func ParseFormatHint(pattern string) (*DateFormat, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	f, ok := FormatByPattern(pattern)
	if !ok {
		return nil, fmt.Errorf("unknown date format %q", pattern)
	}
	return f, nil
}

func NoDateColumn() ColumnChoice { return ColumnChoice{Mode: ChoiceNone} }

// Outcome is the result of processing one file.
type Outcome struct {
	// DateColumn is empty when no date column was found or chosen.
	DateColumn    string
	Format        string
	Range         DateRange
	UserSpecified bool
}

// Process resolves the date column for path and computes its range.
//
// A user column present in the header is used as is, skipping the classifier,
// and parsed with the choice's format when one is given.
// One that is absent is a schema mismatch: it is logged and auto-detection
// runs instead.
func (e *Engine) Process(ctx context.Context, path string, choice ColumnChoice) (Outcome, error) {
	switch choice.Mode {
	case ChoiceNone:
		return Outcome{UserSpecified: true}, nil

	case ChoiceColumn:
		ok, err := e.HasColumn(path, choice.Column)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			format := choice.Format
			if format == nil {
				format = AutoFormat
			}
			r, err := e.Range(ctx, path, choice.Column, format)
			if err != nil {
				return Outcome{}, fmt.Errorf("range %s: %w", choice.Column, err)
			}
			return Outcome{
				DateColumn:    choice.Column,
				Format:        format.Pattern,
				Range:         r,
				UserSpecified: true,
			}, nil
		}
		slog.Debug("requested date column not in file, falling back to detection",
			"file", filepath.Base(path),
			"column", choice.Column,
		)
	}

	cand, ok, err := e.Detect(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, nil
	}
	r, err := e.Range(ctx, path, cand.Column, cand.Format)
	if err != nil {
		return Outcome{}, fmt.Errorf("range %s: %w", cand.Column, err)
	}
	return Outcome{
		DateColumn: cand.Column,
		Format:     cand.FormatName(),
		Range:      r,
	}, nil
}
