package core

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// xlsxSource reads the first worksheet of an Office Open XML workbook.
// Numeric cells styled with a date number format become KindDatetime columns.
type xlsxSource struct{}

func (xlsxSource) header(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	sheet, err := firstSheet(f)
	if err != nil {
		return nil, err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Error(); err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		return nil, ErrNoHeader
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(header) == 0 {
		return nil, ErrNoHeader
	}
	return uniqueNames(header), nil
}

func (xlsxSource) load(ctx context.Context, path string, maxRows int) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	sheet, err := firstSheet(f)
	if err != nil {
		return nil, err
	}

	formatted, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(formatted) == 0 || len(formatted[0]) == 0 {
		return nil, ErrNoHeader
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	data := formatted[1:]
	rawData := [][]string{}
	if len(raw) > 1 {
		rawData = raw[1:]
	}
	if maxRows >= 0 && len(data) > maxRows {
		data = data[:maxRows]
	}

	ds := newStringDataset(formatted[0])
	for _, row := range data {
		ds.appendRow(row)
	}
	for j := range ds.Columns {
		typeSheetColumn(f, sheet, &ds.Columns[j], j, rawData)
	}
	return ds, nil
}

// typeSheetColumn infers the column kind from the raw (unformatted) cell values.
// A fully numeric column whose first value carries a date number format is
// converted from Excel serial dates. In a mixed column, each date-styled
// numeric cell is rewritten as ISO text so the string classifier can parse it.
func typeSheetColumn(f *excelize.File, sheet string, col *Column, j int, rawData [][]string) {
	n := len(col.Values)
	nums := make([]float64, n)
	valid := make([]bool, n)
	firstRow := -1
	numeric := true
	integral := true

	for i := 0; i < n; i++ {
		v := ""
		if i < len(rawData) && j < len(rawData[i]) {
			v = strings.TrimSpace(rawData[i][j])
		}
		if isBlank(v) {
			continue
		}
		num, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			continue
		}
		if firstRow < 0 {
			firstRow = i
		}
		nums[i], valid[i] = num, true
		if num != math.Trunc(num) {
			integral = false
		}
	}
	if firstRow < 0 {
		return
	}

	styles := newStyleCache(f, sheet)

	if !numeric {
		for i := range nums {
			// Data row i lives on sheet row i+2 (1-based, after the header).
			if !valid[i] || !styles.isDate(j+1, i+2) {
				continue
			}
			if t, err := excelize.ExcelDateToTime(nums[i], false); err == nil {
				col.Values[i] = sheetDateText(t)
			}
		}
		return
	}

	if styles.isDate(j+1, firstRow+2) {
		col.Kind = KindDatetime
		col.Times = make([]time.Time, n)
		for i := range nums {
			if !valid[i] {
				continue
			}
			if t, err := excelize.ExcelDateToTime(nums[i], false); err == nil {
				col.Times[i] = t
			}
		}
		return
	}

	if integral {
		col.Kind = KindInteger
	} else {
		col.Kind = KindFloat
	}
}

// sheetDateText renders a serial date as text the candidate formats accept.
func sheetDateText(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

func firstSheet(f *excelize.File) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", ErrNoHeader
	}
	return sheets[0], nil
}

// styleCache memoizes date detection per style index.
type styleCache struct {
	f     *excelize.File
	sheet string
	dates map[int]bool
}

func newStyleCache(f *excelize.File, sheet string) *styleCache {
	return &styleCache{f: f, sheet: sheet, dates: make(map[int]bool)}
}

// isDate reports whether the cell at (col, row), both 1-based, renders a date.
func (c *styleCache) isDate(col, row int) bool {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return false
	}
	idx, err := c.f.GetCellStyle(c.sheet, axis)
	if err != nil {
		return false
	}
	if d, ok := c.dates[idx]; ok {
		return d
	}
	d := isDateStyle(c.f, idx)
	c.dates[idx] = d
	return d
}

// isDateStyle reports whether the style's number format renders a date.
func isDateStyle(f *excelize.File, idx int) bool {
	style, err := f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateNumFmt(*style.CustomNumFmt)
	}
	return isBuiltinDateNumFmt(style.NumFmt)
}

// isBuiltinDateNumFmt covers the built-in date formats (ECMA-376 18.8.30 plus
// the East Asian ids). Time-only formats (18-21, 45-47) are excluded.
func isBuiltinDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	default:
		return false
	}
}

var numFmtLiterals = regexp.MustCompile(`"[^"]*"|\[[^\]]*\]|\\.`)

// isDateNumFmt reports whether a custom number format contains day or year tokens.
func isDateNumFmt(code string) bool {
	code = strings.ToLower(numFmtLiterals.ReplaceAllString(code, ""))
	return strings.ContainsAny(code, "yd")
}
