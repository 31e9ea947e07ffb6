package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/extrame/xls"
)

// xlsSource reads the first worksheet of a legacy BIFF workbook.
// The reader renders every cell as text, so every column is KindString.
type xlsSource struct{}

func (xlsSource) header(path string) ([]string, error) {
	var names []string
	err := withXLSSheet(path, func(sheet *xls.WorkSheet) error {
		row := xlsRow(sheet, 0)
		if row == nil || row.LastCol() == 0 {
			return ErrNoHeader
		}
		names = uniqueNames(xlsRowValues(row, row.LastCol()))
		return nil
	})
	return names, err
}

func (xlsSource) load(ctx context.Context, path string, maxRows int) (*Dataset, error) {
	var ds *Dataset
	err := withXLSSheet(path, func(sheet *xls.WorkSheet) error {
		head := xlsRow(sheet, 0)
		if head == nil || head.LastCol() == 0 {
			return ErrNoHeader
		}
		width := head.LastCol()
		ds = newStringDataset(xlsRowValues(head, width))

		rows := 0
		for i := 1; i <= int(sheet.MaxRow); i++ {
			if maxRows >= 0 && rows >= maxRows {
				break
			}
			if i%ContextCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			row := xlsRow(sheet, i)
			if row == nil {
				continue
			}
			ds.appendRow(xlsRowValues(row, width))
			rows++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// withXLSSheet opens the workbook and calls fn with its first sheet.
// Sheets are decoded lazily from the file, so fn runs before the file is closed.
func withXLSSheet(path string, fn func(*xls.WorkSheet) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	wb, err := xls.OpenReader(file, "utf-8")
	if err != nil {
		return fmt.Errorf("invalid xls workbook: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return ErrNoHeader
	}
	return fn(sheet)
}

// xlsRow returns row i, or nil when the sheet holds no record for it.
// WorkSheet.Row dereferences the missing row, so that panic becomes nil.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// xlsRowValues reads width cells. Rows written without a ROW record report
// LastCol 0, so the header width bounds the read instead.
func xlsRowValues(row *xls.Row, width int) []string {
	values := make([]string, width)
	for c := 0; c < width; c++ {
		values[c] = row.Col(c)
	}
	return values
}
