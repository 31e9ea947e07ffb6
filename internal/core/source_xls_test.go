package core

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

// testdata/orders.xls holds one BIFF8 sheet:
//
//	id | created    | shipped    | amount | note
//	1  | 2024-01-15 | 01/15/2024 | 10.5   | first
//	2  | 2024-03-01 | 03/02/2024 | 20     |
//	3  |            | 12/31/2023 | 5      | late
//	4  | 2023-11-30 | 12/01/2023 | 7.25   | third
//
// testdata/header_only.xls holds the single row "date | value".
var (
	ordersXLS     = filepath.Join("testdata", "orders.xls")
	headerOnlyXLS = filepath.Join("testdata", "header_only.xls")
)

func TestXLS_ColumnNames(t *testing.T) {
	e := NewEngine(Options{})

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "data sheet", path: ordersXLS, want: []string{"id", "created", "shipped", "amount", "note"}},
		{name: "header only", path: headerOnlyXLS, want: []string{"date", "value"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ColumnNames(tt.path)
			if err != nil {
				t.Fatalf("ColumnNames: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ColumnNames = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestXLS_Load(t *testing.T) {
	ds, err := NewEngine(Options{}).Load(context.Background(), ordersXLS)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Rows() != 4 {
		t.Fatalf("Rows = %d, want 4", ds.Rows())
	}
	if got := ds.Row(0); !reflect.DeepEqual(got, []string{"1", "2024-01-15", "01/15/2024", "10.5", "first"}) {
		t.Errorf("Row(0) = %q", got)
	}
	for _, col := range ds.Columns {
		if col.Kind != KindString {
			t.Errorf("%s kind = %v, want string", col.Name, col.Kind)
		}
	}
	note, _ := ds.Column("note")
	if !note.IsNull(1) {
		t.Errorf("note[1] = %q, want null", note.Values[1])
	}

	ds, err = NewEngine(Options{}).Sample(context.Background(), ordersXLS)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if ds.Rows() != 4 {
		t.Errorf("Sample rows = %d, want 4", ds.Rows())
	}
}

func TestXLS_DetectAndRange(t *testing.T) {
	e := NewEngine(Options{})
	ctx := context.Background()

	cand, ok, err := e.Detect(ctx, ordersXLS)
	if err != nil || !ok {
		t.Fatalf("Detect = %+v, %v, %v", cand, ok, err)
	}
	if cand.Column != "created" || cand.FormatName() != "%Y-%m-%d" {
		t.Errorf("candidate = %s (%s)", cand.Column, cand.FormatName())
	}

	tests := []struct {
		column   string
		count    int
		earliest string
		latest   string
	}{
		{column: "created", count: 3, earliest: "2023-11-30T00:00:00", latest: "2024-03-01T00:00:00"},
		{column: "shipped", count: 4, earliest: "2023-12-01T00:00:00", latest: "2024-03-02T00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			r, err := e.Range(ctx, ordersXLS, tt.column, nil)
			if err != nil {
				t.Fatalf("Range: %v", err)
			}
			if r.Count != tt.count || FormatISO(r.Earliest) != tt.earliest || FormatISO(r.Latest) != tt.latest {
				t.Errorf("Range = %d, %s .. %s", r.Count, FormatISO(r.Earliest), FormatISO(r.Latest))
			}
		})
	}

	if _, err := e.Range(ctx, ordersXLS, "missing", nil); err == nil {
		t.Error("Range(missing) succeeded, want ErrColumnNotFound")
	}
}

func TestXLS_Harmonize(t *testing.T) {
	out, err := NewEngine(Options{}).Harmonize(context.Background(), ordersXLS)
	if err != nil {
		t.Fatalf("Harmonize: %v", err)
	}

	want := [][]string{
		{"id", "created", "shipped", "amount", "note", "created_harmonized", "shipped_harmonized"},
		{"1", "2024-01-15", "01/15/2024", "10.5", "first", "2024-01-15", "2024-01-15"},
		{"2", "2024-03-01", "03/02/2024", "20", "", "2024-03-01", "2024-03-02"},
		{"3", "", "12/31/2023", "5", "late", "", "2023-12-31"},
		{"4", "2023-11-30", "12/01/2023", "7.25", "third", "2023-11-30", "2023-12-01"},
	}
	if got := readCSV(t, out); !reflect.DeepEqual(got, want) {
		t.Errorf("Harmonize =\n%q\nwant\n%q", got, want)
	}
}

func TestXLS_HeaderOnly(t *testing.T) {
	e := NewEngine(Options{})
	ctx := context.Background()

	if _, ok, err := e.Detect(ctx, headerOnlyXLS); err != nil || ok {
		t.Errorf("Detect = %v, %v, want no candidate", ok, err)
	}

	r, err := e.Range(ctx, headerOnlyXLS, "date", nil)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if !r.Empty() {
		t.Errorf("Range = %+v, want empty", r)
	}

	out, err := e.Harmonize(ctx, headerOnlyXLS)
	if err != nil {
		t.Fatalf("Harmonize: %v", err)
	}
	if string(out) != "date,value\n" {
		t.Errorf("Harmonize = %q, want header only", out)
	}
}
