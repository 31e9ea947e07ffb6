package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/dateprobe/internal/core"
)

// run executes the CLI with args and returns stdout, stderr and the error.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const ordersCSV = "id,created,shipped\n1,2024-01-01,03/05/2024\n2,2024-02-01,04/06/2024\n"

func TestColumnsCommand(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "orders.csv", ordersCSV)

	out, _, err := run(t, "columns", path)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if out != "id\ncreated\nshipped\n" {
		t.Errorf("output = %q", out)
	}
}

func TestColumnsCommand_Args(t *testing.T) {
	if _, _, err := run(t, "columns"); err == nil {
		t.Error("expected error without a file argument")
	}
}

func TestDetectCommand(t *testing.T) {
	dir := t.TempDir()
	orders := writeTemp(t, dir, "orders.csv", ordersCSV)
	plain := writeTemp(t, dir, "plain.csv", "a,b\nx,1\n")
	notes := writeTemp(t, dir, "notes.txt", "hello")

	out, _, err := run(t, "detect", "-j", "2", orders, plain, notes)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 files failed") {
		t.Fatalf("err = %v, want 1 of 3 files failed", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), out)
	}

	var results []detectResult
	for _, l := range lines {
		var r detectResult
		if err := json.Unmarshal([]byte(l), &r); err != nil {
			t.Fatalf("line %q: %v", l, err)
		}
		results = append(results, r)
	}

	if results[0].File != orders || results[0].DateColumn == nil || *results[0].DateColumn != "created" {
		t.Errorf("orders result = %+v", results[0])
	}
	if results[0].Format != "%Y-%m-%d" || *results[0].LatestDate != "2024-02-01T00:00:00" || results[0].Parsed != 2 {
		t.Errorf("orders result = %+v", results[0])
	}
	if results[1].DateColumn != nil || results[1].Error != "" {
		t.Errorf("plain result = %+v", results[1])
	}
	if !strings.Contains(results[2].Error, "unsupported file type") {
		t.Errorf("notes result = %+v", results[2])
	}
}

func TestDetectCommand_Column(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "orders.csv", ordersCSV)

	out, _, err := run(t, "detect", "--column", "shipped", path)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var r detectResult
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatal(err)
	}
	if *r.DateColumn != "shipped" || !r.UserSpecified || *r.EarliestDate != "2024-03-05T00:00:00" {
		t.Errorf("result = %+v", r)
	}
}

func TestDetectCommand_Format(t *testing.T) {
	path := writeTemp(t, t.TempDir(), "orders.csv", ordersCSV)

	out, _, err := run(t, "detect", "--column", "shipped", "--format", "%d/%m/%Y", path)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var r detectResult
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatal(err)
	}
	if r.Format != "%d/%m/%Y" || *r.EarliestDate != "2024-05-03T00:00:00" || *r.LatestDate != "2024-06-04T00:00:00" {
		t.Errorf("result = %+v", r)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown format", args: []string{"detect", "--column", "shipped", "--format", "%Q", path}, want: "unknown date format"},
		{name: "format without column", args: []string{"detect", "--format", "%d/%m/%Y", path}, want: "--format needs --column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := run(t, tt.args...); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestHarmonizeCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "orders.csv", ordersCSV)

	t.Run("default output path", func(t *testing.T) {
		if _, _, err := run(t, "harmonize", path); err != nil {
			t.Fatalf("harmonize: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "orders"+core.HarmonizedSuffix+".csv"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(data), "id,created,shipped,created_harmonized,shipped_harmonized\n") {
			t.Errorf("output = %q", data)
		}
	})

	t.Run("stdout", func(t *testing.T) {
		out, _, err := run(t, "harmonize", "-o", "-", path)
		if err != nil {
			t.Fatalf("harmonize: %v", err)
		}
		if !strings.Contains(out, "1,2024-01-01,03/05/2024,2024-01-01,2024-03-05\n") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("unsupported input leaves no output", func(t *testing.T) {
		bad := writeTemp(t, dir, "bad.pdf", "%PDF")
		target := filepath.Join(dir, "bad_out.csv")
		_, _, err := run(t, "harmonize", "-o", target, bad)
		if !core.IsUnsupportedFormat(err) {
			t.Errorf("err = %v, want unsupported format", err)
		}
		if _, err := os.Stat(target); !os.IsNotExist(err) {
			t.Errorf("output file created: %v", err)
		}
	})
}

func TestDefaultHarmonizedPath(t *testing.T) {
	got := defaultHarmonizedPath(filepath.Join("data", "sales.q1.xlsx"))
	want := filepath.Join("data", "sales.q1_harmonized.csv")
	if got != want {
		t.Errorf("defaultHarmonizedPath = %q, want %q", got, want)
	}
}
