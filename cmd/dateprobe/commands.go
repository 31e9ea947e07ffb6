package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/dateprobe/internal/core"
	"github.com/JonMunkholm/dateprobe/internal/logging"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	logLevel   string
	logFormat  string
	sampleRows int
	sampleSize int
	threshold  float64
}

func (o *rootOptions) engine() *core.Engine {
	return core.NewEngine(core.Options{
		SampleRows: o.sampleRows,
		SampleSize: o.sampleSize,
		Threshold:  o.threshold,
	})
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "dateprobe",
		Short:         "Find and harmonize date columns in csv, xlsx and xls files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	flags.IntVar(&opts.sampleRows, "sample-rows", core.DefaultSampleRows, "rows read for detection")
	flags.IntVar(&opts.sampleSize, "sample-size", core.DefaultSampleSize, "non-null values judged per column")
	flags.Float64Var(&opts.threshold, "threshold", core.DefaultThreshold, "fraction of sampled values that must parse")

	root.AddCommand(
		newColumnsCmd(opts),
		newDetectCmd(opts),
		newHarmonizeCmd(opts),
	)
	return root
}

// --- columns ---

func newColumnsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <file>",
		Short: "Print the column names of a file, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := opts.engine().ColumnNames(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}

// --- detect ---

// detectResult is one JSON line of detect output.
type detectResult struct {
	File          string  `json:"file"`
	DateColumn    *string `json:"date_column"`
	Format        string  `json:"format,omitempty"`
	EarliestDate  *string `json:"earliest_date"`
	LatestDate    *string `json:"latest_date"`
	Parsed        int     `json:"parsed"`
	UserSpecified bool    `json:"user_specified"`
	Error         string  `json:"error,omitempty"`
}

func newDetectCmd(opts *rootOptions) *cobra.Command {
	var (
		column string
		format string
		jobs   int
	)

	cmd := &cobra.Command{
		Use:   "detect <file>...",
		Short: "Detect the date column and its range, one JSON line per file",
		Long: `Detect the date column of each file and print its range as JSON lines,
in argument order. Files are processed concurrently.

Examples:
  dateprobe detect orders.csv
  dateprobe detect --column shipped *.xlsx
  dateprobe detect --column shipped --format '%d/%m/%Y' orders.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := opts.engine()
			choice := core.AutoDetect()
			if column != "" {
				hint, err := core.ParseFormatHint(format)
				if err != nil {
					return err
				}
				choice = core.UseColumnFormat(column, hint)
			} else if format != "" {
				return errors.New("--format needs --column")
			}

			results := make([]detectResult, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(jobs, 1))

			for i, path := range args {
				g.Go(func() error {
					results[i] = detectFile(ctx, engine, path, choice)
					return ctx.Err()
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&column, "column", "", "use this column when present instead of detecting")
	cmd.Flags().StringVar(&format, "format", "", "parse --column with this format only, e.g. %d/%m/%Y")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "files processed at once")
	return cmd
}

func detectFile(ctx context.Context, engine *core.Engine, path string, choice core.ColumnChoice) detectResult {
	res := detectResult{File: path}

	out, err := engine.Process(ctx, path, choice)
	if err != nil {
		slog.Debug("detect failed", "file", path, "error", err)
		res.Error = err.Error()
		return res
	}

	res.UserSpecified = out.UserSpecified
	if out.DateColumn != "" {
		col := out.DateColumn
		res.DateColumn = &col
		res.Format = out.Format
		res.EarliestDate, res.LatestDate = out.Range.ISO()
		res.Parsed = out.Range.Count
	}
	return res
}

// --- harmonize ---

func newHarmonizeCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "harmonize <file>",
		Short: "Write the file as CSV with a _harmonized column per date column",
		Long: `Write the file as CSV with a _harmonized column (YYYY-MM-DD) appended for
every detected date column.

The output defaults to <name>_harmonized.csv next to the input; use -o - for stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := core.FormatFromPath(path); err != nil {
				return err
			}
			if output == "" {
				output = defaultHarmonizedPath(path)
			}

			var w io.Writer = cmd.OutOrStdout()
			var f *os.File
			if output != "-" {
				var err error
				f, err = os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				w = f
			}

			cands, err := opts.engine().HarmonizeTo(cmd.Context(), path, w)
			if f != nil {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					os.Remove(output)
				}
			}
			if err != nil {
				return err
			}

			cols := make([]string, len(cands))
			for i, c := range cands {
				cols[i] = c.Column + " (" + c.FormatName() + ")"
			}
			slog.Info("harmonized file written",
				"input", path,
				"output", output,
				"date_columns", strings.Join(cols, ", "),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, - for stdout")
	return cmd
}

func defaultHarmonizedPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), base+core.HarmonizedSuffix+".csv")
}
