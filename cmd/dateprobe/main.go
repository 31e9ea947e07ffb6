// Command dateprobe inspects csv, xlsx and xls files offline: it lists
// columns, detects the date column with its range, and writes harmonized CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/dateprobe/internal/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if core.IsUserFacing(err) {
			fmt.Fprintf(os.Stderr, "  %s\n", core.FormatUserError(err))
		}
		os.Exit(1)
	}
}
