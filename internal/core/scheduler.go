package core

// scheduler.go runs metadata reconciliation in the background.
//
// A reconcile pass repairs records the processor does not own:
//  1. Records whose file has left the uploads area are deleted.
//  2. Records left "processing" by a previous process are marked error so the
//     user can reprocess them.
//  3. Records still "pending" get an automatic detection run.
//  4. Files on disk without a record are registered and get the same run.
//
// Individual failures are logged and never stop the scheduler.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/dateprobe/internal/store"
)

// interruptedMessage is recorded on runs that were lost to a restart.
const interruptedMessage = "processing interrupted before it finished; reprocess the file"

// ReconcileReport counts the changes made by one pass.
type ReconcileReport struct {
	Removed     int // records whose file was gone
	Interrupted int // processing records marked error
	Started     int // pending records handed to a run
	Adopted     int // files without a record, registered and started
}

// Reconcile performs one pass over the metadata store.
func (p *Processor) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	// Files saved after this listing are left to their upload handler.
	files, err := p.files.Files()
	if err != nil {
		return report, err
	}
	records, err := p.store.All(ctx)
	if err != nil {
		return report, err
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.Filename] = true
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logger := slog.With("file", rec.Filename)

		if _, err := p.files.Path(rec.Filename); err != nil {
			if !errors.Is(err, ErrFileNotFound) {
				logger.Warn("reconcile: cannot stat file", "error", err)
				continue
			}
			if err := p.Remove(ctx, rec.Filename); err != nil {
				logger.Error("reconcile: remove orphaned record failed", "error", err)
				continue
			}
			logger.Info("reconcile: removed record for missing file")
			report.Removed++
			continue
		}

		if p.active(rec.Filename) {
			continue
		}

		switch rec.Status {
		case store.StatusProcessing:
			if p.markInterrupted(ctx, rec.Filename, rec.RunSeq) {
				logger.Info("reconcile: marked interrupted run as error", "run_seq", rec.RunSeq)
				report.Interrupted++
			}
		case store.StatusPending:
			if _, err := p.Start(ctx, rec.Filename, AutoDetect()); err != nil {
				logger.Error("reconcile: start pending run failed", "error", err)
				continue
			}
			report.Started++
		}
	}

	for _, f := range files {
		if known[f.Name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if p.adopt(ctx, f) {
			report.Adopted++
		}
	}
	return report, nil
}

// adopt registers a file that has no record and starts auto detection.
func (p *Processor) adopt(ctx context.Context, f StoredFile) bool {
	logger := slog.With("file", f.Name)

	// The upload handler may have registered it since the records were read.
	_, err := p.store.Get(ctx, f.Name)
	if err == nil {
		return false
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("reconcile: cannot read record", "error", err)
		return false
	}

	if _, err := p.Register(ctx, f.Name, f.Size); err != nil {
		logger.Error("reconcile: register file failed", "error", err)
		return false
	}
	if _, err := p.Start(ctx, f.Name, AutoDetect()); err != nil {
		logger.Error("reconcile: start adopted run failed", "error", err)
		return false
	}
	logger.Info("reconcile: adopted file without a record")
	return true
}

// StartReconciler runs Reconcile immediately, then every interval until ctx
// is cancelled. A non-positive interval runs the startup pass only.
func (p *Processor) StartReconciler(ctx context.Context, interval time.Duration) {
	p.runReconcile(ctx)
	if interval <= 0 {
		return
	}

	slog.Info("reconciler started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
			p.runReconcile(ctx)
		}
	}
}

func (p *Processor) runReconcile(ctx context.Context) {
	start := time.Now()
	report, err := p.Reconcile(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("reconcile failed", "error", err)
		return
	}
	slog.Debug("reconcile completed",
		"removed", report.Removed,
		"interrupted", report.Interrupted,
		"started", report.Started,
		"adopted", report.Adopted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// active reports whether this process has a live run for name.
func (p *Processor) active(name string) bool {
	p.mu.Lock()
	fr, ok := p.runs[name]
	p.mu.Unlock()
	if !ok {
		return false
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.cancel != nil
}

// markInterrupted moves a stale processing record to error, unless a run
// has started for it since the record was read.
func (p *Processor) markInterrupted(ctx context.Context, name string, seq uint64) bool {
	fr, err := p.fileRun(ctx, name)
	if err != nil {
		return false
	}
	fr.mu.Lock()
	live := fr.cancel != nil || fr.seq != seq
	fr.mu.Unlock()
	if live {
		return false
	}

	msg := interruptedMessage
	return p.commit(fr, name, seq, func(r *store.Record) {
		if r.Status != store.StatusProcessing {
			return
		}
		r.Status = store.StatusError
		r.ClearResult()
		r.ErrorMessage = &msg
	}, slog.With("file", name, "run_seq", seq))
}
