package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/dateprobe/internal/store"
)

// markStale puts name into the state a crashed server would leave behind.
func (f *processorFixture) markStale(t *testing.T, name string, status store.Status, seq uint64) {
	t.Helper()
	_, err := f.store.Update(context.Background(), name, func(r *store.Record) {
		r.Status = status
		r.RunSeq = seq
	})
	if err != nil {
		t.Fatalf("Update(%s): %v", name, err)
	}
}

func TestReconcile(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	f.upload(t, "interrupted.csv", ordersCSV)
	f.markStale(t, "interrupted.csv", store.StatusProcessing, 4)
	f.upload(t, "waiting.csv", ordersCSV)
	f.upload(t, "gone.csv", ordersCSV)
	if err := os.Remove(filepath.Join(f.dir, "gone.csv")); err != nil {
		t.Fatal(err)
	}
	f.upload(t, "done.csv", ordersCSV)
	f.markStale(t, "done.csv", store.StatusCompleted, 1)

	report, err := f.proc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	f.proc.Wait()

	want := ReconcileReport{Removed: 1, Interrupted: 1, Started: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}

	rec := f.record(t, "interrupted.csv")
	if rec.Status != store.StatusError || !strings.Contains(deref(rec.ErrorMessage), "interrupted") {
		t.Errorf("interrupted record = %+v", rec)
	}
	if rec.RunSeq != 4 {
		t.Errorf("RunSeq = %d, want 4", rec.RunSeq)
	}

	rec = f.record(t, "waiting.csv")
	if rec.Status != store.StatusCompleted || deref(rec.DateColumn) != "created" {
		t.Errorf("pending record = %+v", rec)
	}

	if _, err := f.store.Get(ctx, "gone.csv"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(gone.csv) err = %v, want ErrNotFound", err)
	}

	if rec := f.record(t, "done.csv"); rec.Status != store.StatusCompleted {
		t.Errorf("completed record changed: %+v", rec)
	}
}

func TestReconcile_SkipsLiveRuns(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.upload(t, "orders.csv", ordersCSV)

	// Hold the only slot so the run stays in processing.
	f.holdSlot(t)
	if _, err := f.proc.Start(ctx, "orders.csv", AutoDetect()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	report, err := f.proc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report != (ReconcileReport{}) {
		t.Errorf("report = %+v, want no changes", report)
	}

	f.limiter.Release()
	f.proc.Wait()
	if rec := f.record(t, "orders.csv"); rec.Status != store.StatusCompleted {
		t.Errorf("Status = %q, want completed", rec.Status)
	}
}

func TestReconcile_Cancelled(t *testing.T) {
	f := newProcessorFixture(t)
	f.upload(t, "orders.csv", ordersCSV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.proc.Reconcile(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStartReconciler_StopsOnCancel(t *testing.T) {
	f := newProcessorFixture(t)
	f.upload(t, "orders.csv", ordersCSV)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.proc.StartReconciler(ctx, time.Hour)
		close(done)
	}()

	// The startup pass runs before the first tick.
	deadline := time.Now().Add(5 * time.Second)
	for f.record(t, "orders.csv").Status == store.StatusPending {
		if time.Now().After(deadline) {
			t.Fatal("startup pass did not run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconcile_AdoptsUnregisteredFiles(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	f.upload(t, "known.csv", ordersCSV)
	f.markStale(t, "known.csv", store.StatusCompleted, 1)
	// Copied in while the server was down: on disk, never registered.
	if err := os.WriteFile(filepath.Join(f.dir, "copied.csv"), []byte(ordersCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := f.proc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	f.proc.Wait()

	if want := (ReconcileReport{Adopted: 1}); report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}

	rec := f.record(t, "copied.csv")
	if rec.Status != store.StatusCompleted || deref(rec.DateColumn) != "created" {
		t.Errorf("adopted record = %+v", rec)
	}
	if rec.FileSize != int64(len(ordersCSV)) {
		t.Errorf("FileSize = %d, want %d", rec.FileSize, len(ordersCSV))
	}

	// A second pass finds nothing left to adopt.
	report, err = f.proc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if report != (ReconcileReport{}) {
		t.Errorf("second report = %+v, want no changes", report)
	}
}
