package core

// processor.go runs the processing state machine for uploaded files.
//
//	pending ──Start──▶ processing ──▶ completed | error
//	completed | error ──Start──▶ processing
//
// Each file carries a run sequence number, bumped by every Start. Starting a
// run cancels the file's previous run, and a run writes its terminal state
// only while its sequence number is still the file's latest. The check and
// the write happen under the file's lock, so a superseded run can never
// overwrite the result of a newer one.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dateprobe/internal/logging"
	"github.com/JonMunkholm/dateprobe/internal/store"
)

// FileLocator maps an uploaded file name to its path on disk.
type FileLocator interface {
	Path(name string) (string, error)

	// Files lists the uploaded files currently on disk.
	Files() ([]StoredFile, error)
}

// StoredFile is one file in the uploads area.
type StoredFile struct {
	Name string
	Size int64
}

// Processor starts and fences processing runs.
type Processor struct {
	engine  *Engine
	store   store.Store
	files   FileLocator
	limiter *RunLimiter
	timeout time.Duration

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*fileRun
}

// fileRun is the per-file fencing state.
type fileRun struct {
	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelFunc
	retired bool
}

// ProcessorConfig holds the tunables for NewProcessor.
type ProcessorConfig struct {
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
}

// NewProcessor creates a Processor. Runs are detached from request contexts
// and live until they finish, are superseded, or Shutdown is called.
func NewProcessor(engine *Engine, st store.Store, files FileLocator, limiter *RunLimiter, cfg ProcessorConfig) *Processor {
	if limiter == nil {
		limiter = NewRunLimiter(DefaultMaxConcurrentRuns, 0)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Processor{
		engine:  engine,
		store:   st,
		files:   files,
		limiter: limiter,
		timeout: cfg.Timeout,
		baseCtx: ctx,
		stop:    stop,
		runs:    make(map[string]*fileRun),
	}
}

// Engine returns the engine used for runs.
func (p *Processor) Engine() *Engine {
	return p.engine
}

// Store returns the metadata store.
func (p *Processor) Store() store.Store {
	return p.store
}

// LimiterStatus reports run slot usage.
func (p *Processor) LimiterStatus() LimiterStatus {
	return p.limiter.Status()
}

// Register records a newly uploaded file in pending state. Any run still
// attached to a previous file of the same name is fenced off first.
func (p *Processor) Register(ctx context.Context, name string, size int64) (store.Record, error) {
	p.retire(name)
	rec, err := p.store.Create(ctx, name, size)
	if err != nil {
		return store.Record{}, fmt.Errorf("register %s: %w", name, err)
	}
	return rec, nil
}

// Start begins a run for name and returns its sequence number.
//
// ChoiceNone completes synchronously: the record is marked completed with no
// date column and user_specified set. Other choices mark the record
// processing and hand the work to a background goroutine.
func (p *Processor) Start(ctx context.Context, name string, choice ColumnChoice) (uint64, error) {
	path, err := p.files.Path(name)
	if err != nil {
		return 0, err
	}
	fr, err := p.fileRun(ctx, name)
	if err != nil {
		return 0, err
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	fr.seq++
	seq := fr.seq
	if fr.cancel != nil {
		fr.cancel()
		fr.cancel = nil
	}

	logger := logging.WithFields(ctx,
		"file", name,
		"run_seq", seq,
		"mode", choice.Mode.String(),
	)

	if choice.Mode == ChoiceNone {
		_, err := p.store.Update(ctx, name, func(r *store.Record) {
			r.Status = store.StatusCompleted
			r.ClearResult()
			r.UserSpecified = true
			r.RunSeq = seq
		})
		if err != nil {
			return 0, fmt.Errorf("mark %s without date column: %w", name, err)
		}
		logger.Info("file marked as having no date column")
		return seq, nil
	}

	if _, err := p.store.Update(ctx, name, func(r *store.Record) {
		r.Status = store.StatusProcessing
		r.ClearResult()
		r.UserSpecified = false
		r.RunSeq = seq
	}); err != nil {
		return 0, fmt.Errorf("mark %s processing: %w", name, err)
	}

	runCtx, cancel := context.WithCancel(p.baseCtx)
	fr.cancel = cancel

	logger = logger.With("run_id", uuid.NewString())
	logger.Info("processing run started")

	p.wg.Add(1)
	go p.run(runCtx, cancel, fr, name, path, seq, choice, logger)
	return seq, nil
}

// run executes one processing run and commits its terminal state.
func (p *Processor) run(ctx context.Context, cancel context.CancelFunc, fr *fileRun, name, path string, seq uint64, choice ColumnChoice, logger *slog.Logger) {
	defer p.wg.Done()
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("processing run panicked", "panic", rec)
			p.commitError(fr, name, seq, fmt.Errorf("processing panic: %v", rec), logger)
		}
	}()

	if p.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, p.timeout)
		defer cancelTimeout()
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		p.commitError(fr, name, seq, fmt.Errorf("wait for run slot: %w", err), logger)
		return
	}
	defer p.limiter.Release()

	out, err := p.engine.Process(ctx, path, choice)
	if err != nil {
		p.commitError(fr, name, seq, err, logger)
		return
	}

	earliest, latest := out.Range.ISO()
	committed := p.commit(fr, name, seq, func(r *store.Record) {
		r.Status = store.StatusCompleted
		r.ClearResult()
		if out.DateColumn != "" {
			col := out.DateColumn
			r.DateColumn = &col
		}
		r.EarliestDate = earliest
		r.LatestDate = latest
		r.UserSpecified = out.UserSpecified
	}, logger)
	if committed {
		logger.Info("processing run completed",
			"date_column", out.DateColumn,
			"format", out.Format,
			"parsed", out.Range.Count,
			"user_specified", out.UserSpecified,
			"duration", time.Since(start),
		)
	}
}

func (p *Processor) commitError(fr *fileRun, name string, seq uint64, runErr error, logger *slog.Logger) {
	msg := runErr.Error()
	if p.commit(fr, name, seq, func(r *store.Record) {
		r.Status = store.StatusError
		r.ClearResult()
		r.ErrorMessage = &msg
	}, logger) {
		logger.Warn("processing run failed", "error", runErr)
	}
}

// commit writes a terminal state if seq is still the file's latest run.
// Reports whether the write happened.
func (p *Processor) commit(fr *fileRun, name string, seq uint64, mutate func(*store.Record), logger *slog.Logger) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if fr.retired || fr.seq != seq {
		logger.Debug("dropping result of superseded run", "latest_seq", fr.seq, "retired", fr.retired)
		return false
	}

	// Not the run context: a timed-out run still records its error.
	if _, err := p.store.Update(context.Background(), name, mutate); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Debug("record removed before run finished")
			return false
		}
		logger.Error("failed to record run result", "error", err)
		return false
	}
	fr.cancel = nil
	return true
}

// fileRun returns the fencing state for name, seeding the sequence number
// from the stored record on first use.
func (p *Processor) fileRun(ctx context.Context, name string) (*fileRun, error) {
	p.mu.Lock()
	fr, ok := p.runs[name]
	p.mu.Unlock()
	if ok {
		return fr, nil
	}

	rec, err := p.store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if fr, ok := p.runs[name]; ok {
		return fr, nil
	}
	fr = &fileRun{seq: rec.RunSeq}
	p.runs[name] = fr
	return fr, nil
}

// retire cancels and fences every run attached to name.
func (p *Processor) retire(name string) {
	p.mu.Lock()
	fr, ok := p.runs[name]
	delete(p.runs, name)
	p.mu.Unlock()
	if !ok {
		return
	}

	fr.mu.Lock()
	fr.retired = true
	if fr.cancel != nil {
		fr.cancel()
		fr.cancel = nil
	}
	fr.mu.Unlock()
}

// Remove cancels runs for name and deletes its record.
func (p *Processor) Remove(ctx context.Context, name string) error {
	p.retire(name)
	if err := p.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Wait blocks until every started run has returned.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Shutdown cancels all runs and waits for them to return or ctx to end.
// Cancelled runs record an error status so they can be reprocessed.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.stop()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.limiter.WaitForDrain(ctx)
}
