package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nakt/dify-workflow-api-executor/internal/batch/metrics"
	"github.com/nakt/dify-workflow-api-executor/internal/batch/progress"
	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage"
)

// Processor runs rows one at a time, each to a terminal status, recording
// results and keeping the failure ledger in step.
type Processor struct {
	cfg     Config
	running atomic.Bool
	tracker atomic.Pointer[progress.Tracker]

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewProcessor creates a new batch processor
func NewProcessor(cfg Config) *Processor {
	return &Processor{
		cfg:   cfg,
		sleep: sleepCtx,
		now:   time.Now,
	}
}

// Snapshot returns progress of the current or last run. ok is false before any row was loaded.
func (p *Processor) Snapshot() (s progress.Snapshot, ok bool) {
	t := p.tracker.Load()
	if t == nil {
		return progress.Snapshot{}, false
	}
	return t.Snapshot(), true
}

// Running reports whether a run is in progress
func (p *Processor) Running() bool {
	return p.running.Load()
}

// Run processes the input. Interruption returns ctx.Err() with a partial summary.
func (p *Processor) Run(ctx context.Context, req Request) (Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Summary{}, fmt.Errorf("processor already running")
	}
	defer p.running.Store(false)

	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}
	start := p.now()
	summary := Summary{BatchID: req.BatchID}
	log := slog.Default().With("batch_id", req.BatchID)

	// 1. Decide which rows to run
	var filter []string
	if req.RetryMode {
		ids, err := p.cfg.Ledger.Load(ctx)
		if err != nil {
			return summary, fmt.Errorf("failed to load ledger: %w", err)
		}
		if len(ids) == 0 {
			log.Info("No failed rows to retry", "ledger", p.cfg.Ledger.String())
			return summary, nil
		}
		log.Info("Retrying failed rows", "count", len(ids), "ledger", p.cfg.Ledger.String())
		filter = ids
	}

	// 2. Materialize rows for the total count
	var rows []domain.Row
	for row, err := range p.cfg.Source.Rows(filter) {
		if err != nil {
			return summary, fmt.Errorf("failed to read rows: %w", err)
		}
		rows = append(rows, row)
	}
	summary.Total = len(rows)
	if len(rows) == 0 {
		log.Info("No rows to process")
		return summary, nil
	}

	// 3. Open the sink; it is closed on every exit path
	sink, err := p.cfg.OpenSink(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to open result sink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("Failed to close result sink", "error", err)
		}
	}()

	tracker := progress.NewTracker(len(rows), p.cfg.Progress)
	p.tracker.Store(tracker)
	log.Info("Starting batch", "rows", len(rows), "retry_mode", req.RetryMode)

	finish := func() {
		s := tracker.Snapshot()
		summary.Succeeded = s.Success
		summary.Failed = s.Failed
		summary.Elapsed = p.now().Sub(start)
	}

	// 4. Sequential loop
	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}

		fatal, err := p.processRow(ctx, sink, tracker, log.With("row_id", row.ID), row, req.User)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			finish()
			return summary, err
		}
		if fatal {
			summary.Aborted = true
			metrics.BatchAborted.Inc()
			log.Error("Fatal error, aborting batch", "row_id", row.ID, "processed", i+1, "total", len(rows))
			break
		}

		if req.Wait > 0 && i < len(rows)-1 {
			if err := p.sleep(ctx, req.Wait); err != nil {
				break
			}
		}
	}

	if ctx.Err() != nil {
		finish()
		summary.Interrupted = true
		_, _ = fmt.Fprintln(p.progressOut())
		log.Warn("Batch interrupted", "succeeded", summary.Succeeded, "failed", summary.Failed)
		return summary, ctx.Err()
	}

	tracker.Summary()
	finish()

	// 5. Reconcile the ledger
	remaining, err := p.cfg.Ledger.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load ledger: %w", err)
	}
	summary.Remaining = len(remaining)
	metrics.LedgerSize.Set(float64(len(remaining)))

	if len(remaining) == 0 {
		if err := p.cfg.Ledger.Clear(ctx); err != nil {
			return summary, fmt.Errorf("failed to clear ledger: %w", err)
		}
	} else {
		log.Info("Some rows failed, run again with --retry to process them",
			"remaining", len(remaining), "ledger", p.cfg.Ledger.String())
	}

	log.Info("Batch finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"aborted", summary.Aborted,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

// processRow drives one row to a terminal status. fatal reports that the batch must stop.
// An error is returned only for sink/ledger failures or cancellation.
func (p *Processor) processRow(
	ctx context.Context,
	sink storage.ResultSink,
	tracker *progress.Tracker,
	log *slog.Logger,
	row domain.Row,
	user string,
) (fatal bool, err error) {
	for attempt := 0; ; attempt++ {
		outcome := p.cfg.Invoker.Execute(ctx, row.Inputs, user)
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if outcome.Success {
			result := &domain.ExecutionResult{
				ID:         row.ID,
				Status:     domain.ResultStatusSuccess,
				Inputs:     row.Inputs,
				Outputs:    outcome.Outputs,
				RunID:      outcome.RunID,
				ExecutedAt: p.now(),
				RetryCount: attempt,
			}
			if err := sink.Write(ctx, result); err != nil {
				return false, fmt.Errorf("failed to write result %s: %w", row.ID, err)
			}
			if err := p.cfg.Ledger.Remove(ctx, row.ID); err != nil {
				return false, fmt.Errorf("failed to update ledger for %s: %w", row.ID, err)
			}
			tracker.Update(true)
			metrics.RowsProcessed.WithLabelValues(string(domain.ResultStatusSuccess)).Inc()
			log.Debug("Row succeeded", "run_id", outcome.RunID, "retries", attempt)
			return false, nil
		}

		if outcome.Error == nil {
			outcome.Error = &domain.InvocationError{Message: "unknown failure", Kind: domain.ErrorKindAPI}
		}
		kind := outcome.Kind()
		if p.cfg.Strategy.ShouldRetry(kind, attempt) {
			delay := p.cfg.Strategy.GetDelay(attempt)
			metrics.RetriesTotal.WithLabelValues(string(kind)).Inc()
			log.Warn("Row failed, retrying",
				"attempt", attempt+1,
				"error_type", kind,
				"error", outcome.Error.Message,
				"delay", delay,
			)
			if err := p.sleep(ctx, delay); err != nil {
				return false, err
			}
			continue
		}

		result := &domain.ExecutionResult{
			ID:         row.ID,
			Status:     domain.ResultStatusFailed,
			Inputs:     row.Inputs,
			RunID:      outcome.RunID,
			Error:      outcome.Error,
			ExecutedAt: p.now(),
			RetryCount: attempt,
		}
		if err := sink.Write(ctx, result); err != nil {
			return false, fmt.Errorf("failed to write result %s: %w", row.ID, err)
		}
		// Keep one entry per pending row across repeated retry runs
		if err := p.cfg.Ledger.Remove(ctx, row.ID); err != nil {
			return false, fmt.Errorf("failed to update ledger for %s: %w", row.ID, err)
		}
		if err := p.cfg.Ledger.Add(ctx, row.ID); err != nil {
			return false, fmt.Errorf("failed to update ledger for %s: %w", row.ID, err)
		}
		tracker.Update(false)
		metrics.RowsProcessed.WithLabelValues(string(domain.ResultStatusFailed)).Inc()
		log.Error("Row failed", "error_type", kind, "error", outcome.Error.Message, "retries", attempt)

		return p.cfg.Strategy.IsFatal(kind), nil
	}
}

func (p *Processor) progressOut() io.Writer {
	if p.cfg.Progress == nil {
		return io.Discard
	}
	return p.cfg.Progress
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
