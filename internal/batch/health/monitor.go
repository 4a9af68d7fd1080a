package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nakt/dify-workflow-api-executor/internal/batch/progress"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage"
)

// ProgressSource exposes the state of a batch run.
type ProgressSource interface {
	Snapshot() (progress.Snapshot, bool)
	Running() bool
}

// criticalFailureRate marks a run critical once this share of finished rows failed.
const criticalFailureRate = 0.5

// Monitor aggregates health status from the processor and the failure ledger.
type Monitor struct {
	source     ProgressSource
	ledger     storage.FailureLedger
	ttl        time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. ledger may be nil.
func NewMonitor(source ProgressSource, ledger storage.FailureLedger) *Monitor {
	return &Monitor{
		source: source,
		ledger: ledger,
		ttl:    5 * time.Second,
	}
}

// CheckHealth builds the current report.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Ledger reads may hit disk or Redis, cache briefly
	if m.lastReport != nil && time.Since(m.lastCheck) < m.ttl {
		return *m.lastReport
	}

	report := HealthReport{
		Status:  StatusHealthy,
		Running: m.source.Running(),
	}

	if snap, ok := m.source.Snapshot(); ok {
		report.Progress = &snap
		report.ProgressLabel = fmt.Sprintf("%d/%d", snap.Completed, snap.Total)
		if snap.Completed > 0 {
			report.FailureRate = float64(snap.Failed) / float64(snap.Completed)
		}
	}

	if m.ledger != nil {
		ids, err := m.ledger.Load(ctx)
		if err != nil {
			report.LedgerError = err.Error()
		} else {
			report.PendingRetry = len(ids)
		}
	}

	// Evaluate status
	switch {
	case report.FailureRate >= criticalFailureRate:
		report.Status = StatusCritical
	case report.FailureRate > 0 || report.PendingRetry > 0 || report.LedgerError != "":
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
