// Package health provides run health monitoring and status reporting.
package health

import "github.com/nakt/dify-workflow-api-executor/internal/batch/progress"

// SystemStatus represents the overall health state of a run.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// HealthReport contains the full run health report.
type HealthReport struct {
	Status        SystemStatus       `json:"status"`
	Running       bool               `json:"running"`
	FailureRate   float64            `json:"failure_rate"`
	PendingRetry  int                `json:"pending_retry"`
	LedgerError   string             `json:"ledger_error,omitempty"`
	Progress      *progress.Snapshot `json:"progress,omitempty"`
	ProgressLabel string             `json:"progress_label,omitempty"`
}
