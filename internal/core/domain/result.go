package domain

import (
	"encoding/json"
	"time"
)

// ResultStatus is the terminal state of a processed row.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailed  ResultStatus = "failed"
)

// ExecutionResult is the record written to the result sink once per finished row.
type ExecutionResult struct {
	ID         string
	Status     ResultStatus
	Inputs     Inputs
	Outputs    map[string]any
	RunID      string
	Error      *InvocationError
	ExecutedAt time.Time
	RetryCount int
}

type resultRecord struct {
	ID         string         `json:"id"`
	Status     ResultStatus   `json:"status"`
	Inputs     Inputs         `json:"inputs"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorType  ErrorKind      `json:"error_type,omitempty"`
	ExecutedAt string         `json:"executed_at"`
	RetryCount int            `json:"retry_count"`
}

// MarshalJSON renders the result in its wire shape. Timestamps are UTC ISO-8601.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	rec := resultRecord{
		ID:         r.ID,
		Status:     r.Status,
		Inputs:     r.Inputs,
		RunID:      r.RunID,
		ExecutedAt: r.ExecutedAt.UTC().Format(time.RFC3339Nano),
		RetryCount: r.RetryCount,
	}
	if rec.Inputs == nil {
		rec.Inputs = Inputs{}
	}
	if r.Status == ResultStatusSuccess {
		rec.Outputs = r.Outputs
		if rec.Outputs == nil {
			rec.Outputs = map[string]any{}
		}
	}
	if r.Error != nil {
		rec.Error = r.Error.Message
		rec.ErrorType = r.Error.Kind
	}
	return json.Marshal(rec)
}
