// Package batch drives a sequential run of workflow invocations over input rows.
package batch

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/nakt/dify-workflow-api-executor/internal/batch/recovery"
	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage"
)

// RowSource yields input rows, optionally restricted to a set of ids
type RowSource interface {
	Rows(filter []string) iter.Seq2[domain.Row, error]
}

// Invoker runs the remote workflow for one row. Failures are reported in the outcome.
type Invoker interface {
	Execute(ctx context.Context, inputs domain.Inputs, user string) domain.Outcome
}

// SinkOpener opens the result sink. It is called only when there is at least one row.
type SinkOpener func(ctx context.Context) (storage.ResultSink, error)

// Config holds processor dependencies
type Config struct {
	Source   RowSource
	Invoker  Invoker
	Strategy recovery.RetryStrategy
	OpenSink SinkOpener
	Ledger   storage.FailureLedger
	Progress io.Writer // nil disables the progress bar
}

// Request describes one run
type Request struct {
	RetryMode bool          // process only ids found in the ledger
	Wait      time.Duration // pause between rows
	User      string        // caller identity tag sent with each invocation
	BatchID   string        // generated when empty
}

// Summary reports what a run did
type Summary struct {
	BatchID     string
	Total       int
	Succeeded   int
	Failed      int
	Remaining   int
	Aborted     bool
	Interrupted bool
	Elapsed     time.Duration
}
