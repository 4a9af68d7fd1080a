package storage

import (
	"context"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// ResultSink handles the append-only results log
type ResultSink interface {
	// Write appends one result and makes it durable before returning
	Write(ctx context.Context, result *domain.ExecutionResult) error

	// Close releases the underlying handle
	Close() error
}

// FailureLedger handles the set of row ids pending retry
type FailureLedger interface {
	// Add appends a failed row id; duplicates are tolerated
	Add(ctx context.Context, id string) error

	// Load returns the ids in insertion order; an absent ledger is empty
	Load(ctx context.Context) ([]string, error)

	// Remove drops every occurrence of id
	Remove(ctx context.Context, id string) error

	// Clear deletes the ledger
	Clear(ctx context.Context) error

	// String identifies the ledger location for logs
	String() string
}
