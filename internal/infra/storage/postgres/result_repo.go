package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// resultRow is the execution_results table row.
type resultRow struct {
	BatchID    string    `db:"batch_id"`
	RowID      string    `db:"row_id"`
	Status     string    `db:"status"`
	Inputs     string    `db:"inputs"`
	Outputs    string    `db:"outputs"`
	RunID      string    `db:"run_id"`
	ErrorMsg   string    `db:"error_msg"`
	ErrorType  string    `db:"error_type"`
	RetryCount int       `db:"retry_count"`
	ExecutedAt time.Time `db:"executed_at"`
}

func toRow(batchID string, r *domain.ExecutionResult) (resultRow, error) {
	inputs := r.Inputs
	if inputs == nil {
		inputs = domain.Inputs{}
	}
	in, err := json.Marshal(inputs)
	if err != nil {
		return resultRow{}, fmt.Errorf("failed to encode inputs: %w", err)
	}

	outputs := r.Outputs
	if outputs == nil || r.Status != domain.ResultStatusSuccess {
		outputs = map[string]any{}
	}
	out, err := json.Marshal(outputs)
	if err != nil {
		return resultRow{}, fmt.Errorf("failed to encode outputs: %w", err)
	}

	row := resultRow{
		BatchID:    batchID,
		RowID:      r.ID,
		Status:     string(r.Status),
		Inputs:     string(in),
		Outputs:    string(out),
		RunID:      r.RunID,
		RetryCount: r.RetryCount,
		ExecutedAt: r.ExecutedAt.UTC(),
	}
	if r.Error != nil {
		row.ErrorMsg = r.Error.Message
		row.ErrorType = string(r.Error.Kind)
	}
	return row, nil
}

// ResultRepo mirrors execution results into PostgreSQL.
// It implements storage.ResultSink; the connection is owned by the caller.
type ResultRepo struct {
	db      *DB
	batchID string
}

// NewResultRepo creates a results mirror tagging every row with batchID.
func NewResultRepo(db *DB, batchID string) *ResultRepo {
	return &ResultRepo{db: db, batchID: batchID}
}

// Write inserts one result.
func (r *ResultRepo) Write(ctx context.Context, result *domain.ExecutionResult) error {
	row, err := toRow(r.batchID, result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO execution_results (
			batch_id, row_id, status, inputs, outputs, run_id, error_msg, error_type, retry_count, executed_at
		) VALUES (
			:batch_id, :row_id, :status, :inputs, :outputs, :run_id, :error_msg, :error_type, :retry_count, :executed_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to save result %s: %w", result.ID, err)
	}
	return nil
}

// Close is a no-op; the database handle outlives the sink.
func (r *ResultRepo) Close() error {
	return nil
}

// CountByStatus returns the number of mirrored results for a batch, per status.
func (r *ResultRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) AS n
		FROM execution_results
		WHERE batch_id = $1
		GROUP BY status
	`
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, r.batchID); err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}
