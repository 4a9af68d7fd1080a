package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage/memory"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line is not JSON: %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestJSONLSink_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	ctx := context.Background()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"r1", "r2"} {
		s, err := OpenJSONL(path)
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		err = s.Write(ctx, &domain.ExecutionResult{
			ID:         id,
			Status:     domain.ResultStatusSuccess,
			Inputs:     domain.Inputs{{Name: "query", Value: "x"}},
			Outputs:    map[string]any{"answer": "ok"},
			RunID:      "run-" + id,
			ExecutedAt: at,
		})
		if err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["id"] != "r1" || lines[1]["id"] != "r2" {
		t.Errorf("unexpected order: %v", lines)
	}
	if lines[0]["executed_at"] != "2025-01-02T03:04:05Z" {
		t.Errorf("unexpected timestamp %v", lines[0]["executed_at"])
	}
	if lines[0]["run_id"] != "run-r1" {
		t.Errorf("unexpected run_id %v", lines[0]["run_id"])
	}
	if _, ok := lines[0]["error"]; ok {
		t.Error("success record must not carry an error")
	}
}

func TestJSONLSink_FailedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()

	err = s.Write(context.Background(), &domain.ExecutionResult{
		ID:         "r1",
		Status:     domain.ResultStatusFailed,
		Error:      &domain.InvocationError{Message: "bad key", Kind: domain.ErrorKindAuthentication},
		ExecutedAt: time.Now(),
		RetryCount: 0,
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	rec := lines[0]
	if rec["status"] != "failed" || rec["error_type"] != "authentication_error" || rec["error"] != "bad key" {
		t.Errorf("unexpected record %v", rec)
	}
	if _, ok := rec["outputs"]; ok {
		t.Error("failed record must not carry outputs")
	}
	if rec["retry_count"] != float64(0) {
		t.Errorf("expected retry_count 0, got %v", rec["retry_count"])
	}
}

func TestJSONLSink_InputsKeepColumnOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s, _ := OpenJSONL(path)
	defer s.Close()

	_ = s.Write(context.Background(), &domain.ExecutionResult{
		ID:     "r1",
		Status: domain.ResultStatusSuccess,
		Inputs: domain.Inputs{{Name: "zeta", Value: "1"}, {Name: "alpha", Value: "日本語"}},
	})

	data, _ := os.ReadFile(path)
	want := `"inputs":{"zeta":"1","alpha":"日本語"}`
	if !strings.Contains(string(data), want) {
		t.Errorf("expected %s in %s", want, data)
	}
}

func TestJSONLSink_OpenError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "out.jsonl")
	if _, err := OpenJSONL(path); !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestJSONLSink_WriteAfterClose(t *testing.T) {
	s, _ := OpenJSONL(filepath.Join(t.TempDir(), "out.jsonl"))
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	err := s.Write(context.Background(), &domain.ExecutionResult{ID: "r1"})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestMulti(t *testing.T) {
	a, b := memory.NewMemoryStorage(), memory.NewMemoryStorage()
	m := Multi(memory.NewSink(a), memory.NewSink(b))

	if err := m.Write(context.Background(), &domain.ExecutionResult{ID: "r1"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if len(a.Results()) != 1 || len(b.Results()) != 1 {
		t.Errorf("expected result in both sinks")
	}
	if a.CloseCount() != 1 || b.CloseCount() != 1 {
		t.Errorf("expected both sinks closed")
	}
}
