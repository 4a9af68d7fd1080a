package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nakt/dify-workflow-api-executor/internal/core/config"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/ledger"
)

func TestOpenLedger_File(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.jsonl")

	tests := []struct {
		name   string
		path   string
		expect string
	}{
		{"default path", "", ledger.PathFor(output)},
		{"explicit path", filepath.Join(dir, "custom.retry"), filepath.Join(dir, "custom.retry")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Ledger.Path = tt.path

			l, closeFn, err := openLedger(context.Background(), &cfg, output)
			if err != nil {
				t.Fatalf("openLedger failed: %v", err)
			}
			defer closeFn()

			if l.String() != tt.expect {
				t.Errorf("expected %s, got %s", tt.expect, l.String())
			}
		})
	}
}

func TestOpenLedger_Errors(t *testing.T) {
	cfg := config.Default()
	if _, _, err := openLedger(context.Background(), &cfg, ""); err == nil {
		t.Error("expected error without output or ledger path")
	}

	cfg.Ledger.Backend = "s3"
	if _, _, err := openLedger(context.Background(), &cfg, "out.jsonl"); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

// setRunFlags points the package flags at a run and restores them afterwards.
func setRunFlags(t *testing.T, input, output string, retry bool, wait float64) {
	t.Helper()
	prevInput, prevOutput, prevRetry, prevWait := inputPath, outputPath, retryMode, waitSeconds
	inputPath, outputPath, retryMode, waitSeconds = input, output, retry, wait
	t.Cleanup(func() {
		inputPath, outputPath, retryMode, waitSeconds = prevInput, prevOutput, prevRetry, prevWait
	})
}

func TestCheckRunFlags(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		output  string
		wait    float64
		wantErr bool
	}{
		{"both set", "in.csv", "out.jsonl", 0, false},
		{"missing input", "", "out.jsonl", 0, true},
		{"missing output", "in.csv", "", 0, true},
		{"missing both", "", "", 0, true},
		{"negative wait", "in.csv", "out.jsonl", -1, true},
		{"fractional wait", "in.csv", "out.jsonl", 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRunFlags(t, tt.input, tt.output, false, tt.wait)
			err := checkRunFlags()
			if (err != nil) != tt.wantErr {
				t.Errorf("checkRunFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecute_ExitCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		noInput   bool
		cancelled bool
		expect    int
		results   int
	}{
		{
			name:    "success",
			status:  http.StatusOK,
			body:    `{"workflow_run_id":"run-1","data":{"id":"run-1","status":"succeeded","outputs":{"answer":"ok"}}}`,
			expect:  exitOK,
			results: 2,
		},
		{
			name:    "row failures still exit zero",
			status:  http.StatusBadRequest,
			body:    `{"code":"invalid_param","message":"bad","status":400}`,
			expect:  exitOK,
			results: 2,
		},
		{
			name:    "authentication aborts",
			status:  http.StatusUnauthorized,
			body:    `{"code":"unauthorized","message":"bad key","status":401}`,
			expect:  exitError,
			results: 1,
		},
		{
			name:    "missing input",
			status:  http.StatusOK,
			noInput: true,
			expect:  exitError,
		},
		{
			name:      "interrupted",
			status:    http.StatusOK,
			body:      `{"workflow_run_id":"run-1","data":{"status":"succeeded"}}`,
			cancelled: true,
			expect:    exitInterrupted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			dir := t.TempDir()
			input := filepath.Join(dir, "in.csv")
			output := filepath.Join(dir, "out.jsonl")
			if !tt.noInput {
				if err := os.WriteFile(input, []byte("id,q\n1,a\n2,b\n"), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			setRunFlags(t, input, output, false, 0)

			cfg := config.Default()
			cfg.Dify.BaseURL = server.URL
			cfg.Dify.APIKey = "app-test"
			cfg.Dify.WorkflowID = "wf"
			cfg.Retry.MaxRetries = 0

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelled {
				cancel()
			}

			if got := execute(ctx, &cfg); got != tt.expect {
				t.Errorf("expected exit code %d, got %d", tt.expect, got)
			}

			lines := 0
			if data, err := os.ReadFile(output); err == nil {
				lines = strings.Count(string(data), "\n")
			}
			if lines != tt.results {
				t.Errorf("expected %d result lines, got %d", tt.results, lines)
			}
		})
	}
}
