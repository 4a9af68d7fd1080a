// Package dify invokes Dify workflows over the HTTP API.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nakt/dify-workflow-api-executor/internal/batch/metrics"
	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

const maxResponseBytes = 16 << 20

// Config holds the workflow endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	WorkflowID string
	Timeout    time.Duration
}

// Stats summarizes calls made by a client.
type Stats struct {
	SuccessCount int
	FailureCount int
	AvgLatency   time.Duration
	LastFailure  domain.ErrorKind
}

// Client runs a workflow once per Execute call. It never returns errors:
// every failure is reported in the returned outcome.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger

	mu           sync.Mutex
	totalLatency time.Duration
	stats        Stats
}

// NewClient creates a client for the configured workflow.
func NewClient(cfg Config) *Client {
	return &Client{
		endpoint: runEndpoint(cfg.BaseURL, cfg.WorkflowID),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: slog.Default().With("component", "dify"),
	}
}

func runEndpoint(baseURL, workflowID string) string {
	base := strings.TrimRight(baseURL, "/")
	if workflowID == "" {
		return base + "/workflows/run"
	}
	return base + "/workflows/" + url.PathEscape(workflowID) + "/run"
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type runRequest struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

type runResponse struct {
	WorkflowRunID string `json:"workflow_run_id"`
	TaskID        string `json:"task_id"`
	Data          struct {
		ID      string         `json:"id"`
		Status  string         `json:"status"`
		Outputs map[string]any `json:"outputs"`
		Error   string         `json:"error"`
	} `json:"data"`
}

// Execute runs the workflow with inputs on behalf of user.
func (c *Client) Execute(ctx context.Context, inputs domain.Inputs, user string) domain.Outcome {
	start := time.Now()
	outcome := c.execute(ctx, inputs, user)
	latency := time.Since(start)

	result := "success"
	if !outcome.Success {
		result = string(outcome.Kind())
		c.log.Warn("Workflow execution failed",
			"error_type", outcome.Kind(), "error", outcome.Error.Message)
	}
	metrics.InvocationsTotal.WithLabelValues(result).Inc()
	metrics.InvocationLatency.WithLabelValues(result).Observe(latency.Seconds())
	c.record(outcome, latency)

	return outcome
}

func (c *Client) execute(ctx context.Context, inputs domain.Inputs, user string) domain.Outcome {
	jsonData, err := json.Marshal(runRequest{
		Inputs:       inputs.Map(),
		ResponseMode: "blocking",
		User:         user,
	})
	if err != nil {
		return domain.Failed(domain.ErrorKindValidation, fmt.Sprintf("marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return domain.Failed(domain.ErrorKindTransport, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Failed(ClassifyError(err), fmt.Sprintf("workflow call: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Failed(ClassifyError(err), fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
			if apiErr.Code != "" {
				msg = apiErr.Code + ": " + msg
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				msg += " (retry after " + retryAfter + ")"
			}
		}
		return domain.Failed(
			classifyAPIError(resp.StatusCode, apiErr),
			fmt.Sprintf("http %d: %s", resp.StatusCode, msg),
		)
	}

	var runResp runResponse
	if err := json.Unmarshal(body, &runResp); err != nil {
		return domain.Failed(domain.ErrorKindMalformedResponse, fmt.Sprintf("parse response: %v", err))
	}

	runID := runResp.WorkflowRunID
	if runID == "" {
		runID = runResp.Data.ID
	}
	if runID == "" {
		return domain.Failed(domain.ErrorKindMalformedResponse, "response has no workflow_run_id")
	}

	if status := runResp.Data.Status; status != "" && status != "succeeded" {
		msg := runResp.Data.Error
		if msg == "" {
			msg = "workflow finished with status " + status
		}
		o := domain.Failed(domain.ErrorKindAPI, msg)
		o.RunID = runID
		return o
	}

	outputs := runResp.Data.Outputs
	if outputs == nil {
		outputs = map[string]any{}
	}
	return domain.Outcome{
		Success: true,
		RunID:   runID,
		Outputs: outputs,
	}
}

// Stats returns call counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) record(o domain.Outcome, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Success {
		c.stats.SuccessCount++
		c.totalLatency += latency
		c.stats.AvgLatency = c.totalLatency / time.Duration(c.stats.SuccessCount)
		return
	}
	c.stats.FailureCount++
	c.stats.LastFailure = o.Kind()
}
