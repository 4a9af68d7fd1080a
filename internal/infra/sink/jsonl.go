// Package sink writes execution results to durable destinations.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// ErrClosed is returned when writing to a closed sink.
var ErrClosed = errors.New("sink closed")

// JSONLSink appends results as newline-delimited JSON.
type JSONLSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenJSONL opens path for appending, creating it if needed.
func OpenJSONL(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open output: %w", domain.ErrIO, err)
	}
	return &JSONLSink{path: path, f: f}, nil
}

// Path returns the output file path.
func (s *JSONLSink) Path() string {
	return s.path
}

// Write appends one line and syncs it to disk.
func (s *JSONLSink) Write(ctx context.Context, result *domain.ExecutionResult) error {
	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", result.ID, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("%w: write output: %w", domain.ErrIO, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync output: %w", domain.ErrIO, err)
	}
	return nil
}

// Close releases the file handle. Calling it more than once is safe.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
