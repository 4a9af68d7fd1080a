package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// MemoryStorage keeps results and the failure ledger in process memory.
type MemoryStorage struct {
	results []*domain.ExecutionResult
	failed  []string
	closed  int
	cleared int
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Results returns a copy of every written result.
func (s *MemoryStorage) Results() []*domain.ExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ExecutionResult, len(s.results))
	copy(out, s.results)
	return out
}

// CloseCount reports how many times a sink over this storage was closed.
func (s *MemoryStorage) CloseCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// ClearCount reports how many times the ledger was cleared.
func (s *MemoryStorage) ClearCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cleared
}

// -----------------------------------------------------------------------------
// Result Sink
// -----------------------------------------------------------------------------

type Sink struct {
	store *MemoryStorage
}

func NewSink(store *MemoryStorage) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Write(ctx context.Context, result *domain.ExecutionResult) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	r := *result
	s.store.results = append(s.store.results, &r)
	return nil
}

func (s *Sink) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.closed++
	return nil
}

// -----------------------------------------------------------------------------
// Failure Ledger
// -----------------------------------------------------------------------------

type Ledger struct {
	store *MemoryStorage
}

func NewLedger(store *MemoryStorage) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Add(ctx context.Context, id string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.failed = append(l.store.failed, id)
	return nil
}

func (l *Ledger) Load(ctx context.Context) ([]string, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	out := make([]string, len(l.store.failed))
	copy(out, l.store.failed)
	return out, nil
}

func (l *Ledger) Remove(ctx context.Context, id string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	kept := l.store.failed[:0]
	for _, f := range l.store.failed {
		if f != id {
			kept = append(kept, f)
		}
	}
	l.store.failed = kept
	return nil
}

func (l *Ledger) Clear(ctx context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.failed = nil
	l.store.cleared++
	return nil
}

func (l *Ledger) String() string {
	return fmt.Sprintf("memory(%p)", l.store)
}
