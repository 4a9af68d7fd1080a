package sink

import (
	"context"
	"errors"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
	"github.com/nakt/dify-workflow-api-executor/internal/infra/storage"
)

type multiSink struct {
	sinks []storage.ResultSink
}

// Multi writes every result to each sink in order. The first sink is the primary
// destination: a failure there stops the fan-out.
func Multi(sinks ...storage.ResultSink) storage.ResultSink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Write(ctx context.Context, result *domain.ExecutionResult) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
