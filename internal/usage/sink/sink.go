// Package sink delivers usage telemetry to its destination. The gateway
// requires only best-effort semantics: it never waits for acknowledgement
// and a sink failure must never surface to a caller.
package sink

import (
	"context"
	"sync"

	"github.com/synaptiq/model-gateway/internal/domain"
)

// Sink accepts one usage record. Ownership of the record transfers to the
// sink on enqueue.
type Sink interface {
	Enqueue(ctx context.Context, md domain.UsageMetadata) error
}

// Memory is an in-process sink used in tests and when no backend is
// configured. FailWith, when set, makes every enqueue fail.
type Memory struct {
	mu       sync.Mutex
	records  []domain.UsageMetadata
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(ctx context.Context, md domain.UsageMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.records = append(m.records, md)
	return nil
}

func (m *Memory) Records() []domain.UsageMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.UsageMetadata, len(m.records))
	copy(out, m.records)
	return out
}
