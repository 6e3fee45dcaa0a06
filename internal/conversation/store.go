// Package conversation is the gateway's boundary to the conversation store.
// The store hands back prior turns as already-serialized text; the gateway
// performs no schema validation of its own.
package conversation

import (
	"context"
	"sync"

	"github.com/synaptiq/model-gateway/internal/domain"
)

// Store returns a conversation's prior turns in order and accepts appends
// of the same shape.
type Store interface {
	Turns(ctx context.Context, userID, conversationID string) ([]domain.Turn, error)
	Append(ctx context.Context, userID, conversationID string, turns ...domain.Turn) error
}

// Memory keeps conversations in process. Used in tests and single-node
// deployments without Redis.
type Memory struct {
	mu    sync.RWMutex
	turns map[string][]domain.Turn
}

func NewMemory() *Memory {
	return &Memory{turns: make(map[string][]domain.Turn)}
}

func key(userID, conversationID string) string {
	return userID + "/" + conversationID
}

func (m *Memory) Turns(ctx context.Context, userID, conversationID string) ([]domain.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.turns[key(userID, conversationID)]
	out := make([]domain.Turn, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *Memory) Append(ctx context.Context, userID, conversationID string, turns ...domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(userID, conversationID)
	m.turns[k] = append(m.turns[k], turns...)
	return nil
}
