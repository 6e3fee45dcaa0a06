package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/synaptiq/model-gateway/internal/domain"
)

func TestMemory_TurnsEmptyForUnknownConversation(t *testing.T) {
	m := NewMemory()

	turns, err := m.Turns(context.Background(), "user-1", "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("turns = %v, want empty", turns)
	}
}

func TestMemory_AppendPreservesOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	if err := m.Append(ctx, "user-1", "conv-1",
		domain.Turn{Role: "user", Content: "hi", Timestamp: now},
		domain.Turn{Role: "assistant", Content: "hello", Timestamp: now},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Append(ctx, "user-1", "conv-1", domain.Turn{Role: "user", Content: "bye", Timestamp: now}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := m.Turns(ctx, "user-1", "conv-1")
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("len = %d, want 3", len(turns))
	}
	if turns[0].Content != "hi" || turns[1].Content != "hello" || turns[2].Content != "bye" {
		t.Errorf("order wrong: %+v", turns)
	}
}

func TestMemory_ConversationsIsolatedByUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Append(ctx, "user-1", "conv-1", domain.Turn{Role: "user", Content: "mine"})
	m.Append(ctx, "user-2", "conv-1", domain.Turn{Role: "user", Content: "theirs"})

	turns, _ := m.Turns(ctx, "user-1", "conv-1")
	if len(turns) != 1 || turns[0].Content != "mine" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestMemory_TurnsReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Append(ctx, "user-1", "conv-1", domain.Turn{Role: "user", Content: "hi"})

	turns, _ := m.Turns(ctx, "user-1", "conv-1")
	turns[0].Content = "mutated"

	again, _ := m.Turns(ctx, "user-1", "conv-1")
	if again[0].Content != "hi" {
		t.Error("Turns exposed internal state")
	}
}
