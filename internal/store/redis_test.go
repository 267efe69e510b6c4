package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"bosun/internal/models"
	"bosun/pkg/logging"
)

func newPromptStore(t *testing.T) (*PromptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPromptStore(client, logging.NewLogger()), mr
}

func testPrompt(i int, streamKey string) models.Prompt {
	return models.Prompt{
		ID:          fmt.Sprintf("prompt-%d", i),
		Content:     fmt.Sprintf("scene number %d", i),
		SubmittedAt: time.Now().UTC(),
		StreamKey:   streamKey,
	}
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	store, _ := newPromptStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		length, err := store.Enqueue(ctx, testPrompt(i, "studio-1"))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if length != int64(i) {
			t.Fatalf("expected queue length %d, got %d", i, length)
		}
	}

	for i := 1; i <= 3; i++ {
		entry, err := store.DequeueNext(ctx, "studio-1")
		if err != nil {
			t.Fatalf("DequeueNext: %v", err)
		}
		if entry == nil {
			t.Fatalf("expected entry %d, got nil", i)
		}
		if entry.Prompt.ID != fmt.Sprintf("prompt-%d", i) {
			t.Fatalf("expected FIFO order, got %s at position %d", entry.Prompt.ID, i)
		}
	}

	entry, err := store.DequeueNext(ctx, "studio-1")
	if err != nil {
		t.Fatalf("DequeueNext on empty queue: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected empty queue, got %+v", entry)
	}
}

func TestQueueIsolatedPerStream(t *testing.T) {
	store, _ := newPromptStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, testPrompt(1, "studio-1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, testPrompt(2, "studio-2")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	entry, err := store.DequeueNext(ctx, "studio-2")
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}
	if entry.Prompt.ID != "prompt-2" {
		t.Fatalf("expected studio-2 entry, got %s", entry.Prompt.ID)
	}

	length, err := store.QueueLength(ctx, "studio-1")
	if err != nil {
		t.Fatalf("QueueLength: %v", err)
	}
	if length != 1 {
		t.Fatalf("expected studio-1 untouched, got length %d", length)
	}
}

func TestQueueCapDropsOldest(t *testing.T) {
	store, _ := newPromptStore(t)
	ctx := context.Background()

	for i := 1; i <= maxQueueSize+10; i++ {
		if _, err := store.Enqueue(ctx, testPrompt(i, "studio-1")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	length, err := store.QueueLength(ctx, "studio-1")
	if err != nil {
		t.Fatalf("QueueLength: %v", err)
	}
	if length != maxQueueSize {
		t.Fatalf("expected queue capped at %d, got %d", maxQueueSize, length)
	}

	// The oldest 10 were silently dropped; the head is now prompt-11.
	entry, err := store.DequeueNext(ctx, "studio-1")
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}
	if entry.Prompt.ID != "prompt-11" {
		t.Fatalf("expected prompt-11 at head after overflow, got %s", entry.Prompt.ID)
	}
}

func TestRecentHistoryBoundedMostRecentFirst(t *testing.T) {
	store, _ := newPromptStore(t)
	ctx := context.Background()

	for i := 1; i <= 60; i++ {
		if _, err := store.Enqueue(ctx, testPrompt(i, "studio-1")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, "studio-1", 100)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != maxRecentPrompts {
		t.Fatalf("expected %d recent entries, got %d", maxRecentPrompts, len(recent))
	}
	if recent[0].Prompt.ID != "prompt-60" {
		t.Fatalf("expected most recent first, got %s", recent[0].Prompt.ID)
	}
	if recent[len(recent)-1].Prompt.ID != "prompt-11" {
		t.Fatalf("expected prompt-11 last, got %s", recent[len(recent)-1].Prompt.ID)
	}
}

func TestGetRecentHonorsLimit(t *testing.T) {
	store, _ := newPromptStore(t)
	ctx := context.Background()

	for i := 1; i <= 30; i++ {
		if _, err := store.Enqueue(ctx, testPrompt(i, "studio-1")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, "studio-1", 20)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(recent))
	}
}

func TestGetRecentSkipsCorruptEntries(t *testing.T) {
	store, mr := newPromptStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, testPrompt(1, "studio-1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	mr.Lpush("recent_prompts:studio-1", "not-json")

	recent, err := store.GetRecent(ctx, "studio-1", 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected corrupt entry skipped, got %d entries", len(recent))
	}
}

func TestCurrentPromptLifecycle(t *testing.T) {
	store, _ := newPromptStore(t)
	ctx := context.Background()

	current, err := store.GetCurrent(ctx, "studio-1")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current != nil {
		t.Fatalf("expected no current prompt initially, got %+v", current)
	}

	p := testPrompt(1, "studio-1")
	if err := store.SetCurrent(ctx, p); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}

	current, err = store.GetCurrent(ctx, "studio-1")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current == nil || current.Prompt.ID != p.ID {
		t.Fatalf("expected current prompt %s, got %+v", p.ID, current)
	}
	if current.StartedAt.IsZero() {
		t.Fatal("expected started_at stamped")
	}

	first := current.StartedAt
	time.Sleep(2 * time.Millisecond)
	if err := store.SetCurrent(ctx, testPrompt(2, "studio-1")); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	current, err = store.GetCurrent(ctx, "studio-1")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current.Prompt.ID != "prompt-2" {
		t.Fatalf("expected slot overwritten, got %s", current.Prompt.ID)
	}
	if !current.StartedAt.After(first) {
		t.Fatalf("expected started_at to increase, got %v then %v", first, current.StartedAt)
	}

	if err := store.ClearCurrent(ctx, "studio-1"); err != nil {
		t.Fatalf("ClearCurrent: %v", err)
	}
	current, err = store.GetCurrent(ctx, "studio-1")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if current != nil {
		t.Fatalf("expected cleared slot, got %+v", current)
	}
}

func TestOperationsFailWhenRedisDown(t *testing.T) {
	store, mr := newPromptStore(t)
	ctx := context.Background()
	mr.Close()

	if _, err := store.Enqueue(ctx, testPrompt(1, "studio-1")); err == nil {
		t.Fatal("expected Enqueue to fail when redis is unavailable")
	}
	if _, err := store.GetCurrent(ctx, "studio-1"); err == nil {
		t.Fatal("expected GetCurrent to fail when redis is unavailable")
	}
	if _, err := store.DequeueNext(ctx, "studio-1"); err == nil {
		t.Fatal("expected DequeueNext to fail when redis is unavailable")
	}
}

func TestIsConnectionError(t *testing.T) {
	if IsConnectionError(nil) {
		t.Fatal("nil is not a connection error")
	}
	if IsConnectionError(errors.New("deserialize queue entry: invalid character")) {
		t.Fatal("decode failure is not a connection error")
	}
	for _, msg := range []string{
		"dial tcp 127.0.0.1:6379: connection refused",
		"write: broken pipe",
		"read tcp: i/o timeout",
		"unexpected EOF",
	} {
		if !IsConnectionError(errors.New(msg)) {
			t.Fatalf("expected %q to classify as connection error", msg)
		}
	}
}
