package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"bosun/internal/models"
	"bosun/pkg/logging"
)

const (
	promptQueueKeyPrefix   = "prompt_queue:"
	currentPromptKeyPrefix = "current_prompt:"
	recentPromptsKeyPrefix = "recent_prompts:"

	maxQueueSize     = 100
	maxRecentPrompts = 50

	maxRetries = 3
	retryDelay = 100 * time.Millisecond
)

// PromptStore is the durable per-stream queue, current-prompt slot and
// recent-history ring, backed by Redis lists and keys.
type PromptStore struct {
	client goredis.UniversalClient
	logger logging.Logger
}

// NewPromptStore creates a prompt store on top of an established Redis client.
func NewPromptStore(client goredis.UniversalClient, logger logging.Logger) *PromptStore {
	return &PromptStore{
		client: client,
		logger: logger,
	}
}

func queueKey(streamKey string) string {
	return promptQueueKeyPrefix + streamKey
}

func currentKey(streamKey string) string {
	return currentPromptKeyPrefix + streamKey
}

func recentKey(streamKey string) string {
	return recentPromptsKeyPrefix + streamKey
}

// IsConnectionError reports whether an error looks like a transient
// connectivity failure rather than a logic or data error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, goredis.Nil) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}

// executeWithRetry runs op up to maxRetries times, backing off linearly on
// connection-class errors. Non-connection errors fail immediately.
func (s *PromptStore) executeWithRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries || !IsConnectionError(lastErr) {
			return lastErr
		}

		s.logger.WithError(lastErr).WithField("attempt", attempt).Warn("Redis operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

// Enqueue appends a prompt to the tail of its stream's queue, trims the
// queue to the newest maxQueueSize entries, pushes the entry onto the
// recent-history ring (newest first, capped) and returns the queue length.
func (s *PromptStore) Enqueue(ctx context.Context, p models.Prompt) (int64, error) {
	entry := models.QueueEntry{
		Prompt:  p,
		AddedAt: time.Now().UTC(),
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("marshal queue entry: %w", err)
	}

	var length int64
	err = s.executeWithRetry(ctx, func() error {
		pipe := s.client.TxPipeline()
		pipe.RPush(ctx, queueKey(p.StreamKey), entryJSON)
		pipe.LTrim(ctx, queueKey(p.StreamKey), -maxQueueSize, -1)
		pipe.LPush(ctx, recentKey(p.StreamKey), entryJSON)
		pipe.LTrim(ctx, recentKey(p.StreamKey), 0, maxRecentPrompts-1)
		lenCmd := pipe.LLen(ctx, queueKey(p.StreamKey))

		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		length = lenCmd.Val()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return length, nil
}

// DequeueNext atomically removes and returns the head of the stream's queue.
// Returns (nil, nil) when the queue is empty.
func (s *PromptStore) DequeueNext(ctx context.Context, streamKey string) (*models.QueueEntry, error) {
	var entry *models.QueueEntry
	err := s.executeWithRetry(ctx, func() error {
		entryJSON, err := s.client.LPop(ctx, queueKey(streamKey)).Result()
		if errors.Is(err, goredis.Nil) {
			entry = nil
			return nil
		}
		if err != nil {
			return err
		}

		var decoded models.QueueEntry
		if err := json.Unmarshal([]byte(entryJSON), &decoded); err != nil {
			return fmt.Errorf("deserialize queue entry: %w", err)
		}
		entry = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// QueueLength returns the number of queued entries for a stream.
func (s *PromptStore) QueueLength(ctx context.Context, streamKey string) (int64, error) {
	var length int64
	err := s.executeWithRetry(ctx, func() error {
		n, err := s.client.LLen(ctx, queueKey(streamKey)).Result()
		if err != nil {
			return err
		}
		length = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return length, nil
}

// SetCurrent overwrites the stream's current-prompt slot, stamping the
// moment the prompt became current.
func (s *PromptStore) SetCurrent(ctx context.Context, p models.Prompt) error {
	current := models.CurrentPrompt{
		Prompt:    p,
		StartedAt: time.Now().UTC(),
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshal current prompt: %w", err)
	}

	return s.executeWithRetry(ctx, func() error {
		return s.client.Set(ctx, currentKey(p.StreamKey), currentJSON, 0).Err()
	})
}

// GetCurrent reads the stream's current prompt. Returns (nil, nil) when no
// prompt has ever been applied.
func (s *PromptStore) GetCurrent(ctx context.Context, streamKey string) (*models.CurrentPrompt, error) {
	var current *models.CurrentPrompt
	err := s.executeWithRetry(ctx, func() error {
		currentJSON, err := s.client.Get(ctx, currentKey(streamKey)).Result()
		if errors.Is(err, goredis.Nil) {
			current = nil
			return nil
		}
		if err != nil {
			return err
		}

		var decoded models.CurrentPrompt
		if err := json.Unmarshal([]byte(currentJSON), &decoded); err != nil {
			return fmt.Errorf("deserialize current prompt: %w", err)
		}
		current = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// ClearCurrent removes the stream's current-prompt slot.
func (s *PromptStore) ClearCurrent(ctx context.Context, streamKey string) error {
	return s.executeWithRetry(ctx, func() error {
		return s.client.Del(ctx, currentKey(streamKey)).Err()
	})
}

// GetRecent returns up to limit recent-history entries, most recent first.
// Entries that fail to decode are skipped rather than failing the read.
func (s *PromptStore) GetRecent(ctx context.Context, streamKey string, limit int64) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.executeWithRetry(ctx, func() error {
		raw, err := s.client.LRange(ctx, recentKey(streamKey), 0, limit-1).Result()
		if err != nil {
			return err
		}

		entries = make([]models.QueueEntry, 0, len(raw))
		for _, item := range raw {
			var entry models.QueueEntry
			if err := json.Unmarshal([]byte(item), &entry); err != nil {
				s.logger.WithError(err).Warn("Failed to parse recent prompt entry")
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
