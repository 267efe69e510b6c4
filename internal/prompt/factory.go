package prompt

import (
	"time"

	"github.com/google/uuid"

	"bosun/internal/models"
)

// New stamps submitted text with an identity, timestamp and target stream.
// Content validation (non-empty text, known stream key) is the caller's job.
func New(content, streamKey string) models.Prompt {
	return models.Prompt{
		ID:          uuid.New().String(),
		Content:     content,
		SubmittedAt: time.Now().UTC(),
		StreamKey:   streamKey,
	}
}
