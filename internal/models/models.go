package models

import "time"

// Prompt is a single submitted prompt. Immutable after creation.
type Prompt struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	SubmittedAt time.Time `json:"submitted_at"`
	StreamKey   string    `json:"stream_key"`
}

// QueueEntry wraps a Prompt with its enqueue timestamp.
type QueueEntry struct {
	Prompt  Prompt    `json:"prompt"`
	AddedAt time.Time `json:"added_at"`
}

// CurrentPrompt wraps the prompt currently applied to a stream. At most one
// exists per stream; StartedAt strictly increases across promotions.
type CurrentPrompt struct {
	Prompt    Prompt    `json:"prompt"`
	StartedAt time.Time `json:"started_at"`
}

// RecentPromptItem is the trimmed view of a queue entry sent to viewers.
type RecentPromptItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// WebSocket message types
const (
	MessageTypeCurrentPrompt = "CurrentPrompt"
	MessageTypeRecentPrompts = "RecentPromptsUpdate"
	MessageTypeInitial       = "initial"
)

// WsMessage is the envelope for messages pushed to viewer connections.
type WsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// CurrentPromptPayload carries a current-prompt change for one stream.
// Prompt is nil when the slot was cleared.
type CurrentPromptPayload struct {
	Prompt      *CurrentPrompt `json:"prompt"`
	StreamKey   string         `json:"stream_key"`
	QueueLength int64          `json:"queue_length"`
}

// RecentPromptsPayload carries the recent-history update for one stream.
type RecentPromptsPayload struct {
	RecentPrompts []RecentPromptItem `json:"recent_prompts"`
	StreamKey     string             `json:"stream_key"`
}

// InitialStatePayload is sent once when a viewer connection is established.
type InitialStatePayload struct {
	CurrentPrompt *CurrentPrompt     `json:"current_prompt"`
	RecentPrompts []RecentPromptItem `json:"recent_prompts"`
	StreamKey     string             `json:"stream_key"`
}

// SubmitPromptRequest is the body of POST /api/prompts.
type SubmitPromptRequest struct {
	Text      string `json:"text" binding:"required"`
	StreamKey string `json:"streamKey" binding:"required"`
}

// SubmitPromptResponse is returned after a successful submission.
type SubmitPromptResponse struct {
	ID            string `json:"id"`
	Message       string `json:"message"`
	QueuePosition int64  `json:"queue_position"`
}

// PromptStateResponse is returned by GET /api/prompts.
type PromptStateResponse struct {
	CurrentPrompt *CurrentPrompt     `json:"current_prompt"`
	RecentPrompts []RecentPromptItem `json:"recent_prompts"`
	StreamKey     string             `json:"stream_key"`
}

// RecentItems converts queue entries into the viewer-facing shape.
func RecentItems(entries []QueueEntry) []RecentPromptItem {
	items := make([]RecentPromptItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, RecentPromptItem{
			ID:        entry.Prompt.ID,
			Text:      entry.Prompt.Content,
			Timestamp: entry.AddedAt.UnixMilli(),
		})
	}
	return items
}
