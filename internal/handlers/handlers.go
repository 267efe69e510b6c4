package handlers

import (
	"math/rand"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bosun/internal/config"
	"bosun/internal/metrics"
	"bosun/internal/models"
	"bosun/internal/prompt"
	"bosun/internal/store"
	"bosun/internal/websocket"
	"bosun/pkg/logging"
)

const recentPromptsLimit = 20

// randomPrompts are served by PUT /api/prompts for streams without viewer
// submissions.
var randomPrompts = []string{
	"A serene landscape with mountains and a lake",
	"A futuristic city with flying cars",
	"A magical forest with glowing mushrooms",
	"An underwater scene with colorful coral reefs",
	"A steampunk workshop with intricate machinery",
	"A cozy cabin in a snowy forest",
	"A vibrant sunset over the ocean",
	"A mystical castle floating in the clouds",
	"A bustling marketplace in an ancient city",
	"A peaceful zen garden with cherry blossoms",
}

// PromptHandlers contains the HTTP handlers for the service
type PromptHandlers struct {
	store   *store.PromptStore
	hub     *websocket.Hub
	cfg     config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewPromptHandlers creates a new handlers instance
func NewPromptHandlers(st *store.PromptStore, hub *websocket.Hub, cfg config.Config, logger logging.Logger, m *metrics.Metrics) *PromptHandlers {
	return &PromptHandlers{
		store:   st,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// HandleSubmitPrompt accepts a new prompt for a stream's queue
func (h *PromptHandlers) HandleSubmitPrompt(c *gin.Context) {
	var req models.SubmitPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text and streamKey are required"})
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text cannot be empty"})
		return
	}
	if !h.cfg.HasStream(req.StreamKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stream key"})
		return
	}

	h.enqueueAndRespond(c, req.Text, req.StreamKey, "Prompt submitted successfully")
}

// HandleGetPromptState returns the current prompt and recent history
func (h *PromptHandlers) HandleGetPromptState(c *gin.Context) {
	streamKey := c.Query("streamKey")
	if !h.cfg.HasStream(streamKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stream key"})
		return
	}

	ctx := c.Request.Context()
	current, err := h.store.GetCurrent(ctx, streamKey)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get prompt state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	recent, err := h.store.GetRecent(ctx, streamKey, recentPromptsLimit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get recent prompts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, models.PromptStateResponse{
		CurrentPrompt: current,
		RecentPrompts: models.RecentItems(recent),
		StreamKey:     streamKey,
	})
}

// HandleRandomPrompt queues a canned prompt for a stream
func (h *PromptHandlers) HandleRandomPrompt(c *gin.Context) {
	streamKey := c.Query("streamKey")
	if !h.cfg.HasStream(streamKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stream key"})
		return
	}

	text := randomPrompts[rand.Intn(len(randomPrompts))]
	h.enqueueAndRespond(c, text, streamKey, "Random prompt added successfully")
}

// HandleClearCurrent clears a stream's current-prompt slot. Admin only.
func (h *PromptHandlers) HandleClearCurrent(c *gin.Context) {
	streamKey := c.Query("streamKey")
	if !h.cfg.HasStream(streamKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stream key"})
		return
	}

	if err := h.store.ClearCurrent(c.Request.Context(), streamKey); err != nil {
		h.logger.WithError(err).Error("Failed to clear current prompt")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.hub.Broadcast(models.WsMessage{
		Type: models.MessageTypeCurrentPrompt,
		Payload: models.CurrentPromptPayload{
			Prompt:    nil,
			StreamKey: streamKey,
		},
	})

	c.JSON(http.StatusOK, gin.H{"message": "Current prompt cleared"})
}

// HandleWebSocket upgrades a viewer connection subscribed to one stream
func (h *PromptHandlers) HandleWebSocket(c *gin.Context) {
	streamKey := c.Query("streamKey")
	if !h.cfg.HasStream(streamKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid stream key"})
		return
	}

	ctx := c.Request.Context()
	var initial *models.WsMessage
	current, err := h.store.GetCurrent(ctx, streamKey)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to load current prompt for initial state")
	}
	recent, err := h.store.GetRecent(ctx, streamKey, recentPromptsLimit)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to load recent prompts for initial state")
	}
	initial = &models.WsMessage{
		Type: models.MessageTypeInitial,
		Payload: models.InitialStatePayload{
			CurrentPrompt: current,
			RecentPrompts: models.RecentItems(recent),
			StreamKey:     streamKey,
		},
	}

	h.hub.ServeWS(c.Writer, c.Request, streamKey, initial)
}

func (h *PromptHandlers) enqueueAndRespond(c *gin.Context, text, streamKey, message string) {
	ctx := c.Request.Context()

	p := prompt.New(text, streamKey)
	queuePosition, err := h.store.Enqueue(ctx, p)
	if err != nil {
		h.logger.WithError(err).Error("Failed to add prompt to queue")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if h.metrics != nil {
		h.metrics.PromptsSubmitted.WithLabelValues(streamKey).Inc()
	}
	h.logger.WithFields(logging.Fields{
		"prompt_id":      p.ID,
		"stream_key":     streamKey,
		"queue_position": queuePosition,
	}).Info("New prompt submitted")

	// Failing to broadcast the history update is not a submission failure.
	if recent, err := h.store.GetRecent(ctx, streamKey, recentPromptsLimit); err != nil {
		h.logger.WithError(err).Warn("Failed to broadcast recent prompts update")
	} else {
		h.hub.Broadcast(models.WsMessage{
			Type: models.MessageTypeRecentPrompts,
			Payload: models.RecentPromptsPayload{
				RecentPrompts: models.RecentItems(recent),
				StreamKey:     streamKey,
			},
		})
	}

	c.JSON(http.StatusOK, models.SubmitPromptResponse{
		ID:            p.ID,
		Message:       message,
		QueuePosition: queuePosition,
	})
}
