package scheduler

import (
	"context"
	"sync"
	"time"

	"bosun/internal/config"
	"bosun/internal/models"
	"bosun/internal/prompt"
	"bosun/internal/store"
	"bosun/pkg/logging"
)

const (
	defaultInterval       = 1 * time.Second
	defaultCooldown       = 20 * time.Second
	defaultGatewayTimeout = 10 * time.Second
)

// PromptStore is the slice of the queue store the scheduler needs.
type PromptStore interface {
	DequeueNext(ctx context.Context, streamKey string) (*models.QueueEntry, error)
	QueueLength(ctx context.Context, streamKey string) (int64, error)
	SetCurrent(ctx context.Context, p models.Prompt) error
	GetCurrent(ctx context.Context, streamKey string) (*models.CurrentPrompt, error)
}

// GatewayClient applies a prompt to a stream's generation gateway.
type GatewayClient interface {
	Apply(ctx context.Context, promptText, streamKey, gatewayHost string) error
}

// NotificationSink fans out state-change events to viewer connections.
type NotificationSink interface {
	Broadcast(msg models.WsMessage)
}

// Metrics receives scheduler observability callbacks. Implementations must
// tolerate being called from the scheduler goroutine.
type Metrics interface {
	PromptPromoted(streamKey string)
	GatewayFailure(streamKey string)
	StreamFailure(streamKey string, connection bool)
	ObserveQueueLength(streamKey string, length int64)
}

// NopMetrics discards all scheduler metrics.
type NopMetrics struct{}

func (NopMetrics) PromptPromoted(string)            {}
func (NopMetrics) GatewayFailure(string)            {}
func (NopMetrics) StreamFailure(string, bool)       {}
func (NopMetrics) ObserveQueueLength(string, int64) {}

// Config holds configuration for the scheduler loop
type Config struct {
	Streams        []config.Stream
	MinDuration    time.Duration
	Interval       time.Duration // tick period (default: 1s)
	Cooldown       time.Duration // per-stream pause after a failure (default: 20s)
	GatewayTimeout time.Duration
	Store          PromptStore
	Gateway        GatewayClient
	Sink           NotificationSink
	Metrics        Metrics
	Logger         logging.Logger
}

// Scheduler advances each configured stream's current prompt: once the
// current prompt has been live for at least MinDuration, the next queued
// prompt is promoted, delivered to the gateway and announced to viewers.
// Each stream carries its own failure cooldown so a broken dependency on
// one stream cannot hot-loop or stall the others.
type Scheduler struct {
	streams        []config.Stream
	minDuration    time.Duration
	interval       time.Duration
	cooldown       time.Duration
	gatewayTimeout time.Duration

	store   PromptStore
	gateway GatewayClient
	sink    NotificationSink
	metrics Metrics
	logger  logging.Logger

	// lastFailure tracks the most recent per-stream failure. Only the run
	// loop touches it; lost on restart, which is fine since it only
	// throttles retries.
	lastFailure map[string]time.Time

	now    func() time.Time
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler from config, applying defaults for unset timings.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = defaultCooldown
	}
	gatewayTimeout := cfg.GatewayTimeout
	if gatewayTimeout == 0 {
		gatewayTimeout = defaultGatewayTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopMetrics{}
	}

	return &Scheduler{
		streams:        cfg.Streams,
		minDuration:    cfg.MinDuration,
		interval:       interval,
		cooldown:       cooldown,
		gatewayTimeout: gatewayTimeout,
		store:          cfg.Store,
		gateway:        cfg.Gateway,
		sink:           cfg.Sink,
		metrics:        metrics,
		logger:         cfg.Logger,
		lastFailure:    make(map[string]time.Time),
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the background promotion loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("Prompt scheduler started")
}

// Stop gracefully stops the loop, waiting for any in-flight tick. Outstanding
// gateway calls are bounded by the per-call timeout.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Prompt scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Tick processes every configured stream once. Streams are handled
// sequentially; a failure in one stream is recorded and never propagates
// to the others or out of the loop.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, stream := range s.streams {
		if last, ok := s.lastFailure[stream.Key]; ok && s.now().Sub(last) < s.cooldown {
			continue
		}

		updated, err := s.processStream(ctx, stream)
		if err != nil {
			if store.IsConnectionError(err) {
				s.logger.WithError(err).WithField("stream_key", stream.Key).Warn("Store connection issue, cooling down stream")
			} else {
				s.logger.WithError(err).WithField("stream_key", stream.Key).Error("Stream processing failed, cooling down stream")
			}
			s.metrics.StreamFailure(stream.Key, store.IsConnectionError(err))
			s.lastFailure[stream.Key] = s.now()
			continue
		}

		delete(s.lastFailure, stream.Key)
		if updated {
			s.logger.WithField("stream_key", stream.Key).Info("Prompt updated for stream")
		}
	}
}

// processStream runs one promotion check for one stream. Returns whether a
// prompt was promoted. Gateway delivery failures are handled locally: the
// promotion stands and the notification still fires; only store errors
// bubble up to the cooldown boundary.
func (s *Scheduler) processStream(ctx context.Context, stream config.Stream) (bool, error) {
	current, err := s.store.GetCurrent(ctx, stream.Key)
	if err != nil {
		return false, err
	}

	// Absent current counts as stale so a fresh stream starts immediately.
	if current != nil && s.now().Sub(current.StartedAt) < s.minDuration {
		return false, nil
	}

	entry, err := s.store.DequeueNext(ctx, stream.Key)
	if err != nil {
		return false, err
	}
	if entry == nil {
		// Empty queue: the current prompt stays active until something is
		// queued, rather than flapping back to a no-prompt state.
		return false, nil
	}

	next := entry.Prompt

	// The current slot stores the display form: inline parameter tokens are
	// stripped there but kept in the content handed to the gateway.
	display := next
	display.Content, _ = prompt.ParseParams(next.Content)
	if err := s.store.SetCurrent(ctx, display); err != nil {
		return false, err
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	if err := s.gateway.Apply(gatewayCtx, next.Content, stream.Key, stream.GatewayHost); err != nil {
		// The promotion is not rolled back: the queue must drain at a
		// predictable cadence even when the gateway is down.
		s.logger.WithError(err).WithField("stream_key", stream.Key).Error("Failed to apply prompt to stream")
		s.metrics.GatewayFailure(stream.Key)
	}
	cancel()

	newCurrent, err := s.store.GetCurrent(ctx, stream.Key)
	if err != nil {
		return true, err
	}

	if newCurrent != nil {
		queueLength, err := s.store.QueueLength(ctx, stream.Key)
		if err != nil {
			return true, err
		}

		s.sink.Broadcast(models.WsMessage{
			Type: models.MessageTypeCurrentPrompt,
			Payload: models.CurrentPromptPayload{
				Prompt:      newCurrent,
				StreamKey:   stream.Key,
				QueueLength: queueLength,
			},
		})

		s.metrics.PromptPromoted(stream.Key)
		s.metrics.ObserveQueueLength(stream.Key, queueLength)
		s.logger.WithFields(logging.Fields{
			"stream_key":   stream.Key,
			"queue_length": queueLength,
		}).Info("Current prompt changed")
	}

	return true, nil
}
