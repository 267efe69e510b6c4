package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bosun/internal/pipeline"
	"bosun/internal/prompt"
	"bosun/pkg/clients"
	"bosun/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Client applies prompts to a stream's generation gateway.
type Client struct {
	httpClient *http.Client
	user       string
	password   string
	logger     logging.Logger

	// baseURL overrides the https://{host} prefix, for tests.
	baseURL string
}

// Config represents the configuration for the gateway client
type Config struct {
	User     string
	Password string
	Timeout  time.Duration
	Logger   logging.Logger
}

// NewClient creates a new gateway client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: clients.DefaultTransport(),
		},
		user:     cfg.User,
		password: cfg.Password,
		logger:   cfg.Logger,
	}
}

// Apply parses inline parameters out of the prompt text, builds the pipeline
// request and posts it to the stream's gateway. Exactly one outbound call per
// invocation; any non-2xx response or transport error is returned as a single
// wrapped error. Retry policy belongs to the caller, not here.
func (c *Client) Apply(ctx context.Context, promptText, streamKey, gatewayHost string) error {
	cleaned, params := prompt.ParseParams(promptText)

	c.logger.WithFields(logging.Fields{
		"stream_key": streamKey,
		"quality":    params.Quality,
		"creativity": params.Creativity,
	}).Info("Applying prompt to stream")

	workflow := pipeline.Build(cleaned, params.Quality, params.Creativity)

	body, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline request: %w", err)
	}

	url := c.updateURL(streamKey, gatewayHost)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to apply prompt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if readErr != nil {
			detail = []byte("failed to read error response")
		}
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, detail)
	}

	c.logger.WithField("stream_key", streamKey).Info("Successfully applied prompt to stream")
	return nil
}

func (c *Client) updateURL(streamKey, gatewayHost string) string {
	if c.baseURL != "" {
		return fmt.Sprintf("%s/live/video-to-video/%s/update", c.baseURL, streamKey)
	}
	return fmt.Sprintf("https://%s/live/video-to-video/%s/update", gatewayHost, streamKey)
}
