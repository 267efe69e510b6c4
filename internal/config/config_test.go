package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STREAM_STATUS_ENDPOINT_USER", "user")
	t.Setenv("STREAM_STATUS_ENDPOINT_PASSWORD", "pass")
}

func TestLoadRequiresGatewayHost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEWAY_HOST", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsMismatchedLists(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MULTIPLAYER_STREAM_KEY", "studio-1,studio-2")
	t.Setenv("GATEWAY_HOST", "gw1.example.com")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAlignsStreamsByPosition(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MULTIPLAYER_STREAM_KEY", "studio-1, studio-2")
	t.Setenv("GATEWAY_HOST", "gw1.example.com, gw2.example.com")
	t.Setenv("PROMPT_MIN_DURATION_SECS", "15")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Streams, 2)
	assert.Equal(t, Stream{Key: "studio-1", GatewayHost: "gw1.example.com"}, cfg.Streams[0])
	assert.Equal(t, Stream{Key: "studio-2", GatewayHost: "gw2.example.com"}, cfg.Streams[1])
	assert.Equal(t, 15*time.Second, cfg.PromptMinDuration)
	assert.True(t, cfg.HasStream("studio-2"))
	assert.False(t, cfg.HasStream("unknown"))
}
