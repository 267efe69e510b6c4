package config

import (
	"fmt"
	"time"

	pkgconfig "bosun/pkg/config"
)

// Stream pairs a stream key with the gateway host that serves it.
type Stream struct {
	Key         string
	GatewayHost string
}

// Config holds the process-lifetime service configuration.
type Config struct {
	RedisURL          string
	ServerPort        string
	PromptMinDuration time.Duration
	Streams           []Stream
	StreamAPIUser     string
	StreamAPIPassword string
	ServiceToken      string
}

// Load reads configuration from the environment. The stream key list and
// gateway host list must be equal length; they are correlated by position.
func Load() (Config, error) {
	streamKeys := pkgconfig.GetEnvList("MULTIPLAYER_STREAM_KEY", []string{"default-stream"})
	gatewayHosts := pkgconfig.GetEnvList("GATEWAY_HOST", nil)

	if len(gatewayHosts) == 0 {
		return Config{}, fmt.Errorf("GATEWAY_HOST environment variable is required")
	}
	if len(gatewayHosts) != len(streamKeys) {
		return Config{}, fmt.Errorf("number of gateway hosts (%d) must match number of stream keys (%d)",
			len(gatewayHosts), len(streamKeys))
	}

	streams := make([]Stream, len(streamKeys))
	for i, key := range streamKeys {
		streams[i] = Stream{Key: key, GatewayHost: gatewayHosts[i]}
	}

	cfg := Config{
		RedisURL:          pkgconfig.GetEnv("REDIS_URL", "redis://localhost:6379"),
		ServerPort:        pkgconfig.GetEnv("SERVER_PORT", "8080"),
		PromptMinDuration: pkgconfig.GetEnvDurationSecs("PROMPT_MIN_DURATION_SECS", 10*time.Second),
		Streams:           streams,
		StreamAPIUser:     pkgconfig.RequireEnv("STREAM_STATUS_ENDPOINT_USER"),
		StreamAPIPassword: pkgconfig.RequireEnv("STREAM_STATUS_ENDPOINT_PASSWORD"),
		ServiceToken:      pkgconfig.GetEnv("SERVICE_TOKEN", ""),
	}

	return cfg, nil
}

// HasStream reports whether the given key is a configured stream.
func (c Config) HasStream(key string) bool {
	for _, s := range c.Streams {
		if s.Key == key {
			return true
		}
	}
	return false
}
