package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	require.NoError(t, d.UnmarshalText([]byte("120")))
	assert.Equal(t, 2*time.Minute, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("-5")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("sk-live-abc")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-live")

	out, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-live")

	assert.Equal(t, "sk-live-abc", s.Value())
	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestSecret_RedactedMarkerDoesNotRoundTrip(t *testing.T) {
	var s Secret
	require.NoError(t, json.Unmarshal([]byte(`"[REDACTED]"`), &s))
	assert.False(t, s.IsSet())

	require.NoError(t, json.Unmarshal([]byte(`"real"`), &s))
	assert.Equal(t, "real", s.Value())
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero shutdown", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"telemetry without service", func(c *Config) {
			c.Observability.EnableTelemetry = true
			c.Observability.ServiceName = ""
		}},
		{"no storage", func(c *Config) { c.Storage.Path = "" }},
		{"llm provider", func(c *Config) { c.LLM.Provider = "cohere" }},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }},
		{"batch size", func(c *Config) { c.Pipeline.BatchSize = 0 }},
		{"cluster size", func(c *Config) { c.Pipeline.MinClusterSize = 0 }},
		{"notify size", func(c *Config) { c.Notifications.MinClusterSize = 0 }},
		{"cooldown", func(c *Config) { c.Notifications.CooldownMinutes = -5 }},
		{"queue driver", func(c *Config) { c.Queue.Driver = "kafka" }},
		{"workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"nats url", func(c *Config) {
			c.Queue.Driver = "nats"
			c.Queue.NATSURL = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
