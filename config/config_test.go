package config

import (
	"testing"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvSet_Defaults(t *testing.T) {
	cfg, err := FromEnvSet(env.EnvSet{})
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, int64(65536), cfg.MaxMessageSize)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, ":8787", cfg.Addr())

	origins, allowAll := cfg.Origins()
	assert.True(t, allowAll)
	assert.Empty(t, origins)
}

func TestFromEnvSet_Overrides(t *testing.T) {
	cfg, err := FromEnvSet(env.EnvSet{
		"CHAT_SERVER_PORT":   "9000",
		"LOG_LEVEL":          "DEBUG",
		"HEARTBEAT_INTERVAL": "5s",
		"MAX_MESSAGE_SIZE":   "1024",
		"SHUTDOWN_TIMEOUT":   "1s",
		"ALLOWED_ORIGINS":    "http://localhost:5173/, https://chat.example.com,,http://localhost:5173",
	})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, time.Second, cfg.ShutdownTimeout)

	origins, allowAll := cfg.Origins()
	assert.False(t, allowAll)
	assert.Equal(t, []string{"http://localhost:5173", "https://chat.example.com"}, origins)
}

func TestFromEnvSet_Invalid(t *testing.T) {
	tests := []struct {
		name string
		es   env.EnvSet
	}{
		{name: "port out of range", es: env.EnvSet{"CHAT_SERVER_PORT": "70000"}},
		{name: "port not a number", es: env.EnvSet{"CHAT_SERVER_PORT": "http"}},
		{name: "unknown log level", es: env.EnvSet{"LOG_LEVEL": "verbose"}},
		{name: "zero heartbeat", es: env.EnvSet{"HEARTBEAT_INTERVAL": "0s"}},
		{name: "negative message size", es: env.EnvSet{"MAX_MESSAGE_SIZE": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnvSet(tt.es)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestOrigins_WildcardWins(t *testing.T) {
	cfg := Config{AllowedOrigins: "http://a.test,*"}
	origins, allowAll := cfg.Origins()
	assert.True(t, allowAll)
	assert.Nil(t, origins)
}
