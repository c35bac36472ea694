// Package config loads relay settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const DefaultPort = 8787

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

type Config struct {
	Port              int           `env:"CHAT_SERVER_PORT,default=8787" validate:"min=1,max=65535"`
	LogLevel          string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s" validate:"gt=0"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE,default=65536" validate:"gt=0"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS,default=*"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return FromEnvSet(es)
}

func FromEnvSet(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins returns the allowed CORS and WebSocket origins. A "*" entry, or an
// empty list, allows every origin.
func (c Config) Origins() (origins []string, allowAll bool) {
	origins = lo.Uniq(lo.Compact(lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(o), "/")
	})))
	if len(origins) == 0 || lo.Contains(origins, "*") {
		return nil, true
	}
	return origins, false
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
