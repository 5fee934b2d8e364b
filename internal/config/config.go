package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                  int      `env:"PORT" envDefault:"8080"`
	DatabaseURL           string   `env:"DATABASE_URL,required"`
	RedisURL              string   `env:"REDIS_URL,required"`
	LogLevel              string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins        []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	CreateRateLimitPerMin int      `env:"CREATE_RATE_LIMIT_PER_MIN" envDefault:"10"`
	EventsPerSecond       int      `env:"EVENTS_PER_SECOND" envDefault:"20"`
	RevealDelayMillis     int      `env:"REVEAL_DELAY_MS" envDefault:"1500"`
	LobbyHostGraceSeconds int      `env:"LOBBY_HOST_GRACE_SECONDS" envDefault:"120"`
}

func (c *Config) RevealDelay() time.Duration {
	return time.Duration(c.RevealDelayMillis) * time.Millisecond
}

func (c *Config) LobbyHostGrace() time.Duration {
	return time.Duration(c.LobbyHostGraceSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// OriginAllowed reports whether a websocket upgrade from origin may proceed.
// An empty allow list accepts every origin.
func (c *Config) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func (c *Config) Validate(isProduction bool) error {
	if c.CreateRateLimitPerMin <= 0 {
		return fmt.Errorf("CREATE_RATE_LIMIT_PER_MIN must be positive")
	}
	if c.EventsPerSecond <= 0 {
		return fmt.Errorf("EVENTS_PER_SECOND must be positive")
	}
	if c.RevealDelayMillis < 0 {
		return fmt.Errorf("REVEAL_DELAY_MS must not be negative")
	}
	if c.LobbyHostGraceSeconds <= 0 {
		return fmt.Errorf("LOBBY_HOST_GRACE_SECONDS must be positive")
	}

	if isProduction {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if len(c.AllowedOrigins) == 0 {
			log.Warn().Msg("ALLOWED_ORIGINS is empty in production: websocket upgrades accepted from any origin")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
