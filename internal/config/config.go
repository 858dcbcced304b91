package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"` // empty disables the persistence mirror

	GhostTTL           time.Duration `env:"GHOST_TTL" envDefault:"10s"`
	GhostSweepInterval time.Duration `env:"GHOST_SWEEP_INTERVAL" envDefault:"5s"`
	SessionGCInterval  time.Duration `env:"SESSION_GC_INTERVAL" envDefault:"1h"`
	SessionGCAge       time.Duration `env:"SESSION_GC_AGE" envDefault:"24h"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
