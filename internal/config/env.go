// Package config loads command configuration from the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables using its env tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseConfigFromArgs loads defaults from env and then parses flags, so
// flags override the environment.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if err := ParseEnv(cfg); err != nil {
		return err
	}
	if fs == nil {
		return nil
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// Server configures the arena-server command.
type Server struct {
	Addr     string        `env:"ARENA_ADDR" envDefault:":7979"`
	TickRate time.Duration `env:"ARENA_TICK_RATE" envDefault:"50ms"`
	Scene    string        `env:"ARENA_SCENE" envDefault:"scene.json"`
	LogFile  string        `env:"ARENA_LOG_FILE" envDefault:"arena-server.log"`
	Debug    bool          `env:"ARENA_DEBUG"`
}

// Client configures the arena-client command.
type Client struct {
	SettingsDB string        `env:"ARENA_SETTINGS_DB" envDefault:"arena-settings.db"`
	Listen     string        `env:"ARENA_LISTEN" envDefault:"0.0.0.0:7979"`
	TickRate   time.Duration `env:"ARENA_TICK_RATE" envDefault:"50ms"`
	Scene      string        `env:"ARENA_SCENE" envDefault:"scene.json"`
	ThinClient bool          `env:"ARENA_THIN_CLIENT"`
	Spectator  bool          `env:"ARENA_SPECTATOR"`
	LogFile    string        `env:"ARENA_LOG_FILE" envDefault:"arena-client.log"`
	Debug      bool          `env:"ARENA_DEBUG"`
}
