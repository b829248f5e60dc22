package arena

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// GameResources is the immutable per-session configuration of a game.
// Values are loaded once when a server or client world is built.
type GameResources struct {
	// DespawnTicks is how many ticks a ghost may go unreported before the
	// client drops it.
	DespawnTicks uint32 `env:"ARENA_DESPAWN_TICKS" envDefault:"30"`

	// PolledEventsTicks is how many ticks a server event stays in snapshots.
	PolledEventsTicks uint32 `env:"ARENA_POLLED_EVENTS_TICKS" envDefault:"30"`

	// RespawnTime is the respawn delay in seconds.
	RespawnTime float64 `env:"ARENA_RESPAWN_TIME" envDefault:"4"`

	// SpawnPointBlockRadius keeps characters from spawning within this
	// distance of another character.
	SpawnPointBlockRadius float64 `env:"ARENA_SPAWN_BLOCK_RADIUS" envDefault:"1"`

	PlayerGhost    Template `env:"ARENA_PLAYER_TEMPLATE" envDefault:"player"`
	CharacterGhost Template `env:"ARENA_CHARACTER_TEMPLATE" envDefault:"character"`
}

// DefaultGameResources returns the built-in configuration.
func DefaultGameResources() GameResources {
	return GameResources{
		DespawnTicks:          30,
		PolledEventsTicks:     30,
		RespawnTime:           4,
		SpawnPointBlockRadius: 1,
		PlayerGhost:           PlayerTemplate,
		CharacterGhost:        CharacterTemplate,
	}
}

// LoadGameResources reads GameResources from the environment, falling back
// to the defaults for unset variables.
func LoadGameResources() (GameResources, error) {
	var res GameResources
	if err := env.Parse(&res); err != nil {
		return GameResources{}, fmt.Errorf("arena: parse game resources: %w", err)
	}
	if err := res.Validate(); err != nil {
		return GameResources{}, err
	}
	return res, nil
}

// Validate checks the configuration for values the game cannot run with.
func (r GameResources) Validate() error {
	switch {
	case r.RespawnTime < 0:
		return fmt.Errorf("arena: respawn time must not be negative, got %v", r.RespawnTime)
	case r.SpawnPointBlockRadius < 0:
		return fmt.Errorf("arena: spawn block radius must not be negative, got %v", r.SpawnPointBlockRadius)
	case r.PlayerGhost == "" || r.CharacterGhost == "":
		return fmt.Errorf("arena: player and character templates are required")
	}
	return nil
}

// RespawnDelay returns RespawnTime as a duration.
func (r GameResources) RespawnDelay() time.Duration {
	return time.Duration(r.RespawnTime * float64(time.Second))
}
