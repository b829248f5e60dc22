// Package scene loads gameplay scenes from JSON files.
package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/arena"
)

// File is the on-disk form of a scene.
type File struct {
	Name        string       `json:"name"`
	SpawnPoints []SpawnPoint `json:"spawn_points"`
}

// SpawnPoint is the on-disk form of arena.SpawnPoint.
type SpawnPoint struct {
	Position [3]float64 `json:"position"`
	Yaw      float64    `json:"yaw"`
	Pitch    float64    `json:"pitch"`
}

// Parse decodes a scene file.
func Parse(data []byte) (File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse scene: %w", err)
	}
	return f, nil
}

// ReadFile reads and decodes the scene file at path.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read scene: %w", err)
	}
	return Parse(data)
}

// ArenaSpawnPoints converts the spawn points of f.
func (f File) ArenaSpawnPoints() []arena.SpawnPoint {
	out := make([]arena.SpawnPoint, len(f.SpawnPoints))
	for i, p := range f.SpawnPoints {
		out[i] = arena.SpawnPoint{
			Position: mgl64.Vec3(p.Position),
			Rotation: cube.Rotation{p.Yaw, p.Pitch},
		}
	}
	return out
}

// Loader implements arena.SceneLoader for a single gameplay scene.
// Loading the gameplay scene into a host installs its spawn points.
type Loader struct {
	scene  File
	logger *slog.Logger

	mu       sync.Mutex
	gameplay bool
	menu     bool
}

// NewLoader creates a loader for f, starting in the menu.
func NewLoader(f File, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{scene: f, logger: logger, menu: true}
}

// LoadGameplay implements arena.SceneLoader.
func (l *Loader) LoadGameplay(ctx context.Context, m *arena.Manager) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m != nil {
		m.SetSpawnPoints(l.scene.ArenaSpawnPoints())
	}

	l.mu.Lock()
	l.gameplay, l.menu = true, false
	l.mu.Unlock()

	l.logger.Info("scene: gameplay loaded",
		"scene", l.scene.Name,
		"spawn_points", len(l.scene.SpawnPoints),
		"host", m != nil)
	return nil
}

// UnloadGameplay implements arena.SceneLoader.
func (l *Loader) UnloadGameplay(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gameplay {
		l.gameplay = false
		l.logger.Info("scene: gameplay unloaded", "scene", l.scene.Name)
	}
	return nil
}

// LoadMenu implements arena.SceneLoader.
func (l *Loader) LoadMenu(context.Context) error {
	l.mu.Lock()
	l.menu = true
	l.mu.Unlock()
	return nil
}

// Gameplay reports whether the gameplay scene is loaded.
func (l *Loader) Gameplay() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gameplay
}

// Menu reports whether the menu scene is loaded.
func (l *Loader) Menu() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.menu
}
