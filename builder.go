package arena

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Builder configures a server Manager before initialization.
// Use NewBuilder() to create a builder and chain configuration methods.
type Builder struct {
	bundles     []func(*Manager) *Bundle
	resources   GameResources
	logger      *slog.Logger
	tickRate    time.Duration
	rng         *rand.Rand
	templates   map[Template]TemplateFunc
	spawnPoints []SpawnPoint
	occupancy   OccupancyChecker
	noOccupancy bool
	replicator  Replicator
}

// NewBuilder creates a new builder with the default game resources.
func NewBuilder() *Builder {
	return &Builder{
		resources: DefaultGameResources(),
		tickRate:  DefaultTickRate,
		templates: make(map[Template]TemplateFunc),
	}
}

// Bundle adds a bundle to the builder.
// Bundle systems run after the built-in systems of the same stage.
func (b *Builder) Bundle(callback func(*Manager) *Bundle) *Builder {
	b.bundles = append(b.bundles, callback)
	return b
}

// Resources sets the game resources.
func (b *Builder) Resources(res GameResources) *Builder {
	b.resources = res
	return b
}

// Logger sets the logger. Defaults to slog.Default().
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// TickRate sets the fixed simulation step.
func (b *Builder) TickRate(d time.Duration) *Builder {
	b.tickRate = d
	return b
}

// Rand sets the random source used for spawn selection.
// Defaults to the process-wide source.
func (b *Builder) Rand(r *rand.Rand) *Builder {
	b.rng = r
	return b
}

// Template registers a template in addition to the defaults.
func (b *Builder) Template(name Template, fn TemplateFunc) *Builder {
	b.templates[name] = fn
	return b
}

// SpawnPoints sets the initial spawn points. Scene loading may replace them.
func (b *Builder) SpawnPoints(points ...SpawnPoint) *Builder {
	b.spawnPoints = append(b.spawnPoints, points...)
	return b
}

// Occupancy sets the checker used to reject blocked spawn points.
// By default spawn points are checked against live characters.
func (b *Builder) Occupancy(o OccupancyChecker) *Builder {
	b.occupancy = o
	b.noOccupancy = o == nil
	return b
}

// Replicator sets where snapshots are delivered.
func (b *Builder) Replicator(r Replicator) *Builder {
	b.replicator = r
	return b
}

// Build creates the Manager. The scheduler is not started; call
// Manager.Start or drive it with Manager.Tick.
func (b *Builder) Build() (*Manager, error) {
	if err := b.resources.Validate(); err != nil {
		return nil, err
	}

	m := newManager(b.resources, b.logger, b.tickRate)

	for name, fn := range b.templates {
		m.templates.Register(name, fn)
	}
	for _, name := range []Template{b.resources.PlayerGhost, b.resources.CharacterGhost} {
		if !m.templates.Has(name) {
			return nil, fmt.Errorf("arena: template %q is not registered", name)
		}
	}

	if b.rng != nil {
		m.rng = b.rng
	}
	switch {
	case b.occupancy != nil:
		m.allocator.Occupancy = b.occupancy
	case b.noOccupancy:
		m.allocator.Occupancy = nil
	}
	if len(b.spawnPoints) > 0 {
		m.spawnPoints.set(b.spawnPoints)
	}
	m.replicator = b.replicator

	var hooks []func(*Manager)
	core := m.coreBundle()
	core.register(m.scheduler)

	for _, f := range b.bundles {
		bund := f(m)
		m.bundles = append(m.bundles, bund)
		bund.register(m.scheduler)
		hooks = append(hooks, bund.postInitHooks...)
	}

	for _, hook := range hooks {
		hook(m)
	}

	return m, nil
}
