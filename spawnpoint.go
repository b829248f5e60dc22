package arena

import (
	"math/rand/v2"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
)

// SpawnPoint is a location characters may be spawned at.
type SpawnPoint struct {
	Position mgl64.Vec3
	Rotation cube.Rotation
}

// OccupancyChecker reports whether a spawn position is blocked.
type OccupancyChecker interface {
	// Occupied returns true if another actor is within radius of pos.
	Occupied(pos mgl64.Vec3, radius float64) bool
}

// CharacterOccupancy blocks spawn points with a live character nearby.
type CharacterOccupancy struct {
	World *World
}

// Occupied implements OccupancyChecker.
func (o CharacterOccupancy) Occupied(pos mgl64.Vec3, radius float64) bool {
	for _, e := range Query2[Character, Transform](o.World) {
		tr := Get[Transform](o.World, e)
		if tr.Position.Sub(pos).Len() < radius {
			return true
		}
	}
	return false
}

// SpawnAllocator selects unclaimed spawn points for one spawn batch.
type SpawnAllocator struct {
	// Occupancy is optional. When nil every unclaimed point is accepted.
	Occupancy OccupancyChecker
	// BlockRadius is the radius passed to Occupancy.
	BlockRadius float64
}

// Find picks a spawn point index not yet set in consumed and marks it.
//
// The search starts at a uniformly random index and probes len(points)
// candidates linearly, wrapping around. It returns false when no candidate
// qualifies; with no spawn points there is never a candidate.
func (a SpawnAllocator) Find(points []SpawnPoint, consumed *BitArray, rng *rand.Rand) (int, bool) {
	n := len(points)
	if n == 0 {
		return 0, false
	}

	start := rng.IntN(n)
	for k := 0; k < n; k++ {
		idx := (start + k) % n
		if consumed.IsSet(idx) {
			continue
		}
		if a.Occupancy != nil && a.Occupancy.Occupied(points[idx].Position, a.BlockRadius) {
			continue
		}
		consumed.Set(idx)
		return idx, true
	}
	return 0, false
}

// spawnPointSet holds the spawn points supplied by the loaded scene.
// It is written by the scene loader and read by the tick goroutine.
type spawnPointSet struct {
	mu     sync.RWMutex
	points []SpawnPoint
}

func (s *spawnPointSet) set(points []SpawnPoint) {
	cp := make([]SpawnPoint, len(points))
	copy(cp, points)

	s.mu.Lock()
	s.points = cp
	s.mu.Unlock()
}

// snapshot returns the current points. The slice is never mutated after set.
func (s *spawnPointSet) snapshot() []SpawnPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points
}
