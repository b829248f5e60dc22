package arena

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func spawnRow(n int) []SpawnPoint {
	points := make([]SpawnPoint, n)
	for i := range points {
		points[i] = SpawnPoint{Position: mgl64.Vec3{float64(i) * 10, 0, 0}}
	}
	return points
}

type blockedPoints map[mgl64.Vec3]bool

func (b blockedPoints) Occupied(pos mgl64.Vec3, radius float64) bool {
	return b[pos]
}

func TestSpawnAllocatorUniqueWithinBatch(t *testing.T) {
	points := spawnRow(8)
	consumed := NewBitArray(len(points))
	rng := NewRand(1)
	var alloc SpawnAllocator

	seen := make(map[int]bool)
	for i := 0; i < len(points); i++ {
		idx, ok := alloc.Find(points, consumed, rng)
		if !ok {
			t.Fatalf("expected request %d to find a point", i)
		}
		if seen[idx] {
			t.Fatalf("expected unique index, got %d twice", idx)
		}
		seen[idx] = true
	}
	if consumed.Count() != len(points) {
		t.Fatalf("expected %d consumed points, got %d", len(points), consumed.Count())
	}

	if _, ok := alloc.Find(points, consumed, rng); ok {
		t.Fatal("expected no candidate once every point is consumed")
	}
}

func TestSpawnAllocatorNoPoints(t *testing.T) {
	var alloc SpawnAllocator
	if _, ok := alloc.Find(nil, NewBitArray(0), NewRand(1)); ok {
		t.Fatal("expected no candidate without spawn points")
	}
}

func TestSpawnAllocatorSkipsOccupied(t *testing.T) {
	points := spawnRow(3)
	alloc := SpawnAllocator{
		Occupancy:   blockedPoints{points[0].Position: true, points[2].Position: true},
		BlockRadius: 1,
	}

	for seed := uint64(0); seed < 16; seed++ {
		consumed := NewBitArray(len(points))
		idx, ok := alloc.Find(points, consumed, NewRand(seed))
		if !ok || idx != 1 {
			t.Fatalf("seed %d: expected index 1, got %d (%v)", seed, idx, ok)
		}
		if _, ok := alloc.Find(points, consumed, NewRand(seed)); ok {
			t.Fatalf("seed %d: expected no second candidate", seed)
		}
	}
}

func TestSpawnAllocatorCoversEveryStart(t *testing.T) {
	points := spawnRow(4)
	var alloc SpawnAllocator
	starts := make(map[int]bool)
	rng := NewRand(7)
	for i := 0; i < 200; i++ {
		idx, _ := alloc.Find(points, NewBitArray(len(points)), rng)
		starts[idx] = true
	}
	if len(starts) != len(points) {
		t.Fatalf("expected every index to be chosen at some point, got %v", starts)
	}
}

func TestCharacterOccupancy(t *testing.T) {
	w := NewWorld()
	e := w.Create()
	Add(w, e, &Character{})
	Add(w, e, &Transform{Position: mgl64.Vec3{5, 0, 0}})

	occ := CharacterOccupancy{World: w}
	if !occ.Occupied(mgl64.Vec3{5, 0, 0.5}, 1) {
		t.Fatal("expected point next to a character to be occupied")
	}
	if occ.Occupied(mgl64.Vec3{7, 0, 0}, 1) {
		t.Fatal("expected distant point to be free")
	}
}
