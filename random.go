package arena

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// lockedSource serialises access to a rand.Source shared by several goroutines.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// sharedRand is the process-wide random source used for spawn selection and
// bot names. Each consuming call advances it once.
var sharedRand = rand.New(&lockedSource{src: rand.NewPCG(newSeed(), newSeed())})

// SharedRand returns the process-wide random source.
func SharedRand() *rand.Rand {
	return sharedRand
}

// NewRand returns a deterministic random source, for tests and replays.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)})
}

func newSeed() uint64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		panic("arena: seed random source: " + err.Error())
	}
	return binary.LittleEndian.Uint64(buf[:])
}
