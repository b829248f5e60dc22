package arena

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
)

// JoinRequest is the join message a client sends once connected.
type JoinRequest struct {
	PlayerName  string `msgpack:"name"`
	IsSpectator bool   `msgpack:"spectator"`
}

// GhostState is the replicated view of one ghost entity.
type GhostState struct {
	ID       Entity        `msgpack:"id"`
	Template Template      `msgpack:"template"`
	Owner    ConnectionID  `msgpack:"owner"`
	Position mgl64.Vec3    `msgpack:"pos"`
	Rotation cube.Rotation `msgpack:"rot"`
}

// Snapshot is the per-tick world state sent to in-game connections.
type Snapshot struct {
	Tick uint64 `msgpack:"tick"`
	// ServerGhostCount is the number of ghosts that exist on the server.
	ServerGhostCount int          `msgpack:"ghost_count"`
	Ghosts           []GhostState `msgpack:"ghosts"`
	Events           []Event      `msgpack:"events,omitempty"`
}

// Replicator delivers snapshots to connections.
type Replicator interface {
	// Replicate sends snap to every connection in recipients.
	// It must not block the tick.
	Replicate(snap Snapshot, recipients []ConnectionID)
}
