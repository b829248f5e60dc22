package arena

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
)

// ConnectionID is the transport-assigned index of a network connection.
// ID 0 is reserved for the server itself and never names a client.
type ConnectionID int

// NetworkID marks a connection entity recognised by the transport.
type NetworkID struct {
	ID ConnectionID
}

// InGame marks a connection whose join request has been accepted.
// Ghosts are only replicated to connections carrying it.
type InGame struct{}

// JoinedClient records the avatar created for a connection.
type JoinedClient struct {
	Player Entity
}

func (c *JoinedClient) remapEntities(resolve func(Entity) Entity) {
	c.Player = resolve(c.Player)
}

// LinkedEntities lists entities destroyed together with their owner.
type LinkedEntities struct {
	Entities []Entity
}

func (c *LinkedEntities) remapEntities(resolve func(Entity) Entity) {
	for i, e := range c.Entities {
		c.Entities[i] = resolve(e)
	}
}

// PendingJoin is one inbound join request waiting for the join system.
type PendingJoin struct {
	// Source is the connection entity the request arrived on.
	Source      Entity
	PlayerName  string
	IsSpectator bool
}

// PendingCharacterSpawn asks the spawner to create a character for a connection.
type PendingCharacterSpawn struct {
	// Client is the connection entity that will own the character.
	Client Entity
	// Delay is the remaining wait in seconds. Zero or negative means ready.
	Delay float64
}

func (c *PendingCharacterSpawn) remapEntities(resolve func(Entity) Entity) {
	c.Client = resolve(c.Client)
}

// Avatar is the session-scoped player object of a connection.
type Avatar struct {
	Name      string
	Spectator bool
}

// Character marks a controllable actor.
type Character struct{}

// Ghost marks an entity replicated to clients.
type Ghost struct {
	Template Template
}

// GhostOwner records the connection that owns a replicated entity.
type GhostOwner struct {
	ID ConnectionID
}

// OwningPlayer links a character back to its avatar.
type OwningPlayer struct {
	Player Entity
}

func (c *OwningPlayer) remapEntities(resolve func(Entity) Entity) {
	c.Player = resolve(c.Player)
}

// Transform is the world placement of an actor.
type Transform struct {
	Position mgl64.Vec3
	Rotation cube.Rotation
}
