package arena

import (
	"context"
)

// Providers bridge the client flow with the services around it: session
// matchmaking, world creation and scene loading. The orchestrator depends
// only on these interfaces.

// CreationType selects how StartGame obtains a session.
type CreationType uint8

const (
	// CreateSession hosts a new session.
	CreateSession CreationType = iota
	// JoinByCode joins the session named by the configured session code.
	JoinByCode
	// QuickJoin joins any open session, creating one if none is open.
	QuickJoin
)

// String returns the string representation of the creation type.
func (c CreationType) String() string {
	switch c {
	case CreateSession:
		return "Create"
	case JoinByCode:
		return "JoinByCode"
	case QuickJoin:
		return "QuickJoin"
	default:
		return "Unknown"
	}
}

// SessionService creates and joins sessions.
// Calls are not given a timeout by the orchestrator.
type SessionService interface {
	Create(ctx context.Context) (Session, error)
	JoinByCode(ctx context.Context, code string) (Session, error)
	QuickJoin(ctx context.Context) (Session, error)
}

// Session is a joined session.
type Session interface {
	ID() string
	// Code is the short code other players join with.
	Code() string
	IsHost() bool
	// ListenEndpoint is where the host serves the game. Empty for non-hosts.
	ListenEndpoint() string
	// ConnectEndpoint is where clients connect to.
	ConnectEndpoint() string

	// Leave leaves the session as a member.
	Leave(ctx context.Context) error
	// Delete removes the session for everyone. Only the host may delete.
	Delete(ctx context.Context) error
	// Removed is closed when the session is deleted.
	Removed() <-chan struct{}
}

// ServerWorld is a running authoritative world.
type ServerWorld interface {
	Manager() *Manager
	Close() error
}

// ClientWorld is a running client world.
type ClientWorld interface {
	Clock
	GhostCounter
	Watchdog() *ConnectionWatchdog
	RequestDisconnect() error
	Close() error
}

// Worlds creates server and client worlds.
type Worlds interface {
	// CreateServer starts a server world listening on listen.
	CreateServer(ctx context.Context, listen string) (ServerWorld, error)
	// CreateClient starts a client world that is not yet connected.
	CreateClient(ctx context.Context) (ClientWorld, error)
}

// SceneLoader loads the gameplay and menu scenes.
type SceneLoader interface {
	// LoadGameplay loads the gameplay scene. m is the local server world
	// when hosting and nil otherwise.
	LoadGameplay(ctx context.Context, m *Manager) error
	// UnloadGameplay unloads the gameplay scene. It is a no-op when nothing
	// is loaded.
	UnloadGameplay(ctx context.Context) error
	LoadMenu(ctx context.Context) error
}

// SessionSettings is the settings surface the orchestrator reads.
type SessionSettings interface {
	SessionCode() string
	SetSessionCode(code string) error
}
