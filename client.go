package arena

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// ConnectionState is the transport-level state of a connection.
type ConnectionState uint8

const (
	ConnectionUnknown ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionConnecting:
		return "Connecting"
	case ConnectionConnected:
		return "Connected"
	case ConnectionDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Driver is the client side of the transport.
//
// Implementations must be safe for concurrent use and must not block in
// Connection, ConnectionID or Connect; the client calls them from its tick.
type Driver interface {
	// Connection returns the state of the current connection. The boolean is
	// false when no connection exists.
	Connection() (ConnectionState, bool)
	// Connect starts connecting to endpoint in the background. It is a no-op
	// while a connection exists.
	Connect(endpoint string) error
	// ConnectionID returns the id the server assigned to this client.
	ConnectionID() (ConnectionID, bool)
	// SendJoin sends a join request over the current connection.
	SendJoin(req JoinRequest) error
	// Disconnect closes the current connection. The driver can connect again.
	Disconnect() error
	// Snapshots delivers server snapshots.
	Snapshots() <-chan Snapshot
	// Close releases the driver. It cannot be used afterwards.
	Close() error
}

// ErrNoConnection is returned when an operation needs a live connection.
var ErrNoConnection = errors.New("arena: no connection")

// ClientConfig configures a Client.
type ClientConfig struct {
	Driver    Driver
	Resources GameResources
	Logger    *slog.Logger
	TickRate  time.Duration

	PlayerName string
	Spectator  bool
	// ThinClient marks headless load-test clients; their names get a bot prefix.
	ThinClient bool
	// Rand is used for bot names. Defaults to the process-wide source.
	Rand *rand.Rand
}

// Client is the local client world. It owns the connection watchdog, sends
// the join request once connected and mirrors the replicated ghosts.
type Client struct {
	logger    *slog.Logger
	driver    Driver
	scheduler *Scheduler
	watchdog  *ConnectionWatchdog
	replica   *replica
	join      *joinSender
	closeOnce sync.Once
}

// NewClient creates a client with a stopped tick loop.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = SharedRand()
	}

	c := &Client{
		logger:    logger,
		driver:    cfg.Driver,
		scheduler: NewScheduler("client", cfg.TickRate, logger),
		watchdog:  NewConnectionWatchdog(cfg.Driver, logger),
		replica:   newReplica(cfg.Resources.DespawnTicks),
	}

	name := TruncatePlayerName(cfg.PlayerName)
	if cfg.ThinClient {
		name = BotName(rng, name)
	}
	c.join = &joinSender{
		driver: cfg.Driver,
		logger: logger,
		req:    JoinRequest{PlayerName: name, IsSpectator: cfg.Spectator},
	}

	NewBundle("client").
		Loop("snapshots", RunnableFunc(c.receiveSnapshots), 0, Before).
		Loop("connection-watchdog", c.watchdog, 0, Before).
		Loop("join-sender", c.join, 0, Default).
		Loop("ghost-expiry", RunnableFunc(c.expireGhosts), 0, After).
		register(c.scheduler)

	return c
}

// Start starts the tick loop.
func (c *Client) Start() {
	c.scheduler.Start()
}

// Tick runs one client tick synchronously.
func (c *Client) Tick() {
	c.scheduler.Step(time.Now())
}

// TickNumber returns the number of completed client ticks.
func (c *Client) TickNumber() uint64 {
	return c.scheduler.TickNumber()
}

// WaitTicks implements Clock.
func (c *Client) WaitTicks(ctx context.Context, n int) error {
	return c.scheduler.WaitTicks(ctx, n)
}

// Watchdog returns the connection watchdog.
func (c *Client) Watchdog() *ConnectionWatchdog {
	return c.watchdog
}

// PlayerName returns the name sent with the join request.
func (c *Client) PlayerName() string {
	return c.join.req.PlayerName
}

// GhostCount returns the number of ghosts instantiated locally and the
// number the server reported in its latest snapshot.
func (c *Client) GhostCount() (instantiated, server int) {
	return c.replica.counts()
}

// Ghosts returns the locally known ghosts.
func (c *Client) Ghosts() []GhostState {
	return c.replica.ghostStates()
}

// OnEvent registers fn for server events. Each event is delivered once.
func (c *Client) OnEvent(fn func(Event)) func() {
	return c.replica.events.add(fn)
}

// RequestDisconnect closes the connection and stops the watchdog.
func (c *Client) RequestDisconnect() error {
	c.watchdog.Reset()
	if _, ok := c.driver.Connection(); !ok {
		return nil
	}
	return c.driver.Disconnect()
}

// Close stops the tick loop and releases the driver.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.watchdog.Reset()
		c.scheduler.Stop()
		err = c.driver.Close()
	})
	return err
}

func (c *Client) receiveSnapshots(t Tick) {
	ch := c.driver.Snapshots()
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			c.replica.apply(t.Number, snap)
		default:
			return
		}
	}
}

func (c *Client) expireGhosts(t Tick) {
	c.replica.expire(t.Number)
}

// joinSender sends the join request once per connection.
type joinSender struct {
	driver Driver
	logger *slog.Logger
	req    JoinRequest

	sent   bool
	sentTo ConnectionID
}

// Run implements Runnable.
func (s *joinSender) Run(Tick) {
	id, ok := s.driver.ConnectionID()
	if !ok {
		s.sent = false
		return
	}
	if s.sent && s.sentTo == id {
		return
	}
	if state, ok := s.driver.Connection(); !ok || state != ConnectionConnected {
		return
	}

	if err := s.driver.SendJoin(s.req); err != nil {
		s.logger.Warn("arena: sending join failed", "connection", id, "error", err)
		return
	}
	s.sent = true
	s.sentTo = id
	s.logger.Info("arena: join sent", "connection", id, "player", s.req.PlayerName)
}

// replica mirrors the ghosts the server replicates to this client.
type replica struct {
	mu          sync.Mutex
	despawn     uint64
	ghosts      map[Entity]replicaGhost
	serverCount int
	lastSeq     uint64

	events observerList[Event]
}

type replicaGhost struct {
	state    GhostState
	lastSeen uint64
}

func newReplica(despawnTicks uint32) *replica {
	return &replica{
		despawn: uint64(despawnTicks),
		ghosts:  make(map[Entity]replicaGhost),
	}
}

func (r *replica) apply(tick uint64, snap Snapshot) {
	var fresh []Event

	r.mu.Lock()
	for _, g := range snap.Ghosts {
		r.ghosts[g.ID] = replicaGhost{state: g, lastSeen: tick}
	}
	r.serverCount = snap.ServerGhostCount
	for _, ev := range snap.Events {
		if ev.Seq > r.lastSeq {
			r.lastSeq = ev.Seq
			fresh = append(fresh, ev)
		}
	}
	r.mu.Unlock()

	for _, ev := range fresh {
		r.events.notify(ev)
	}
}

// expire drops ghosts not reported for more than the despawn window.
func (r *replica) expire(tick uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, g := range r.ghosts {
		if g.lastSeen+r.despawn < tick {
			delete(r.ghosts, id)
		}
	}
}

func (r *replica) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ghosts), r.serverCount
}

func (r *replica) ghostStates() []GhostState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]GhostState, 0, len(r.ghosts))
	for _, g := range r.ghosts {
		out = append(out, g.state)
	}
	return out
}
