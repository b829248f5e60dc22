package arena

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// fakeDriver is an in-memory Driver. With autoConnect set, Connect
// establishes a connection immediately.
type fakeDriver struct {
	mu          sync.Mutex
	autoConnect bool
	exists      bool
	state       ConnectionState
	id          ConnectionID
	nextID      ConnectionID
	connects    []string
	joins       []JoinRequest
	disconnects int
	closed      bool
	snaps       chan Snapshot
}

func newFakeDriver(autoConnect bool) *fakeDriver {
	return &fakeDriver{
		autoConnect: autoConnect,
		nextID:      1,
		snaps:       make(chan Snapshot, 8),
	}
}

func (d *fakeDriver) Connection() (ConnectionState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.exists {
		return ConnectionUnknown, false
	}
	return d.state, true
}

func (d *fakeDriver) Connect(endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects = append(d.connects, endpoint)
	if d.autoConnect && !d.exists {
		d.establishLocked(ConnectionConnected)
	}
	return nil
}

func (d *fakeDriver) establish(state ConnectionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.establishLocked(state)
}

func (d *fakeDriver) establishLocked(state ConnectionState) {
	d.exists = true
	d.state = state
	d.id = d.nextID
	d.nextID++
}

func (d *fakeDriver) drop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exists = false
	d.state = ConnectionUnknown
}

func (d *fakeDriver) ConnectionID() (ConnectionID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.exists || d.state != ConnectionConnected {
		return 0, false
	}
	return d.id, true
}

func (d *fakeDriver) SendJoin(req JoinRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.exists {
		return ErrNoConnection
	}
	d.joins = append(d.joins, req)
	return nil
}

func (d *fakeDriver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
	d.exists = false
	d.state = ConnectionUnknown
	return nil
}

func (d *fakeDriver) Snapshots() <-chan Snapshot {
	return d.snaps
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.exists = false
	return nil
}

func (d *fakeDriver) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.connects)
}

func (d *fakeDriver) sentJoins() []JoinRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]JoinRequest(nil), d.joins...)
}

func TestClientSendsJoinOncePerConnection(t *testing.T) {
	d := newFakeDriver(false)
	c := NewClient(ClientConfig{Driver: d, Logger: quietLogger(), PlayerName: "alice"})
	t.Cleanup(func() { c.Close() })

	c.Tick()
	if n := len(d.sentJoins()); n != 0 {
		t.Fatalf("expected no join without a connection, got %d", n)
	}

	d.establish(ConnectionConnected)
	c.Tick()
	c.Tick()
	joins := d.sentJoins()
	if len(joins) != 1 {
		t.Fatalf("expected 1 join, got %d", len(joins))
	}
	if joins[0].PlayerName != "alice" || joins[0].IsSpectator {
		t.Fatalf("unexpected join request %+v", joins[0])
	}

	d.drop()
	c.Tick()
	d.establish(ConnectionConnected)
	c.Tick()
	if n := len(d.sentJoins()); n != 2 {
		t.Fatalf("expected a second join after reconnecting, got %d", n)
	}
}

func TestClientThinClientName(t *testing.T) {
	c := NewClient(ClientConfig{
		Driver:     newFakeDriver(false),
		Logger:     quietLogger(),
		PlayerName: "alice",
		ThinClient: true,
		Rand:       NewRand(1),
	})
	if !strings.HasPrefix(c.PlayerName(), "[Bot ") || !strings.HasSuffix(c.PlayerName(), "] alice") {
		t.Fatalf("expected bot name, got %q", c.PlayerName())
	}
}

func TestClientGhostExpiry(t *testing.T) {
	d := newFakeDriver(false)
	res := DefaultGameResources()
	res.DespawnTicks = 2
	c := NewClient(ClientConfig{Driver: d, Resources: res, Logger: quietLogger()})

	d.snaps <- Snapshot{
		Tick:             1,
		ServerGhostCount: 3,
		Ghosts:           []GhostState{{ID: 1}, {ID: 2}},
	}
	c.Tick() // tick 1
	inst, server := c.GhostCount()
	if inst != 2 || server != 3 {
		t.Fatalf("expected 2/3 ghosts, got %d/%d", inst, server)
	}

	c.Tick()
	c.Tick()
	if inst, _ := c.GhostCount(); inst != 2 {
		t.Fatalf("expected ghosts to survive the despawn window, got %d", inst)
	}

	c.Tick() // tick 4
	if inst, _ := c.GhostCount(); inst != 0 {
		t.Fatalf("expected ghosts to expire, got %d", inst)
	}
}

func TestClientDeliversEachEventOnce(t *testing.T) {
	d := newFakeDriver(false)
	c := NewClient(ClientConfig{Driver: d, Logger: quietLogger()})

	var got []uint64
	c.OnEvent(func(ev Event) { got = append(got, ev.Seq) })

	d.snaps <- Snapshot{Events: []Event{{Seq: 1}, {Seq: 2}}}
	c.Tick()
	d.snaps <- Snapshot{Events: []Event{{Seq: 2}, {Seq: 3}}}
	c.Tick()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected events [1 2 3], got %v", got)
	}
}

func TestClientRequestDisconnect(t *testing.T) {
	d := newFakeDriver(true)
	c := NewClient(ClientConfig{Driver: d, Logger: quietLogger()})

	c.Watchdog().Connect("server")
	c.Tick()
	if c.Watchdog().State() != Connected {
		t.Fatalf("expected Connected, got %s", c.Watchdog().State())
	}

	if err := c.RequestDisconnect(); err != nil {
		t.Fatalf("request disconnect: %v", err)
	}
	if c.Watchdog().State() != NotConnected {
		t.Fatalf("expected NotConnected, got %s", c.Watchdog().State())
	}
	if d.disconnects != 1 {
		t.Fatalf("expected 1 driver disconnect, got %d", d.disconnects)
	}

	// Without a connection there is nothing to close.
	if err := c.RequestDisconnect(); err != nil {
		t.Fatalf("request disconnect: %v", err)
	}
	if d.disconnects != 1 {
		t.Fatalf("expected no further disconnects, got %d", d.disconnects)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !d.closed {
		t.Fatal("expected driver to be closed")
	}
	if err := c.WaitTicks(context.Background(), 1); err != ErrSchedulerStopped {
		t.Fatalf("expected ErrSchedulerStopped after close, got %v", err)
	}
}
