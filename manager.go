package arena

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// inboundKind classifies transport input queued for the tick goroutine.
type inboundKind uint8

const (
	inboundConnected inboundKind = iota
	inboundDisconnected
	inboundJoin
	inboundRespawn
)

// inbound is one transport notification waiting for the next tick.
type inbound struct {
	kind inboundKind
	id   ConnectionID
	join JoinRequest
}

// inboundCapacity bounds the queue between transport goroutines and the tick.
const inboundCapacity = 1024

// Manager is the authoritative server world.
//
// Transport goroutines report connection changes and join requests through
// Connect, Disconnect and ReceiveJoin. Those calls only enqueue; all world
// mutation happens on the tick, in stage order:
//
//	Before:  ownership patch, connection events
//	Default: join requests, character spawns, bundle systems
//	After:   command buffer playback, replication
type Manager struct {
	logger    *slog.Logger
	resources GameResources

	world     *World
	templates *Templates
	commands  *CommandBuffer
	ownership *OwnershipMap

	spawnPoints spawnPointSet
	allocator   SpawnAllocator
	rng         *rand.Rand

	// connections maps live connection ids to their connection entity.
	// Only touched on the tick goroutine.
	connections map[ConnectionID]Entity

	inbound chan inbound
	done    chan struct{}
	once    sync.Once

	events     *EventLog
	replicator Replicator
	metrics    *Metrics

	// bundles holds all registered bundles
	bundles   []*Bundle
	scheduler *Scheduler
}

// newManager creates a new manager.
func newManager(res GameResources, logger *slog.Logger, tickRate time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	w := NewWorld()
	templates := NewTemplates()
	m := &Manager{
		logger:      logger,
		resources:   res,
		world:       w,
		templates:   templates,
		commands:    NewCommandBuffer(w, templates),
		ownership:   NewOwnershipMap(),
		rng:         SharedRand(),
		connections: make(map[ConnectionID]Entity),
		inbound:     make(chan inbound, inboundCapacity),
		done:        make(chan struct{}),
		events:      NewEventLog(res.PolledEventsTicks),
		metrics:     &Metrics{},
	}
	m.allocator = SpawnAllocator{
		Occupancy:   CharacterOccupancy{World: w},
		BlockRadius: res.SpawnPointBlockRadius,
	}
	m.scheduler = NewScheduler("server", tickRate, logger)
	m.scheduler.onFatal = func(error) { m.Shutdown() }
	m.scheduler.afterTick = func(d time.Duration) { m.metrics.AddTick(d.Nanoseconds()) }
	return m
}

// coreBundle returns the built-in server systems.
func (m *Manager) coreBundle() *Bundle {
	return NewBundle("arena").
		Loop("ownership-patch", RunnableFunc(func(Tick) { m.ownership.Patch() }), 0, Before).
		Loop("connection-events", RunnableFunc(m.applyInbound), 0, Before).
		Loop("join", &joinSystem{m: m}, 0, Default).
		Loop("character-spawner", &spawnSystem{m: m}, 0, Default).
		Loop("command-playback", RunnableFunc(func(Tick) { m.commands.Playback() }), 0, After).
		Loop("replication", RunnableFunc(m.replicate), 0, After)
}

// World returns the server entity store. Only access it from systems or
// while the scheduler is not running.
func (m *Manager) World() *World {
	return m.world
}

// Ownership returns the ownership table.
func (m *Manager) Ownership() *OwnershipMap {
	return m.ownership
}

// Commands returns the command buffer played back in the After stage.
func (m *Manager) Commands() *CommandBuffer {
	return m.commands
}

// Resources returns the game resources.
func (m *Manager) Resources() GameResources {
	return m.resources
}

// Metrics returns the server counters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Events returns the retained lifecycle events.
func (m *Manager) Events() []Event {
	return m.events.Recent()
}

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger {
	return m.logger
}

// TickNumber returns the current scheduler tick number.
func (m *Manager) TickNumber() uint64 {
	return m.scheduler.TickNumber()
}

// WaitTicks blocks until n more server ticks have completed.
func (m *Manager) WaitTicks(ctx context.Context, n int) error {
	return m.scheduler.WaitTicks(ctx, n)
}

// SetSpawnPoints replaces the spawn points. Safe for concurrent use.
func (m *Manager) SetSpawnPoints(points []SpawnPoint) {
	m.spawnPoints.set(points)
}

// SpawnPoints returns the current spawn points.
func (m *Manager) SpawnPoints() []SpawnPoint {
	return m.spawnPoints.snapshot()
}

// SetReplicator sets where snapshots are delivered. Call before Start.
func (m *Manager) SetReplicator(r Replicator) {
	m.replicator = r
}

// Connection returns the entity of a live connection.
// Only call it from systems or while the scheduler is not running.
func (m *Manager) Connection(id ConnectionID) (Entity, bool) {
	e, ok := m.connections[id]
	return e, ok
}

// Connect reports that connection id reached the Connected state.
// It blocks while the inbound queue is full.
func (m *Manager) Connect(id ConnectionID) {
	m.enqueueBlocking(inbound{kind: inboundConnected, id: id})
}

// Disconnect reports that connection id went away.
// It blocks while the inbound queue is full.
func (m *Manager) Disconnect(id ConnectionID) {
	m.enqueueBlocking(inbound{kind: inboundDisconnected, id: id})
}

// ReceiveJoin queues a join request from connection id.
// The request is dropped when the inbound queue is full.
func (m *Manager) ReceiveJoin(id ConnectionID, req JoinRequest) {
	req.PlayerName = TruncatePlayerName(req.PlayerName)
	m.enqueue(inbound{kind: inboundJoin, id: id, join: req})
}

// Respawn destroys the character of connection id and queues a new one
// after the configured respawn time.
func (m *Manager) Respawn(id ConnectionID) {
	m.enqueue(inbound{kind: inboundRespawn, id: id})
}

func (m *Manager) enqueue(in inbound) {
	select {
	case m.inbound <- in:
	default:
		m.metrics.InboundDiscarded.Add(1)
		m.logger.Warn("arena: inbound queue full, dropping message", "connection", in.id)
	}
}

func (m *Manager) enqueueBlocking(in inbound) {
	select {
	case m.inbound <- in:
	case <-m.done:
	}
}

// Tick runs one simulation step synchronously.
func (m *Manager) Tick() {
	m.scheduler.Step(time.Now())
}

// Start starts the scheduler's tick loop.
func (m *Manager) Start() {
	m.scheduler.Start()
}

// Shutdown stops the scheduler. It is safe to call more than once.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		close(m.done)
		m.scheduler.Stop()
	})
}

// Done is closed when the manager shuts down.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// applyInbound drains transport input queued since the previous tick.
func (m *Manager) applyInbound(t Tick) {
	// Only drain what was queued when the tick started so a flood of input
	// cannot stall the tick.
	for n := len(m.inbound); n > 0; n-- {
		in := <-m.inbound
		switch in.kind {
		case inboundConnected:
			m.handleConnected(in.id)
		case inboundDisconnected:
			m.handleDisconnected(t, in.id)
		case inboundJoin:
			m.handleJoin(in.id, in.join)
		case inboundRespawn:
			m.handleRespawn(t, in.id)
		}
	}
}

func (m *Manager) handleConnected(id ConnectionID) {
	if id <= 0 {
		m.logger.Warn("arena: ignoring connection with reserved id", "connection", id)
		return
	}
	if old, ok := m.connections[id]; ok {
		m.logger.Warn("arena: connection id reused before disconnect", "connection", id)
		m.world.Destroy(old)
	}

	e := m.world.Create()
	Add(m.world, e, &NetworkID{ID: id})
	m.connections[id] = e

	m.ownership.Resize(int(id) + 1)
	entry := m.ownership.Get(id)
	entry.Connection = e
	m.ownership.Set(id, entry)

	m.metrics.Connects.Add(1)
	m.logger.Debug("arena: connection established", "connection", id)
}

func (m *Manager) handleDisconnected(t Tick, id ConnectionID) {
	e, ok := m.connections[id]
	if !ok {
		return
	}
	delete(m.connections, id)

	// Requests still waiting for this connection are abandoned.
	for _, req := range Query[PendingCharacterSpawn](m.world) {
		if Get[PendingCharacterSpawn](m.world, req).Client == e {
			m.world.Destroy(req)
		}
	}
	for _, req := range Query[PendingJoin](m.world) {
		if Get[PendingJoin](m.world, req).Source == e {
			m.world.Destroy(req)
		}
	}

	name := ""
	if joined := Get[JoinedClient](m.world, e); joined != nil {
		if avatar := Get[Avatar](m.world, joined.Player); avatar != nil {
			name = avatar.Name
		}
		m.events.Record(t.Number, EventPlayerLeft, id, name)
	}

	m.world.Destroy(e)
	m.ownership.Set(id, OwnershipEntry{})

	m.metrics.Disconnects.Add(1)
	m.logger.Info("arena: connection closed", "connection", id, "player", name)
}

func (m *Manager) handleJoin(id ConnectionID, req JoinRequest) {
	// Requests from unknown connections carry a null source and are
	// dropped by the join system.
	source := m.connections[id]
	e := m.world.Create()
	Add(m.world, e, &PendingJoin{
		Source:      source,
		PlayerName:  req.PlayerName,
		IsSpectator: req.IsSpectator,
	})
}

func (m *Manager) handleRespawn(t Tick, id ConnectionID) {
	conn, ok := m.connections[id]
	if !ok {
		return
	}
	joined := Get[JoinedClient](m.world, conn)
	if joined == nil {
		return
	}
	if avatar := Get[Avatar](m.world, joined.Player); avatar == nil || avatar.Spectator {
		return
	}
	// A connection has at most one character, counting one still queued.
	for _, req := range Query[PendingCharacterSpawn](m.world) {
		if Get[PendingCharacterSpawn](m.world, req).Client == conn {
			return
		}
	}

	entry := m.ownership.Get(id)
	if entry.Character != Null {
		if group := Get[LinkedEntities](m.world, conn); group != nil {
			group.Entities = removeEntity(group.Entities, entry.Character)
		}
		m.world.Destroy(entry.Character)
		entry.Character = Null
		m.ownership.Set(id, entry)
	}

	req := m.world.Create()
	Add(m.world, req, &PendingCharacterSpawn{
		Client: conn,
		Delay:  m.resources.RespawnTime,
	})
	m.events.Record(t.Number, EventRespawnQueued, id, "")
}

// replicate publishes the ghost state to every in-game connection.
func (m *Manager) replicate(t Tick) {
	m.events.Prune(t.Number)
	if m.replicator == nil {
		return
	}

	var recipients []ConnectionID
	for _, e := range Query2[NetworkID, InGame](m.world) {
		recipients = append(recipients, Get[NetworkID](m.world, e).ID)
	}
	if len(recipients) == 0 {
		return
	}

	ghosts := Query[Ghost](m.world)
	snap := Snapshot{
		Tick:             t.Number,
		ServerGhostCount: len(ghosts),
		Ghosts:           make([]GhostState, 0, len(ghosts)),
		Events:           m.events.Recent(),
	}
	for _, e := range ghosts {
		gs := GhostState{ID: e, Template: Get[Ghost](m.world, e).Template}
		if owner := Get[GhostOwner](m.world, e); owner != nil {
			gs.Owner = owner.ID
		}
		if tr := Get[Transform](m.world, e); tr != nil {
			gs.Position = tr.Position
			gs.Rotation = tr.Rotation
		}
		snap.Ghosts = append(snap.Ghosts, gs)
	}

	m.replicator.Replicate(snap, recipients)
}

func removeEntity(list []Entity, e Entity) []Entity {
	for i, v := range list {
		if v == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
