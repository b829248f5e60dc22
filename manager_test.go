package arena

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl64"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingReplicator struct {
	mu    sync.Mutex
	snaps []Snapshot
	to    [][]ConnectionID
}

func (r *recordingReplicator) Replicate(snap Snapshot, recipients []ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	r.to = append(r.to, append([]ConnectionID(nil), recipients...))
}

func (r *recordingReplicator) last() (Snapshot, []ConnectionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, nil, false
	}
	return r.snaps[len(r.snaps)-1], r.to[len(r.to)-1], true
}

func newTestManager(t *testing.T, b *Builder) *Manager {
	t.Helper()
	if b == nil {
		b = NewBuilder()
	}
	m, err := b.Logger(quietLogger()).Rand(NewRand(1)).Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	t.Cleanup(m.Shutdown)
	return m
}

func TestManagerJoinAndSpawn(t *testing.T) {
	m := newTestManager(t, NewBuilder().SpawnPoints(spawnRow(4)...))
	w := m.World()

	m.Connect(3)
	m.ReceiveJoin(3, JoinRequest{PlayerName: "alice"})

	// Ownership writes staged during a tick are patched in at the start of
	// the next one, so each reference shows up one tick after the entity
	// is created: the player at tick 2 and the character at tick 3.

	// Tick 1: connection applied, avatar staged.
	m.Tick()
	conn, ok := m.Connection(3)
	if !ok {
		t.Fatal("expected connection 3 to be registered")
	}
	if m.Ownership().Len() != 4 {
		t.Fatalf("expected ownership table length 4, got %d", m.Ownership().Len())
	}
	entry := m.Ownership().Get(3)
	if entry.Connection != conn {
		t.Fatalf("expected connection entity %d, got %d", conn, entry.Connection)
	}
	if entry.Player != Null {
		t.Fatalf("expected player to be staged until the next patch, got %d", entry.Player)
	}
	if !Has[InGame](w, conn) {
		t.Fatal("expected connection to be in game after playback")
	}
	if len(m.Ownership().Pending()) != 1 {
		t.Fatalf("expected 1 staged entry, got %d", len(m.Ownership().Pending()))
	}

	// Tick 2: player patched in, character staged.
	m.Tick()
	entry = m.Ownership().Get(3)
	if entry.Player == Null {
		t.Fatal("expected player to be visible after patch")
	}
	avatar := Get[Avatar](w, entry.Player)
	if avatar == nil || avatar.Name != "alice" {
		t.Fatalf("expected avatar named alice, got %+v", avatar)
	}
	if owner := Get[GhostOwner](w, entry.Player); owner == nil || owner.ID != 3 {
		t.Fatalf("expected player owned by 3, got %+v", owner)
	}
	if entry.Character != Null {
		t.Fatalf("expected character to be staged, got %d", entry.Character)
	}

	// Tick 3: character patched in.
	m.Tick()
	entry = m.Ownership().Get(3)
	if entry.Character == Null {
		t.Fatal("expected character to be visible after patch")
	}
	if op := Get[OwningPlayer](w, entry.Character); op == nil || op.Player != entry.Player {
		t.Fatalf("expected character to point at player %d, got %+v", entry.Player, op)
	}
	if id, ok := m.Ownership().Lookup(entry.Character); !ok || id != 3 {
		t.Fatalf("expected lookup to return 3, got %d (%v)", id, ok)
	}
	if len(Query[PendingCharacterSpawn](w)) != 0 {
		t.Fatal("expected spawn request to be consumed")
	}

	if got := m.Metrics().JoinsAccepted.Load(); got != 1 {
		t.Fatalf("expected 1 accepted join, got %d", got)
	}
	if got := m.Metrics().CharactersSpawned.Load(); got != 1 {
		t.Fatalf("expected 1 spawned character, got %d", got)
	}
}

func TestManagerSpectatorGetsNoCharacter(t *testing.T) {
	m := newTestManager(t, NewBuilder().SpawnPoints(spawnRow(2)...))

	m.Connect(1)
	m.ReceiveJoin(1, JoinRequest{PlayerName: "watcher", IsSpectator: true})
	for i := 0; i < 3; i++ {
		m.Tick()
	}

	entry := m.Ownership().Get(1)
	if entry.Player == Null {
		t.Fatal("expected spectator to get a player")
	}
	if entry.Character != Null {
		t.Fatalf("expected no character for spectator, got %d", entry.Character)
	}
	if got := m.Metrics().CharactersSpawned.Load(); got != 0 {
		t.Fatalf("expected no spawns, got %d", got)
	}
}

func TestManagerTruncatesPlayerName(t *testing.T) {
	m := newTestManager(t, nil)

	m.Connect(1)
	m.ReceiveJoin(1, JoinRequest{PlayerName: strings.Repeat("é", 200)})
	m.Tick()
	m.Tick()

	entry := m.Ownership().Get(1)
	avatar := Get[Avatar](m.World(), entry.Player)
	if avatar == nil {
		t.Fatal("expected avatar")
	}
	if len(avatar.Name) != 124 {
		t.Fatalf("expected 124 byte name, got %d", len(avatar.Name))
	}
	if !utf8.ValidString(avatar.Name) {
		t.Fatal("expected valid UTF-8 name")
	}
}

func TestManagerDropsInvalidJoins(t *testing.T) {
	m := newTestManager(t, nil)

	m.Connect(1)
	m.ReceiveJoin(1, JoinRequest{PlayerName: "a"})
	m.ReceiveJoin(1, JoinRequest{PlayerName: "a-again"})
	m.ReceiveJoin(9, JoinRequest{PlayerName: "stranger"})
	m.Tick()

	if got := m.Metrics().JoinsAccepted.Load(); got != 1 {
		t.Fatalf("expected 1 accepted join, got %d", got)
	}
	if got := m.Metrics().JoinsDropped.Load(); got != 2 {
		t.Fatalf("expected 2 dropped joins, got %d", got)
	}
	if len(Query[PendingJoin](m.World())) != 0 {
		t.Fatal("expected every join request to be consumed")
	}

	// Already in game.
	m.ReceiveJoin(1, JoinRequest{PlayerName: "late"})
	m.Tick()
	if got := m.Metrics().JoinsDropped.Load(); got != 3 {
		t.Fatalf("expected 3 dropped joins, got %d", got)
	}
	if got := len(Query[Avatar](m.World())); got != 1 {
		t.Fatalf("expected 1 avatar, got %d", got)
	}
}

func TestManagerSpawnExhaustionKeepsOrder(t *testing.T) {
	m := newTestManager(t, NewBuilder().SpawnPoints(spawnRow(2)...))

	for id := ConnectionID(1); id <= 3; id++ {
		m.Connect(id)
		m.ReceiveJoin(id, JoinRequest{PlayerName: "p"})
	}
	m.Tick()
	m.Tick()

	if got := m.Metrics().CharactersSpawned.Load(); got != 2 {
		t.Fatalf("expected 2 spawns, got %d", got)
	}
	if got := m.Metrics().SpawnsExhausted.Load(); got != 1 {
		t.Fatalf("expected 1 exhausted batch, got %d", got)
	}

	m.Tick()
	for id := ConnectionID(1); id <= 2; id++ {
		if m.Ownership().Get(id).Character == Null {
			t.Fatalf("expected connection %d to have a character", id)
		}
	}
	if m.Ownership().Get(3).Character != Null {
		t.Fatal("expected connection 3 to still be waiting")
	}

	pending := Query[PendingCharacterSpawn](m.World())
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending spawn, got %d", len(pending))
	}
	conn3, _ := m.Connection(3)
	if Get[PendingCharacterSpawn](m.World(), pending[0]).Client != conn3 {
		t.Fatal("expected the pending spawn to belong to connection 3")
	}
}

func TestManagerDisconnectResetsEntry(t *testing.T) {
	m := newTestManager(t, NewBuilder().SpawnPoints(spawnRow(1)...))

	m.Connect(1)
	m.Connect(3)
	m.ReceiveJoin(1, JoinRequest{PlayerName: "first"})
	m.ReceiveJoin(3, JoinRequest{PlayerName: "second"})
	for i := 0; i < 3; i++ {
		m.Tick()
	}

	// One spawn point: connection 3 is still waiting for a character.
	if m.Ownership().Get(3).Character != Null {
		t.Fatal("expected connection 3 to have no character yet")
	}
	player := m.Ownership().Get(3).Player

	m.Disconnect(3)
	m.Tick()

	if _, ok := m.Connection(3); ok {
		t.Fatal("expected connection 3 to be gone")
	}
	if !m.Ownership().Get(3).IsZero() {
		t.Fatalf("expected entry 3 to be reset, got %+v", m.Ownership().Get(3))
	}
	if m.World().Alive(player) {
		t.Fatal("expected the player to be destroyed with its connection")
	}
	if len(Query[PendingCharacterSpawn](m.World())) != 0 {
		t.Fatal("expected the pending spawn to be abandoned")
	}
	if m.Ownership().Get(1).Character == Null {
		t.Fatal("expected connection 1 to be untouched")
	}

	var left bool
	for _, ev := range m.Events() {
		if ev.Kind == EventPlayerLeft && ev.Connection == 3 && ev.Name == "second" {
			left = true
		}
	}
	if !left {
		t.Fatalf("expected a PlayerLeft event, got %+v", m.Events())
	}
}

func TestManagerRespawn(t *testing.T) {
	m := newTestManager(t, NewBuilder().
		TickRate(time.Second).
		SpawnPoints(spawnRow(2)...))

	m.Connect(1)
	m.ReceiveJoin(1, JoinRequest{PlayerName: "p"})
	for i := 0; i < 3; i++ {
		m.Tick()
	}
	first := m.Ownership().Get(1).Character
	if first == Null {
		t.Fatal("expected a character before respawn")
	}

	m.Respawn(1)
	m.Tick() // tick 4
	if m.World().Alive(first) {
		t.Fatal("expected the old character to be destroyed")
	}
	if m.Ownership().Get(1).Character != Null {
		t.Fatal("expected the character slot to be cleared")
	}

	// Respawn time of 4s at one tick per second.
	for m.TickNumber() < 7 {
		m.Tick()
		if n := len(Query[Character](m.World())); n != 0 {
			t.Fatalf("expected no character at tick %d, got %d", m.TickNumber(), n)
		}
	}
	m.Tick() // tick 8
	if n := len(Query[Character](m.World())); n != 1 {
		t.Fatalf("expected a new character at tick 8, got %d", n)
	}
	m.Tick() // tick 9
	second := m.Ownership().Get(1).Character
	if second == Null || second == first {
		t.Fatalf("expected a new character in the ownership entry, got %d", second)
	}
}

func TestManagerRespawnIgnoresSpectators(t *testing.T) {
	m := newTestManager(t, NewBuilder().SpawnPoints(spawnRow(2)...))

	m.Connect(1)
	m.ReceiveJoin(1, JoinRequest{PlayerName: "watcher", IsSpectator: true})
	m.Tick()
	m.Tick()

	m.Respawn(1)
	for i := 0; i < 10; i++ {
		m.Tick()
	}
	if n := len(Query[Character](m.World())); n != 0 {
		t.Fatalf("expected no characters for a spectator, got %d", n)
	}
	if got := m.Ownership().Get(1).Character; got != Null {
		t.Fatalf("expected an empty character slot, got %d", got)
	}
}

func TestManagerRespawnKeepsOneCharacter(t *testing.T) {
	m := newTestManager(t, NewBuilder().
		TickRate(time.Second).
		SpawnPoints(spawnRow(4)...))

	m.Connect(1)
	m.ReceiveJoin(1, JoinRequest{PlayerName: "p"})
	m.Tick()
	// The initial spawn request is still queued here.
	m.Respawn(1)
	for i := 0; i < 3; i++ {
		m.Tick()
	}
	if n := len(Query[Character](m.World())); n != 1 {
		t.Fatalf("expected 1 character after respawn during the first spawn, got %d", n)
	}

	m.Respawn(1)
	m.Respawn(1)
	for i := 0; i < 10; i++ {
		m.Tick()
	}
	characters := Query[Character](m.World())
	if len(characters) != 1 {
		t.Fatalf("expected 1 character after a double respawn, got %d", len(characters))
	}
	if got := m.Ownership().Get(1).Character; got != characters[0] {
		t.Fatalf("expected the entry to own character %d, got %d", characters[0], got)
	}
}

func TestManagerStalledSpawnWaits(t *testing.T) {
	m := newTestManager(t, NewBuilder().SpawnPoints(spawnRow(1)...))
	w := m.World()

	client := w.Create()
	req := w.Create()
	Add(w, req, &PendingCharacterSpawn{Client: client, Delay: -1})

	m.Tick()
	m.Tick()
	if !w.Alive(req) {
		t.Fatal("expected the request to stay queued")
	}
	if got := m.Metrics().CharactersSpawned.Load(); got != 0 {
		t.Fatalf("expected no spawns, got %d", got)
	}
}

func TestManagerReplicatesToInGameConnections(t *testing.T) {
	rep := &recordingReplicator{}
	m := newTestManager(t, NewBuilder().
		SpawnPoints(SpawnPoint{Position: mgl64.Vec3{1, 2, 3}}).
		Replicator(rep))

	m.Connect(1)
	m.Connect(2)
	m.ReceiveJoin(1, JoinRequest{PlayerName: "p"})
	m.Tick()

	snap, to, ok := rep.last()
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if len(to) != 1 || to[0] != 1 {
		t.Fatalf("expected only connection 1 as recipient, got %v", to)
	}
	if snap.ServerGhostCount != 1 {
		t.Fatalf("expected 1 ghost, got %d", snap.ServerGhostCount)
	}

	m.Tick()
	snap, _, _ = rep.last()
	if snap.ServerGhostCount != 2 || len(snap.Ghosts) != 2 {
		t.Fatalf("expected 2 ghosts, got %d", snap.ServerGhostCount)
	}
	var found bool
	for _, g := range snap.Ghosts {
		if g.Template == CharacterTemplate {
			found = true
			if g.Owner != 1 || g.Position != (mgl64.Vec3{1, 2, 3}) {
				t.Fatalf("unexpected character ghost %+v", g)
			}
		}
	}
	if !found {
		t.Fatal("expected a character ghost")
	}
	if len(snap.Events) < 2 {
		t.Fatalf("expected join and spawn events, got %+v", snap.Events)
	}
}

func TestManagerPanicShutsDown(t *testing.T) {
	boom := NewBundle("boom").
		Loop("panic", RunnableFunc(func(Tick) { panic("boom") }), 0, Default).
		Build()
	m := newTestManager(t, NewBuilder().Bundle(boom))

	m.Tick()

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected the manager to shut down after a system panic")
	}
}
