package arena

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSettings struct {
	mu   sync.Mutex
	code string
}

func (s *fakeSettings) SessionCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *fakeSettings) SetSessionCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	return nil
}

type fakeScenes struct {
	mu        sync.Mutex
	gameplay  int
	unloads   int
	menus     int
	lastWorld *Manager
}

func (s *fakeScenes) LoadGameplay(ctx context.Context, m *Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameplay++
	s.lastWorld = m
	return nil
}

func (s *fakeScenes) UnloadGameplay(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloads++
	return nil
}

func (s *fakeScenes) LoadMenu(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus++
	return nil
}

func (s *fakeScenes) counts() (gameplay, unloads, menus int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameplay, s.unloads, s.menus
}

type fakeServer struct {
	m      *Manager
	closed bool
}

func (s *fakeServer) Manager() *Manager { return s.m }

func (s *fakeServer) Close() error {
	s.closed = true
	s.m.Shutdown()
	return nil
}

// fakeWorlds creates running clients on fake drivers. With autoConnect
// unset the clients never get past Connecting.
type fakeWorlds struct {
	autoConnect bool

	mu      sync.Mutex
	servers []*fakeServer
	drivers []*fakeDriver
	clients []*Client
}

func (w *fakeWorlds) CreateServer(ctx context.Context, listen string) (ServerWorld, error) {
	m, err := NewBuilder().Logger(quietLogger()).Build()
	if err != nil {
		return nil, err
	}
	s := &fakeServer{m: m}
	w.mu.Lock()
	w.servers = append(w.servers, s)
	w.mu.Unlock()
	return s, nil
}

func (w *fakeWorlds) CreateClient(ctx context.Context) (ClientWorld, error) {
	d := newFakeDriver(w.autoConnect)
	c := NewClient(ClientConfig{
		Driver:    d,
		Resources: DefaultGameResources(),
		Logger:    quietLogger(),
		TickRate:  time.Millisecond,
	})
	c.Start()

	w.mu.Lock()
	w.drivers = append(w.drivers, d)
	w.clients = append(w.clients, c)
	w.mu.Unlock()
	return c, nil
}

func (w *fakeWorlds) clientCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

type failingSessions struct {
	err error
}

func (s failingSessions) Create(context.Context) (Session, error) { return nil, s.err }
func (s failingSessions) JoinByCode(context.Context, string) (Session, error) {
	return nil, s.err
}
func (s failingSessions) QuickJoin(context.Context) (Session, error) { return nil, s.err }

type orchestratorFixture struct {
	o        *Orchestrator
	sessions *LocalSessions
	worlds   *fakeWorlds
	scenes   *fakeScenes
	settings *fakeSettings
	popup    *recordingElement[string]

	mu     sync.Mutex
	states []GlobalGameState
}

func newOrchestratorFixture(t *testing.T, sessions SessionService, autoConnect bool) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		worlds:   &fakeWorlds{autoConnect: autoConnect},
		scenes:   &fakeScenes{},
		settings: &fakeSettings{},
		popup:    &recordingElement[string]{},
	}
	if sessions == nil {
		f.sessions = NewLocalSessions("127.0.0.1:0", "127.0.0.1:7979")
		sessions = f.sessions
	}
	ui := NewUIRegistry()
	RegisterUI[string](ui, SearchingPopup, f.popup)

	o, err := NewOrchestrator(OrchestratorConfig{
		Sessions: sessions,
		Worlds:   f.worlds,
		Scenes:   f.scenes,
		Settings: f.settings,
		UI:       ui,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	o.OnStateChange(func(s GlobalGameState) {
		f.mu.Lock()
		f.states = append(f.states, s)
		f.mu.Unlock()
	})
	t.Cleanup(func() { o.Quit(context.Background()) })
	f.o = o
	return f
}

func (f *orchestratorFixture) stateHistory() []GlobalGameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GlobalGameState(nil), f.states...)
}

func waitForState(t *testing.T, o *Orchestrator, want GlobalGameState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for o.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected state %s, got %s", want, o.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewOrchestratorRequiresCollaborators(t *testing.T) {
	if _, err := NewOrchestrator(OrchestratorConfig{}); err == nil {
		t.Fatal("expected an error without collaborators")
	}
}

func TestOrchestratorCreateAndReturn(t *testing.T) {
	f := newOrchestratorFixture(t, nil, true)
	ctx := context.Background()

	if err := f.o.StartGame(ctx, CreateSession); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if f.o.State() != StateInGame {
		t.Fatalf("expected InGame, got %s", f.o.State())
	}

	session, ok := f.o.Session()
	if !ok || !session.IsHost() {
		t.Fatal("expected a hosted session")
	}
	if f.settings.SessionCode() != session.Code() {
		t.Fatalf("expected session code %q to be stored, got %q", session.Code(), f.settings.SessionCode())
	}
	if len(f.worlds.servers) != 1 || f.scenes.lastWorld != f.worlds.servers[0].m {
		t.Fatal("expected the gameplay scene to be loaded into the local server")
	}
	if f.popup.shown != 1 || f.popup.hidden != 1 || len(f.popup.data) == 0 {
		t.Fatalf("expected the searching popup to be shown and hidden, got %+v", f.popup)
	}
	if err := f.o.StartGame(ctx, QuickJoin); !errors.Is(err, ErrNotInMenu) {
		t.Fatalf("expected ErrNotInMenu, got %v", err)
	}

	if err := f.o.ReturnToMainMenu(ctx); err != nil {
		t.Fatalf("return to menu: %v", err)
	}
	if f.o.State() != StateMainMenu {
		t.Fatalf("expected MainMenu, got %s", f.o.State())
	}
	if _, ok := f.o.Session(); ok {
		t.Fatal("expected the session to be released")
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("expected the hosted session to be deleted, got %d sessions", f.sessions.Len())
	}
	if f.settings.SessionCode() != "" {
		t.Fatalf("expected the session code to be cleared, got %q", f.settings.SessionCode())
	}
	if !f.worlds.servers[0].closed || !f.worlds.drivers[0].closed {
		t.Fatal("expected server and client to be closed")
	}
	if _, unloads, menus := f.scenes.counts(); unloads != 1 || menus != 1 {
		t.Fatalf("expected 1 unload and 1 menu load, got %d/%d", unloads, menus)
	}

	want := []GlobalGameState{StateLoading, StateInGame, StateMainMenu}
	got := f.stateHistory()
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, got)
		}
	}
}

func TestOrchestratorReturnWhenIdle(t *testing.T) {
	f := newOrchestratorFixture(t, nil, true)

	if err := f.o.ReturnToMainMenu(context.Background()); err != nil {
		t.Fatalf("return to menu: %v", err)
	}
	if _, unloads, menus := f.scenes.counts(); unloads != 0 || menus != 0 {
		t.Fatalf("expected no scene changes, got %d/%d", unloads, menus)
	}
	if len(f.stateHistory()) != 0 {
		t.Fatalf("expected no state changes, got %v", f.stateHistory())
	}
}

func TestOrchestratorJoinByCodeInvalid(t *testing.T) {
	f := newOrchestratorFixture(t, nil, true)
	f.settings.code = "AB!2C3"

	err := f.o.StartGame(context.Background(), JoinByCode)
	if !errors.Is(err, ErrInvalidSessionCode) {
		t.Fatalf("expected ErrInvalidSessionCode, got %v", err)
	}
	if f.o.State() != StateMainMenu {
		t.Fatalf("expected MainMenu, got %s", f.o.State())
	}
	if f.worlds.clientCount() != 0 {
		t.Fatal("expected no client world")
	}
}

func TestOrchestratorJoinByCodeAsMember(t *testing.T) {
	f := newOrchestratorFixture(t, nil, true)
	host, _ := f.sessions.Create(context.Background())
	f.settings.code = host.Code()

	if err := f.o.StartGame(context.Background(), JoinByCode); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if len(f.worlds.servers) != 0 {
		t.Fatal("expected members not to host a server")
	}
	if f.scenes.lastWorld != nil {
		t.Fatal("expected the gameplay scene to load without a server world")
	}

	if err := f.o.ReturnToMainMenu(context.Background()); err != nil {
		t.Fatalf("return to menu: %v", err)
	}
	if f.sessions.Len() != 1 {
		t.Fatal("expected a member leaving to keep the session")
	}
	if f.settings.SessionCode() != host.Code() {
		t.Fatal("expected members to keep the stored session code")
	}
}

func TestOrchestratorSessionFailure(t *testing.T) {
	boom := errors.New("matchmaking down")
	f := newOrchestratorFixture(t, failingSessions{err: boom}, true)

	err := f.o.StartGame(context.Background(), QuickJoin)
	if !errors.Is(err, boom) {
		t.Fatalf("expected matchmaking error, got %v", err)
	}
	if f.o.State() != StateMainMenu {
		t.Fatalf("expected MainMenu, got %s", f.o.State())
	}
}

func TestOrchestratorCancelDuringConnect(t *testing.T) {
	f := newOrchestratorFixture(t, nil, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.o.StartGame(ctx, QuickJoin) }()

	deadline := time.Now().Add(5 * time.Second)
	for f.worlds.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected a client world to be created")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected StartGame to return after cancel")
	}
	if f.o.State() != StateMainMenu {
		t.Fatalf("expected MainMenu, got %s", f.o.State())
	}
	if !f.worlds.drivers[0].closed {
		t.Fatal("expected the client to be closed")
	}
	if f.sessions.Len() != 0 {
		t.Fatal("expected the session to be released")
	}
	if _, unloads, menus := f.scenes.counts(); unloads != 1 || menus != 1 {
		t.Fatalf("expected 1 unload and 1 menu load, got %d/%d", unloads, menus)
	}
}

func TestOrchestratorReturnCancelsLoad(t *testing.T) {
	f := newOrchestratorFixture(t, nil, false)

	done := make(chan error, 1)
	go func() { done <- f.o.StartGame(context.Background(), CreateSession) }()
	waitForState(t, f.o, StateLoading)

	if err := f.o.ReturnToMainMenu(context.Background()); err != nil {
		t.Fatalf("return to menu: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected StartGame to return")
	}
	if f.o.State() != StateMainMenu {
		t.Fatalf("expected MainMenu, got %s", f.o.State())
	}
}

func TestOrchestratorSessionRemovedRemotely(t *testing.T) {
	f := newOrchestratorFixture(t, nil, true)
	host, _ := f.sessions.Create(context.Background())
	f.settings.code = host.Code()

	if err := f.o.StartGame(context.Background(), JoinByCode); err != nil {
		t.Fatalf("start game: %v", err)
	}
	if err := host.Delete(context.Background()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	waitForState(t, f.o, StateMainMenu)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, _, menus := f.scenes.counts(); menus == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected the menu to be loaded")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOrchestratorQuit(t *testing.T) {
	f := newOrchestratorFixture(t, nil, true)
	if err := f.o.StartGame(context.Background(), CreateSession); err != nil {
		t.Fatalf("start game: %v", err)
	}

	if err := f.o.Quit(context.Background()); err != nil {
		t.Fatalf("quit: %v", err)
	}
	select {
	case <-f.o.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
	if f.o.State() != StateMainMenu {
		t.Fatalf("expected MainMenu, got %s", f.o.State())
	}
	if err := f.o.StartGame(context.Background(), CreateSession); !errors.Is(err, ErrOrchestratorClosed) {
		t.Fatalf("expected ErrOrchestratorClosed, got %v", err)
	}
}
