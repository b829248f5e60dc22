package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotInMenu is returned by StartGame when a game is loading or running.
	ErrNotInMenu = errors.New("arena: not in main menu")
	// ErrConnectionLost is returned when the connection drops while starting.
	ErrConnectionLost = errors.New("arena: connection lost")
	// ErrOrchestratorClosed is returned after Quit.
	ErrOrchestratorClosed = errors.New("arena: orchestrator closed")
)

// GlobalGameState is the top-level state of the client application.
type GlobalGameState uint8

const (
	StateMainMenu GlobalGameState = iota
	StateLoading
	StateInGame
)

// String returns the string representation of the state.
func (s GlobalGameState) String() string {
	switch s {
	case StateMainMenu:
		return "MainMenu"
	case StateLoading:
		return "Loading"
	case StateInGame:
		return "InGame"
	default:
		return "Unknown"
	}
}

// Phase is one step of StartGame.
type Phase uint8

const (
	PhaseTeardown Phase = iota
	PhaseSession
	PhaseHost
	PhaseConnect
	PhaseScene
	PhaseReplication
	PhaseSettle
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseTeardown:
		return "teardown"
	case PhaseSession:
		return "session"
	case PhaseHost:
		return "host"
	case PhaseConnect:
		return "connect"
	case PhaseScene:
		return "scene"
	case PhaseReplication:
		return "replication"
	case PhaseSettle:
		return "settle"
	default:
		return "unknown"
	}
}

// OrchestratorConfig holds the collaborators of an Orchestrator.
type OrchestratorConfig struct {
	Sessions SessionService
	Worlds   Worlds
	Scenes   SceneLoader
	Settings SessionSettings

	// UI is optional.
	UI     *UIRegistry
	Logger *slog.Logger
	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer
}

// loadTask is a StartGame in progress.
type loadTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator drives the client from the menu into a running game and back.
//
// StartGame runs the load phases in order and checks for cancellation
// between them. Any failure or cancellation unwinds whatever was set up and
// returns to the main menu.
type Orchestrator struct {
	sessions SessionService
	worlds   Worlds
	scenes   SceneLoader
	settings SessionSettings
	ui       *UIRegistry
	logger   *slog.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	state   GlobalGameState
	load    *loadTask
	session Session
	server  ServerWorld
	client  ClientWorld
	// watchStop stops the removed-session watcher of the current session.
	watchStop chan struct{}

	// returning serialises ReturnToMainMenu.
	returning sync.Mutex

	observers observerList[GlobalGameState]
	done      chan struct{}
	quitOnce  sync.Once
}

// NewOrchestrator creates an orchestrator in the MainMenu state.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, fmt.Errorf("arena: orchestrator needs a session service")
	case cfg.Worlds == nil:
		return nil, fmt.Errorf("arena: orchestrator needs a world factory")
	case cfg.Scenes == nil:
		return nil, fmt.Errorf("arena: orchestrator needs a scene loader")
	case cfg.Settings == nil:
		return nil, fmt.Errorf("arena: orchestrator needs settings")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/oriumgames/arena")
	}
	return &Orchestrator{
		sessions: cfg.Sessions,
		worlds:   cfg.Worlds,
		scenes:   cfg.Scenes,
		settings: cfg.Settings,
		ui:       cfg.UI,
		logger:   logger,
		tracer:   tracer,
		done:     make(chan struct{}),
	}, nil
}

// State returns the current game state.
func (o *Orchestrator) State() GlobalGameState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns the joined session, if any.
func (o *Orchestrator) Session() (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session, o.session != nil
}

// OnStateChange registers fn to be called after every state change.
func (o *Orchestrator) OnStateChange(fn func(GlobalGameState)) func() {
	return o.observers.add(fn)
}

// Done is closed after Quit.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) setState(s GlobalGameState) {
	o.mu.Lock()
	changed := o.state != s
	o.state = s
	o.mu.Unlock()

	if changed {
		o.logger.Info("arena: game state changed", "state", s.String())
		o.observers.notify(s)
	}
}

// StartGame takes the client from the main menu into a game and blocks
// until it is in game, it failed or ctx was cancelled. On failure or
// cancellation the client is back in the main menu when StartGame returns.
func (o *Orchestrator) StartGame(ctx context.Context, ct CreationType) error {
	select {
	case <-o.done:
		return ErrOrchestratorClosed
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	task := &loadTask{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if o.state != StateMainMenu || o.load != nil {
		o.mu.Unlock()
		cancel()
		return ErrNotInMenu
	}
	o.load = task
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.load = nil
		o.mu.Unlock()
		close(task.done)
	}()

	o.setState(StateLoading)
	ShowUI[string](o.ui, SearchingPopup)

	err := o.runLoad(ctx, ct)
	if err == nil {
		// A cancel that lands after the last phase still wins.
		err = ctx.Err()
	}
	HideUI[string](o.ui, SearchingPopup)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			o.logger.Info("arena: game start cancelled", "mode", ct.String())
		} else {
			o.logger.Error("arena: game start failed", "mode", ct.String(), "error", err)
		}
		if uerr := o.disconnectAndUnload(context.WithoutCancel(ctx)); uerr != nil {
			o.logger.Warn("arena: unwinding failed game start", "error", uerr)
		}
		o.setState(StateMainMenu)
		return err
	}

	o.setState(StateInGame)
	return nil
}

func (o *Orchestrator) runLoad(ctx context.Context, ct CreationType) error {
	ctx, span := o.tracer.Start(ctx, "arena.StartGame",
		trace.WithAttributes(attribute.String("arena.mode", ct.String())))
	defer span.End()

	var (
		session Session
		server  ServerWorld
		client  ClientWorld
	)

	steps := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{PhaseTeardown, func(ctx context.Context) error {
			return o.disconnectAndUnload(ctx)
		}},
		{PhaseSession, func(ctx context.Context) error {
			var err error
			session, err = o.openSession(ctx, ct)
			if err != nil {
				return err
			}
			o.mu.Lock()
			o.session = session
			o.mu.Unlock()
			if session.IsHost() {
				if err := o.settings.SetSessionCode(session.Code()); err != nil {
					o.logger.Warn("arena: storing session code", "error", err)
				}
			}
			span.SetAttributes(
				attribute.String("arena.session", session.ID()),
				attribute.Bool("arena.host", session.IsHost()))
			return nil
		}},
		{PhaseHost, func(ctx context.Context) error {
			if !session.IsHost() {
				return nil
			}
			UpdateUI(o.ui, SearchingPopup, "Starting server")
			var err error
			server, err = o.worlds.CreateServer(ctx, session.ListenEndpoint())
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			o.mu.Lock()
			o.server = server
			o.mu.Unlock()
			return nil
		}},
		{PhaseConnect, func(ctx context.Context) error {
			UpdateUI(o.ui, SearchingPopup, "Connecting")
			var err error
			client, err = o.worlds.CreateClient(ctx)
			if err != nil {
				return fmt.Errorf("create client: %w", err)
			}
			o.mu.Lock()
			o.client = client
			o.mu.Unlock()
			return awaitConnection(ctx, client, session.ConnectEndpoint())
		}},
		{PhaseScene, func(ctx context.Context) error {
			UpdateUI(o.ui, SearchingPopup, "Loading scene")
			var m *Manager
			if server != nil {
				m = server.Manager()
			}
			if err := o.scenes.LoadGameplay(ctx, m); err != nil {
				return fmt.Errorf("load gameplay: %w", err)
			}
			return nil
		}},
		{PhaseReplication, func(ctx context.Context) error {
			UpdateUI(o.ui, SearchingPopup, "Waiting for world")
			return WaitForGhostReplication(ctx, client, client)
		}},
		{PhaseSettle, func(ctx context.Context) error {
			return client.WaitTicks(ctx, 1)
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return err
		}
		if err := o.runPhase(ctx, step.phase, step.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	o.watchSession(session)
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, p Phase, run func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "arena.phase."+p.String())
	defer span.End()

	o.logger.Debug("arena: start phase", "phase", p.String())
	if err := run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) openSession(ctx context.Context, ct CreationType) (Session, error) {
	switch ct {
	case CreateSession:
		UpdateUI(o.ui, SearchingPopup, "Creating session")
		s, err := o.sessions.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return s, nil

	case JoinByCode:
		code := o.settings.SessionCode()
		if !ValidSessionCode(code) {
			return nil, fmt.Errorf("join session %q: %w", code, ErrInvalidSessionCode)
		}
		UpdateUI(o.ui, SearchingPopup, "Joining session "+code)
		s, err := o.sessions.JoinByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("join session %q: %w", code, err)
		}
		return s, nil

	case QuickJoin:
		UpdateUI(o.ui, SearchingPopup, "Searching for session")
		s, err := o.sessions.QuickJoin(ctx)
		if err != nil {
			return nil, fmt.Errorf("quick join: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("arena: unknown creation type %d", ct)
	}
}

// awaitConnection points the watchdog at endpoint and waits until it
// leaves the Connecting state.
func awaitConnection(ctx context.Context, client ClientWorld, endpoint string) error {
	wd := client.Watchdog()
	wd.Connect(endpoint)
	for {
		switch wd.State() {
		case Connected:
			return nil
		case NotConnected:
			return ErrConnectionLost
		}
		if err := client.WaitTicks(ctx, 1); err != nil {
			return err
		}
	}
}

// watchSession returns to the main menu when s is removed remotely.
func (o *Orchestrator) watchSession(s Session) {
	removed := s.Removed()
	if removed == nil {
		return
	}
	stop := make(chan struct{})

	o.mu.Lock()
	o.watchStop = stop
	o.mu.Unlock()

	go func() {
		select {
		case <-removed:
		case <-stop:
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		o.logger.Info("arena: session removed, returning to menu", "session", s.ID())
		if err := o.ReturnToMainMenu(context.Background()); err != nil {
			o.logger.Error("arena: returning to menu", "error", err)
		}
	}()
}

// ReturnToMainMenu cancels a game start in progress, leaves the session
// and tears down the local worlds. It is a no-op when nothing is loaded.
func (o *Orchestrator) ReturnToMainMenu(ctx context.Context) error {
	o.returning.Lock()
	defer o.returning.Unlock()

	o.mu.Lock()
	task := o.load
	o.mu.Unlock()

	if task != nil {
		task.cancel()
		select {
		case <-task.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	o.mu.Lock()
	idle := o.state == StateMainMenu && o.session == nil && o.server == nil && o.client == nil
	o.mu.Unlock()
	if idle {
		return nil
	}

	err := o.disconnectAndUnload(ctx)
	o.setState(StateMainMenu)
	return err
}

// Quit leaves the current game and stops the orchestrator.
func (o *Orchestrator) Quit(ctx context.Context) error {
	err := o.ReturnToMainMenu(ctx)
	o.quitOnce.Do(func() { close(o.done) })
	return err
}

// disconnectAndUnload tears down whatever the orchestrator currently holds.
// Every step runs even if an earlier one fails.
func (o *Orchestrator) disconnectAndUnload(ctx context.Context) error {
	o.mu.Lock()
	session, server, client, stop := o.session, o.server, o.client, o.watchStop
	loaded := session != nil || server != nil || client != nil
	o.session, o.server, o.client, o.watchStop = nil, nil, nil, nil
	o.mu.Unlock()

	if !loaded {
		return nil
	}
	if stop != nil {
		close(stop)
	}

	var errs []error
	if client != nil {
		if err := client.RequestDisconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
		// Give the disconnect a tick to go out before the world closes.
		if err := client.WaitTicks(ctx, 1); err != nil && !errors.Is(err, ErrSchedulerStopped) {
			errs = append(errs, err)
		}
	}

	if session != nil {
		if session.IsHost() {
			if err := session.Delete(ctx); err != nil {
				errs = append(errs, fmt.Errorf("delete session: %w", err))
			}
			if err := o.settings.SetSessionCode(""); err != nil {
				errs = append(errs, fmt.Errorf("clear session code: %w", err))
			}
		} else if err := session.Leave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("leave session: %w", err))
		}
	}

	if client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
	}
	if server != nil {
		if err := server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close server: %w", err))
		}
	}

	if err := o.scenes.UnloadGameplay(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unload gameplay: %w", err))
	}
	if err := o.scenes.LoadMenu(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load menu: %w", err))
	}
	return errors.Join(errs...)
}
