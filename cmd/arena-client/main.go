// Command arena-client starts or joins an arena game from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/internal/config"
	"github.com/oriumgames/arena/internal/logging"
	"github.com/oriumgames/arena/internal/telemetry"
	"github.com/oriumgames/arena/scene"
	"github.com/oriumgames/arena/settings"
	"github.com/oriumgames/arena/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "arena-client:", err)
		os.Exit(1)
	}
}

// consolePopup prints the searching popup to the terminal.
type consolePopup struct{}

func (consolePopup) Show()                  { fmt.Println("searching...") }
func (consolePopup) Hide()                  {}
func (consolePopup) UpdateData(line string) { fmt.Println("  " + line) }

func run(args []string) error {
	var (
		cfg                 config.Client
		mode, code          string
		address, port, name string
	)
	fs := flag.NewFlagSet("arena-client", flag.ContinueOnError)
	fs.StringVar(&mode, "mode", "quick", "create, join or quick")
	fs.StringVar(&code, "code", "", "session code for -mode join")
	fs.StringVar(&address, "address", "", "server IP address")
	fs.StringVar(&port, "port", "", "server port")
	fs.StringVar(&name, "name", "", "player name")
	fs.BoolVar(&cfg.ThinClient, "thin", cfg.ThinClient, "run as a thin client")
	if err := config.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return err
	}

	ct, err := parseMode(mode)
	if err != nil {
		return err
	}

	logs := logging.New(logging.Config{File: cfg.LogFile, Debug: cfg.Debug})
	defer logs.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "arena-client")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, err := settings.OpenBolt(cfg.SettingsDB)
	if err != nil {
		return err
	}
	st, err := settings.Load(store)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer st.Close()

	st.OnChange(func(key string) {
		logs.Slog.Debug("setting changed", "key", key)
	})
	if name != "" {
		if err := st.SetPlayerName(name); err != nil {
			return err
		}
	}
	if code != "" {
		if err := st.SetSessionCode(code); err != nil {
			return err
		}
	}
	if address != "" || port != "" {
		if address == "" {
			address = st.Address()
		}
		if port == "" {
			port = st.Port()
		}
		if err := st.SetEndpoint(address, port); err != nil {
			logs.Slog.Warn("using default endpoint", "error", err)
		}
	}

	res, err := arena.LoadGameResources()
	if err != nil {
		return err
	}
	sc, err := scene.ReadFile(cfg.Scene)
	if err != nil {
		return err
	}

	ui := arena.NewUIRegistry()
	arena.RegisterUI[string](ui, arena.SearchingPopup, consolePopup{})

	orch, err := arena.NewOrchestrator(arena.OrchestratorConfig{
		Sessions: arena.NewDirectSessions(cfg.Listen, st.Endpoint),
		Worlds: &transport.Worlds{
			Resources:  res,
			TickRate:   cfg.TickRate,
			PlayerName: st.PlayerName(),
			Spectator:  cfg.Spectator,
			ThinClient: cfg.ThinClient,
			Events: func(ev arena.Event) {
				fmt.Printf("[tick %d] %s connection=%d %s\n", ev.Tick, ev.Kind, ev.Connection, ev.Name)
			},
			Log:    logs.Zap,
			Logger: logs.Slog,
		},
		Scenes:   scene.NewLoader(sc, logs.Slog),
		Settings: st,
		UI:       ui,
		Logger:   logs.Slog,
	})
	if err != nil {
		return err
	}

	menu := make(chan struct{}, 1)
	orch.OnStateChange(func(s arena.GlobalGameState) {
		if s == arena.StateMainMenu {
			select {
			case menu <- struct{}{}:
			default:
			}
		}
	})

	if err := orch.StartGame(ctx, ct); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if s, ok := orch.Session(); ok && s.IsHost() {
		fmt.Printf("hosting session %s on %s\n", s.Code(), s.ListenEndpoint())
	}
	fmt.Println("in game, press Ctrl+C to leave")

	select {
	case <-ctx.Done():
	case <-menu:
		fmt.Println("session ended")
	}

	qctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return orch.Quit(qctx)
}

func parseMode(mode string) (arena.CreationType, error) {
	switch mode {
	case "create":
		return arena.CreateSession, nil
	case "join":
		return arena.JoinByCode, nil
	case "quick":
		return arena.QuickJoin, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", mode)
	}
}
