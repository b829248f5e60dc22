// Command arena-server runs an authoritative arena world behind a websocket
// endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/internal/config"
	"github.com/oriumgames/arena/internal/logging"
	"github.com/oriumgames/arena/internal/telemetry"
	"github.com/oriumgames/arena/scene"
	"github.com/oriumgames/arena/transport"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "arena-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var cfg config.Server
	fs := flag.NewFlagSet("arena-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address, e.g. :7979")
	fs.StringVar(&cfg.Scene, "scene", cfg.Scene, "scene file with spawn points")
	if err := config.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return err
	}

	logs := logging.New(logging.Config{File: cfg.LogFile, Debug: cfg.Debug})
	defer logs.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "arena-server")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logs.Zap.Warnw("otel shutdown", "error", err)
		}
	}()

	res, err := arena.LoadGameResources()
	if err != nil {
		return err
	}
	sc, err := scene.ReadFile(cfg.Scene)
	if err != nil {
		return err
	}

	mngr, err := arena.NewBuilder().
		Resources(res).
		TickRate(cfg.TickRate).
		Logger(logs.Slog).
		SpawnPoints(sc.ArenaSpawnPoints()...).
		Build()
	if err != nil {
		return err
	}
	srv := transport.NewServer(mngr, logs.Zap)
	mngr.SetReplicator(srv)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mngr.Metrics().Snapshot())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	hs := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs.Zap.Infof("arena-server listening on %s (scene %q, %d spawn points)",
			cfg.Addr, sc.Name, len(sc.SpawnPoints))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-mngr.Done():
			return errors.New("game loop stopped")
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logs.Zap.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := hs.Shutdown(sctx)
		_ = srv.Close()
		mngr.Shutdown()
		return err
	})

	mngr.Start()
	return g.Wait()
}
