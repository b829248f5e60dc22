package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/oriumgames/arena"
	"go.uber.org/zap"
)

// Worlds creates websocket backed server and client worlds.
// It implements arena.Worlds.
type Worlds struct {
	Resources arena.GameResources
	TickRate  time.Duration

	PlayerName string
	Spectator  bool
	ThinClient bool

	// Events receives server events seen by client worlds. Optional.
	Events func(arena.Event)

	// Log is used by the transport, Logger by the worlds themselves.
	Log    *zap.SugaredLogger
	Logger *slog.Logger
}

// CreateServer implements arena.Worlds. The server world serves websockets
// on listen under /ws and ticks until closed.
func (w *Worlds) CreateServer(ctx context.Context, listen string) (arena.ServerWorld, error) {
	m, err := arena.NewBuilder().
		Resources(w.Resources).
		TickRate(w.TickRate).
		Logger(w.Logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build server world: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", listen)
	if err != nil {
		m.Shutdown()
		return nil, fmt.Errorf("listen on %s: %w", listen, err)
	}

	srv := NewServer(m, w.Log)
	m.SetReplicator(srv)

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	sw := &serverWorld{manager: m, server: srv, http: hs, served: make(chan error, 1)}
	go func() {
		err := hs.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		sw.served <- err
	}()
	m.Start()

	if w.Log != nil {
		w.Log.Infow("server world listening", "addr", ln.Addr().String())
	}
	return sw, nil
}

// CreateClient implements arena.Worlds. The client ticks right away but
// only connects once its watchdog is pointed at an endpoint.
func (w *Worlds) CreateClient(ctx context.Context) (arena.ClientWorld, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := arena.NewClient(arena.ClientConfig{
		Driver:     NewDialer(w.Log),
		Resources:  w.Resources,
		Logger:     w.Logger,
		TickRate:   w.TickRate,
		PlayerName: w.PlayerName,
		Spectator:  w.Spectator,
		ThinClient: w.ThinClient,
	})
	if w.Events != nil {
		c.OnEvent(w.Events)
	}
	c.Start()
	return c, nil
}

type serverWorld struct {
	manager *arena.Manager
	server  *Server
	http    *http.Server
	served  chan error
}

func (s *serverWorld) Manager() *arena.Manager {
	return s.manager
}

// Close stops accepting connections, closes the open ones and stops the tick.
func (s *serverWorld) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.http.Shutdown(ctx)
	_ = s.server.Close()
	s.manager.Shutdown()
	if serr := <-s.served; serr != nil {
		err = errors.Join(err, serr)
	}
	return err
}
