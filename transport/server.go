package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/oriumgames/arena"
	"go.uber.org/zap"
)

// Server accepts websocket connections and feeds them to a Manager.
// It implements arena.Replicator.
type Server struct {
	manager  *arena.Manager
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[arena.ConnectionID]*conn
	closed bool
}

// NewServer creates a server for m. A nil logger disables logging.
func NewServer(m *arena.Manager, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		manager: m,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[arena.ConnectionID]*conn),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(ws)
	id, ok := s.register(c)
	if !ok {
		c.close()
		return
	}

	welcome, err := Encode(TypeWelcome, &Welcome{ConnectionID: id})
	if err != nil {
		s.log.Errorw("encoding welcome", "connection", id, "error", err)
		s.release(id)
		c.close()
		return
	}
	c.enqueue(welcome)
	s.manager.Connect(id)
	s.log.Infow("connection accepted", "connection", id, "remote", r.RemoteAddr)

	go c.writePump()
	go s.readPump(c, id)
}

// readPump feeds join requests to the manager and reports the disconnect
// once the connection fails.
func (s *Server) readPump(c *conn, id arena.ConnectionID) {
	defer func() {
		// Disconnect is queued before the id becomes reusable so the tick
		// sees the old connection leave before a new one arrives.
		s.manager.Disconnect(id)
		s.release(id)
		c.close()
		s.log.Infow("connection closed", "connection", id)
	}()

	err := c.readLoop(func(frame []byte) {
		env, err := Decode(frame)
		if err != nil {
			s.log.Debugw("dropping malformed frame", "connection", id, "error", err)
			return
		}
		switch env.Type {
		case TypeJoin:
			var req arena.JoinRequest
			if err := env.Unmarshal(&req); err != nil {
				s.log.Debugw("dropping malformed join", "connection", id, "error", err)
				return
			}
			s.manager.ReceiveJoin(id, req)
		default:
			s.log.Debugw("dropping unexpected message", "connection", id, "type", env.Type.String())
		}
	})
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Debugw("connection read failed", "connection", id, "error", err)
	}
}

// register assigns the smallest free connection id, starting at 1.
func (s *Server) register(c *conn) (arena.ConnectionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	id := arena.ConnectionID(1)
	for s.conns[id] != nil {
		id++
	}
	s.conns[id] = c
	return id, true
}

func (s *Server) release(id arena.ConnectionID) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Replicate implements arena.Replicator.
func (s *Server) Replicate(snap arena.Snapshot, recipients []arena.ConnectionID) {
	data, err := Encode(TypeSnapshot, &snap)
	if err != nil {
		s.log.Errorw("encoding snapshot", "tick", snap.Tick, "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range recipients {
		c := s.conns[id]
		if c == nil {
			continue
		}
		if !c.enqueue(data) {
			s.manager.Metrics().SnapshotsDropped.Add(1)
		}
	}
}

// Close closes every connection and rejects new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	return nil
}
