package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oriumgames/arena"
	"go.uber.org/zap"
)

// ErrDialerClosed is returned after Close.
var ErrDialerClosed = errors.New("transport: dialer closed")

const (
	dialTimeout     = 10 * time.Second
	snapshotBacklog = 16
)

// Dialer is the client side of the transport. It implements arena.Driver.
//
// Connect dials in the background. A failed dial or a dropped connection
// leaves the dialer without a connection; the connection watchdog decides
// when to try again.
type Dialer struct {
	log    *zap.SugaredLogger
	dialer *websocket.Dialer
	// Path is appended to endpoints given without a scheme.
	Path string

	mu     sync.Mutex
	conn   *conn
	exists bool
	state  arena.ConnectionState
	id     arena.ConnectionID
	hasID  bool
	closed bool
	// gen identifies the current connection attempt so stale goroutines
	// cannot touch a newer connection.
	gen uint64

	snapshots chan arena.Snapshot
}

// NewDialer creates a dialer without a connection. A nil logger disables
// logging.
func NewDialer(log *zap.SugaredLogger) *Dialer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dialer{
		log:       log,
		dialer:    websocket.DefaultDialer,
		Path:      "/ws",
		snapshots: make(chan arena.Snapshot, snapshotBacklog),
	}
}

// Connection implements arena.Driver.
func (d *Dialer) Connection() (arena.ConnectionState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.exists
}

// ConnectionID implements arena.Driver.
func (d *Dialer) ConnectionID() (arena.ConnectionID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id, d.hasID
}

// Snapshots implements arena.Driver.
func (d *Dialer) Snapshots() <-chan arena.Snapshot {
	return d.snapshots
}

// Connect implements arena.Driver.
func (d *Dialer) Connect(endpoint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDialerClosed
	}
	if d.exists {
		return nil
	}
	d.exists = true
	d.state = arena.ConnectionConnecting
	d.gen++
	go d.dial(d.url(endpoint), d.gen)
	return nil
}

func (d *Dialer) url(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "ws://" + endpoint + d.Path
}

func (d *Dialer) dial(url string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	ws, _, err := d.dialer.DialContext(ctx, url, nil)

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return
	}
	if err != nil {
		d.exists = false
		d.state = arena.ConnectionUnknown
		d.mu.Unlock()
		d.log.Debugw("dial failed", "url", url, "error", err)
		return
	}
	c := newConn(ws)
	d.conn = c
	d.state = arena.ConnectionConnected
	d.mu.Unlock()

	d.log.Infow("connected", "url", url)
	go c.writePump()
	go d.readPump(c, gen)
}

func (d *Dialer) readPump(c *conn, gen uint64) {
	err := c.readLoop(func(frame []byte) {
		env, err := Decode(frame)
		if err != nil {
			d.log.Debugw("dropping malformed frame", "error", err)
			return
		}
		switch env.Type {
		case TypeWelcome:
			var w Welcome
			if err := env.Unmarshal(&w); err != nil {
				d.log.Warnw("malformed welcome", "error", err)
				return
			}
			d.mu.Lock()
			if gen == d.gen {
				d.id, d.hasID = w.ConnectionID, true
			}
			d.mu.Unlock()

		case TypeSnapshot:
			var snap arena.Snapshot
			if err := env.Unmarshal(&snap); err != nil {
				d.log.Debugw("dropping malformed snapshot", "error", err)
				return
			}
			d.deliver(snap)

		default:
			d.log.Debugw("dropping unexpected message", "type", env.Type.String())
		}
	})

	c.close()
	d.mu.Lock()
	if gen == d.gen {
		d.drop()
	}
	d.mu.Unlock()
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		d.log.Infow("connection lost", "error", err)
	}
}

// deliver hands snap to the client, dropping the oldest queued snapshot
// when the client falls behind.
func (d *Dialer) deliver(snap arena.Snapshot) {
	for {
		select {
		case d.snapshots <- snap:
			return
		default:
		}
		select {
		case <-d.snapshots:
		default:
		}
	}
}

// drop forgets the current connection. Callers hold d.mu.
func (d *Dialer) drop() {
	d.conn = nil
	d.exists = false
	d.hasID = false
	d.id = 0
	d.state = arena.ConnectionUnknown
}

// SendJoin implements arena.Driver.
func (d *Dialer) SendJoin(req arena.JoinRequest) error {
	data, err := Encode(TypeJoin, &req)
	if err != nil {
		return err
	}
	d.mu.Lock()
	c := d.conn
	d.mu.Unlock()
	if c == nil {
		return arena.ErrNoConnection
	}
	if !c.enqueue(data) {
		return errors.New("transport: send queue full")
	}
	return nil
}

// Disconnect implements arena.Driver.
func (d *Dialer) Disconnect() error {
	d.mu.Lock()
	c := d.conn
	d.gen++
	d.drop()
	d.mu.Unlock()

	if c != nil {
		// Best effort close frame; the server treats a dropped socket the same.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.close()
	}
	return nil
}

// Close implements arena.Driver.
func (d *Dialer) Close() error {
	err := d.Disconnect()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return err
}
