package arena

import (
	"log/slog"
	"sync"
)

// ReconnectInterval is the number of ticks between connect attempts.
const ReconnectInterval = 120

// GameConnectionState is the client's view of its server connection.
type GameConnectionState uint8

const (
	NotConnected GameConnectionState = iota
	Connecting
	Connected
)

// String returns the string representation of the state.
func (s GameConnectionState) String() string {
	switch s {
	case NotConnected:
		return "NotConnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// ConnectionWatchdog keeps a client connected to its target endpoint.
//
// While it is Connecting or Connected it mirrors the transport connection
// each tick. When no usable connection exists it reports Connecting and
// retries once ReconnectInterval ticks have passed since the previous
// attempt, counting the one made by Connect. Run never blocks.
type ConnectionWatchdog struct {
	driver Driver
	logger *slog.Logger

	mu       sync.Mutex
	endpoint string
	state    GameConnectionState
	// sinceAttempt counts ticks run since the last connect attempt.
	sinceAttempt uint64

	observers observerList[GameConnectionState]
}

// NewConnectionWatchdog creates a watchdog in the NotConnected state.
func NewConnectionWatchdog(d Driver, logger *slog.Logger) *ConnectionWatchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionWatchdog{driver: d, logger: logger}
}

// State returns the current connection state.
func (w *ConnectionWatchdog) State() GameConnectionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Endpoint returns the target endpoint.
func (w *ConnectionWatchdog) Endpoint() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endpoint
}

// OnStateChange registers fn to be called after every state change.
// The returned function unregisters it.
func (w *ConnectionWatchdog) OnStateChange(fn func(GameConnectionState)) func() {
	return w.observers.add(fn)
}

// Connect points the watchdog at endpoint, moves it to Connecting and
// makes a first connect attempt right away.
func (w *ConnectionWatchdog) Connect(endpoint string) {
	w.mu.Lock()
	w.endpoint = endpoint
	w.sinceAttempt = 0
	w.mu.Unlock()

	w.setState(Connecting)
	w.attempt(endpoint)
}

// Reset stops watching and moves the watchdog to NotConnected.
func (w *ConnectionWatchdog) Reset() {
	w.setState(NotConnected)
}

// Run implements Runnable.
func (w *ConnectionWatchdog) Run(Tick) {
	w.mu.Lock()
	state, endpoint := w.state, w.endpoint
	if state != NotConnected {
		w.sinceAttempt++
	}
	w.mu.Unlock()

	if state == NotConnected {
		return
	}

	cs, ok := w.driver.Connection()
	if ok && cs != ConnectionUnknown {
		if cs == ConnectionConnected {
			w.mirror(Connected)
		} else {
			w.mirror(Connecting)
		}
		return
	}

	w.mirror(Connecting)
	if w.retryDue() {
		w.attempt(endpoint)
	}
}

// retryDue reports whether a new attempt may be made and, if so, restarts
// the interval.
func (w *ConnectionWatchdog) retryDue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == NotConnected || w.sinceAttempt < ReconnectInterval {
		return false
	}
	w.sinceAttempt = 0
	return true
}

func (w *ConnectionWatchdog) attempt(endpoint string) {
	w.logger.Debug("arena: connecting", "endpoint", endpoint)
	if err := w.driver.Connect(endpoint); err != nil {
		w.logger.Warn("arena: connect attempt failed", "endpoint", endpoint, "error", err)
	}
}

func (w *ConnectionWatchdog) setState(s GameConnectionState) {
	w.transition(s, true)
}

// mirror applies s unless the watchdog was reset in the meantime.
func (w *ConnectionWatchdog) mirror(s GameConnectionState) {
	w.transition(s, false)
}

func (w *ConnectionWatchdog) transition(s GameConnectionState, force bool) {
	w.mu.Lock()
	if !force && w.state == NotConnected {
		w.mu.Unlock()
		return
	}
	changed := w.state != s
	w.state = s
	w.mu.Unlock()

	if changed {
		w.observers.notify(s)
	}
}
