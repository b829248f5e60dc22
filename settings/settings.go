// Package settings holds the persistent player settings of the client.
package settings

import (
	"errors"
	"fmt"
	"net"
	"os/user"
	"strconv"
	"sync"

	"github.com/oriumgames/arena"
)

const (
	// DefaultAddress is the server address used when none is configured.
	DefaultAddress = "127.0.0.1"
	// DefaultPort is the server port used when none is configured.
	DefaultPort = "7979"
	// DefaultPlayerName is used when the OS user cannot be determined.
	DefaultPlayerName = "Player"
)

// Setting keys, passed to change observers.
const (
	KeyPlayerName  = "player_name"
	KeySessionCode = "session_code"
	KeyAddress     = "address"
	KeyPort        = "port"
)

// ErrInvalidEndpoint is returned when an endpoint write is rejected. The
// endpoint is reset to the defaults in that case.
var ErrInvalidEndpoint = errors.New("settings: invalid endpoint")

// Settings is the set of player settings, written through to a Store.
// It implements arena.SessionSettings and is safe for concurrent use.
type Settings struct {
	store Store

	mu          sync.RWMutex
	playerName  string
	sessionCode string
	address     string
	port        string

	obsMu     sync.Mutex
	observers map[int]func(key string)
	nextObs   int
}

// Load reads the settings from store, falling back to defaults for values
// that are missing or invalid.
func Load(store Store) (*Settings, error) {
	s := &Settings{
		store:      store,
		playerName: defaultPlayerName(),
		address:    DefaultAddress,
		port:       DefaultPort,
		observers:  make(map[int]func(string)),
	}

	values := map[string]*string{
		KeyPlayerName:  &s.playerName,
		KeySessionCode: &s.sessionCode,
		KeyAddress:     &s.address,
		KeyPort:        &s.port,
	}
	for key, dst := range values {
		v, ok, err := store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if ok {
			*dst = v
		}
	}

	if !validEndpoint(s.address, s.port) {
		s.address, s.port = DefaultAddress, DefaultPort
	}
	if s.sessionCode != "" && !arena.ValidSessionCode(s.sessionCode) {
		s.sessionCode = ""
	}
	s.playerName = arena.TruncatePlayerName(s.playerName)
	return s, nil
}

func defaultPlayerName() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return DefaultPlayerName
	}
	return u.Username
}

// OnChange registers fn to be called with the key of every changed setting.
// The returned function unregisters it.
func (s *Settings) OnChange(fn func(key string)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Settings) notify(keys ...string) {
	s.obsMu.Lock()
	fns := make([]func(string), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, key := range keys {
		for _, fn := range fns {
			fn(key)
		}
	}
}

// PlayerName returns the display name sent when joining.
func (s *Settings) PlayerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerName
}

// SetPlayerName stores name, truncated to the join message limit.
func (s *Settings) SetPlayerName(name string) error {
	name = arena.TruncatePlayerName(name)

	s.mu.Lock()
	s.playerName = name
	err := s.store.Put(KeyPlayerName, name)
	s.mu.Unlock()

	s.notify(KeyPlayerName)
	return err
}

// SessionCode returns the code used to join a session. Empty when unset.
func (s *Settings) SessionCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionCode
}

// SetSessionCode stores code. An empty code clears it; any other value must
// be a valid session code.
func (s *Settings) SetSessionCode(code string) error {
	if code != "" && !arena.ValidSessionCode(code) {
		return fmt.Errorf("set session code %q: %w", code, arena.ErrInvalidSessionCode)
	}

	s.mu.Lock()
	s.sessionCode = code
	err := s.store.Put(KeySessionCode, code)
	s.mu.Unlock()

	s.notify(KeySessionCode)
	return err
}

// Address returns the server IP address.
func (s *Settings) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Port returns the server port.
func (s *Settings) Port() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Endpoint returns the server endpoint as host:port.
func (s *Settings) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return net.JoinHostPort(s.address, s.port)
}

// SetEndpoint stores the server address and port. The address must be an
// IP and the port a non-zero 16-bit number. An invalid pair resets both to
// DefaultAddress and DefaultPort and returns ErrInvalidEndpoint.
func (s *Settings) SetEndpoint(address, port string) error {
	var invalid error
	if !validEndpoint(address, port) {
		invalid = fmt.Errorf("%w: %q port %q", ErrInvalidEndpoint, address, port)
		address, port = DefaultAddress, DefaultPort
	}

	s.mu.Lock()
	s.address, s.port = address, port
	err := errors.Join(s.store.Put(KeyAddress, address), s.store.Put(KeyPort, port))
	s.mu.Unlock()

	s.notify(KeyAddress, KeyPort)
	return errors.Join(invalid, err)
}

// Close closes the underlying store.
func (s *Settings) Close() error {
	return s.store.Close()
}

func validEndpoint(address, port string) bool {
	if net.ParseIP(address) == nil {
		return false
	}
	p, err := strconv.ParseUint(port, 10, 16)
	return err == nil && p > 0
}
