package arena

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// SessionCodeLength is the number of characters in a session code.
const SessionCodeLength = 6

// DefaultMaxPlayers is the session capacity used by LocalSessions.
const DefaultMaxPlayers = 16

var (
	// ErrInvalidSessionCode is returned for codes that are not six letters or digits.
	ErrInvalidSessionCode = errors.New("arena: invalid session code")
	// ErrNoSession is returned when no session matches a code.
	ErrNoSession = errors.New("arena: no such session")
	// ErrSessionFull is returned when a session has no free slot.
	ErrSessionFull = errors.New("arena: session is full")
	// ErrNotHost is returned when a member tries to delete a session.
	ErrNotHost = errors.New("arena: only the host can delete a session")
)

// ValidSessionCode reports whether code is exactly six letters or digits.
func ValidSessionCode(code string) bool {
	if utf8.RuneCountInString(code) != SessionCodeLength {
		return false
	}
	for _, r := range code {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

const sessionCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewSessionCode returns a random session code.
func NewSessionCode(rng *rand.Rand) string {
	var b [SessionCodeLength]byte
	for i := range b {
		b[i] = sessionCodeAlphabet[rng.IntN(len(sessionCodeAlphabet))]
	}
	return string(b[:])
}

// LocalSessions is an in-process session directory. Every session it hands
// out shares the same endpoints, which suits LAN play and tests.
type LocalSessions struct {
	listen, connect string
	maxPlayers      int
	rng             *rand.Rand

	mu       sync.Mutex
	sessions map[string]*sessionState
	order    []string
}

// NewLocalSessions creates a directory whose hosts listen on listen and
// whose members connect to connect.
func NewLocalSessions(listen, connect string) *LocalSessions {
	return &LocalSessions{
		listen:     listen,
		connect:    connect,
		maxPlayers: DefaultMaxPlayers,
		rng:        SharedRand(),
		sessions:   make(map[string]*sessionState),
	}
}

// SetMaxPlayers changes the capacity of sessions created afterwards.
func (d *LocalSessions) SetMaxPlayers(n int) {
	d.mu.Lock()
	d.maxPlayers = n
	d.mu.Unlock()
}

// Create implements SessionService.
func (d *LocalSessions) Create(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	code := NewSessionCode(d.rng)
	for d.sessions[code] != nil {
		code = NewSessionCode(d.rng)
	}
	st := &sessionState{
		id:         uuid.NewString(),
		code:       code,
		maxPlayers: d.maxPlayers,
		members:    1,
		removed:    make(chan struct{}),
	}
	d.sessions[code] = st
	d.order = append(d.order, code)

	return &localSession{dir: d, state: st, host: true}, nil
}

// JoinByCode implements SessionService.
func (d *LocalSessions) JoinByCode(ctx context.Context, code string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidSessionCode(code) {
		return nil, fmt.Errorf("join %q: %w", code, ErrInvalidSessionCode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.sessions[code]
	if st == nil {
		return nil, fmt.Errorf("join %q: %w", code, ErrNoSession)
	}
	if st.members >= st.maxPlayers {
		return nil, fmt.Errorf("join %q: %w", code, ErrSessionFull)
	}
	st.members++
	return &localSession{dir: d, state: st}, nil
}

// QuickJoin implements SessionService. It joins the oldest session with a
// free slot, or creates a new one.
func (d *LocalSessions) QuickJoin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	for _, code := range d.order {
		st := d.sessions[code]
		if st.members < st.maxPlayers {
			st.members++
			d.mu.Unlock()
			return &localSession{dir: d, state: st}, nil
		}
	}
	d.mu.Unlock()

	return d.Create(ctx)
}

// Len returns the number of open sessions.
func (d *LocalSessions) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *LocalSessions) remove(st *sessionState) {
	d.mu.Lock()
	delete(d.sessions, st.code)
	for i, code := range d.order {
		if code == st.code {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	st.once.Do(func() { close(st.removed) })
}

// sessionState is shared by every handle of one session.
type sessionState struct {
	id, code   string
	maxPlayers int
	members    int
	removed    chan struct{}
	once       sync.Once
}

// localSession is one member's handle on a LocalSessions session.
type localSession struct {
	dir   *LocalSessions
	state *sessionState
	host  bool
	left  atomic.Bool
}

func (s *localSession) ID() string               { return s.state.id }
func (s *localSession) Code() string             { return s.state.code }
func (s *localSession) IsHost() bool             { return s.host }
func (s *localSession) ConnectEndpoint() string  { return s.dir.connect }
func (s *localSession) Removed() <-chan struct{} { return s.state.removed }

func (s *localSession) ListenEndpoint() string {
	if !s.host {
		return ""
	}
	return s.dir.listen
}

// Leave implements Session. A host leaving removes the session.
func (s *localSession) Leave(ctx context.Context) error {
	if s.left.Swap(true) {
		return nil
	}
	if s.host {
		s.dir.remove(s.state)
		return nil
	}
	s.dir.mu.Lock()
	s.state.members--
	s.dir.mu.Unlock()
	return nil
}

// Delete implements Session.
func (s *localSession) Delete(ctx context.Context) error {
	if !s.host {
		return ErrNotHost
	}
	s.left.Store(true)
	s.dir.remove(s.state)
	return nil
}

// DirectSessions connects straight to a configured endpoint without any
// matchmaking. Create hosts on the listen endpoint; both joins connect to
// the endpoint returned by Endpoint at call time.
type DirectSessions struct {
	Listen   string
	Endpoint func() string
	rng      *rand.Rand
}

// NewDirectSessions creates a direct-connect session service.
func NewDirectSessions(listen string, endpoint func() string) *DirectSessions {
	return &DirectSessions{Listen: listen, Endpoint: endpoint, rng: SharedRand()}
}

// Create implements SessionService.
func (d *DirectSessions) Create(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &directSession{
		id:      uuid.NewString(),
		code:    NewSessionCode(d.rng),
		host:    true,
		listen:  d.Listen,
		connect: d.Endpoint(),
	}, nil
}

// JoinByCode implements SessionService. The code is validated but does not
// select anything; the configured endpoint decides where to connect.
func (d *DirectSessions) JoinByCode(ctx context.Context, code string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidSessionCode(code) {
		return nil, fmt.Errorf("join %q: %w", code, ErrInvalidSessionCode)
	}
	return &directSession{id: uuid.NewString(), code: code, connect: d.Endpoint()}, nil
}

// QuickJoin implements SessionService.
func (d *DirectSessions) QuickJoin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &directSession{id: uuid.NewString(), connect: d.Endpoint()}, nil
}

type directSession struct {
	id, code        string
	host            bool
	listen, connect string
}

func (s *directSession) ID() string                   { return s.id }
func (s *directSession) Code() string                 { return s.code }
func (s *directSession) IsHost() bool                 { return s.host }
func (s *directSession) ListenEndpoint() string       { return s.listen }
func (s *directSession) ConnectEndpoint() string      { return s.connect }
func (s *directSession) Leave(context.Context) error  { return nil }
func (s *directSession) Delete(context.Context) error { return nil }
func (s *directSession) Removed() <-chan struct{}     { return nil }
