// Package session implements the per-connection state machine: line
// assembly off raw transport bytes, two-step login against the World
// Model's player store, the in-world dispatch loop, and a bounded
// outbound queue that fans notifications back out to the transport.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lattice-mud/lattice/internal/dispatch"
	"github.com/lattice-mud/lattice/internal/events"
	"github.com/lattice-mud/lattice/internal/world"
)

// State is one of the four points in a session's lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateInWorld
	StateClosing
)

// Conn is the transport-side contract a Session drives. Transports
// (tcpline, wsline, ...) each implement this without the orchestrator
// importing any transport package.
type Conn interface {
	Write(p []byte) error
	Close() error
	RemoteAddr() string
}

// PlayerManager is the narrow façade onto the World Model a session
// needs for authentication: looking a player up by name, checking a
// password in constant time, and rebinding a session identity.
type PlayerManager interface {
	FindPlayerByName(name string) (*world.Player, bool)
	CheckPassword(p *world.Player, candidate string) bool
	BindSession(ctx context.Context, playerID world.ID, sessionID string) (previous string, err error)
}

// ModelPlayers adapts a *world.Model to PlayerManager.
type ModelPlayers struct {
	Model *world.Model
}

func (m ModelPlayers) FindPlayerByName(name string) (*world.Player, bool) {
	return m.Model.FindPlayerByName(name)
}

func (m ModelPlayers) CheckPassword(p *world.Player, candidate string) bool {
	return world.CheckPassword(p, candidate)
}

func (m ModelPlayers) BindSession(ctx context.Context, playerID world.ID, sessionID string) (string, error) {
	return m.Model.BindSession(ctx, playerID, sessionID)
}

// DefaultOutboundQueueSize and DefaultMaxLoginAttempts match the values
// named in the external interface.
const (
	DefaultOutboundQueueSize = 256
	DefaultMaxLoginAttempts  = 5
)

// Registry tracks live sessions by id so that a successful re-login can
// find and close whatever stale session World.BindSession reports as
// displaced, regardless of which transport owns it.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Session)}
}

// Add records s under its own id, overwriting whatever was there.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.id] = s
}

// Remove drops id from the registry, a no-op if absent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Lookup returns the session registered under id, if any.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Session is one connection's state machine.
type Session struct {
	id         string
	conn       Conn
	players    PlayerManager
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	registry   *Registry

	mu            sync.Mutex
	state         State
	player        world.ID
	lineBuf       []byte
	pendingName   string // set after "login <name>" awaiting the password line
	loginAttempts int
	maxAttempts   int

	outbound  chan string
	truncated bool

	dispatchMu sync.Mutex // serializes in-flight dispatches per §5's ordering guarantee

	cancel context.CancelFunc
}

// New creates a Session bound to conn. id is an opaque per-connection
// identity (e.g. a UUID or incrementing counter) used for session
// rebinding on re-login.
func New(id string, conn Conn, players PlayerManager, dispatcher *dispatch.Dispatcher) *Session {
	s := &Session{
		id:          id,
		conn:        conn,
		players:     players,
		dispatcher:  dispatcher,
		state:       StateConnecting,
		maxAttempts: DefaultMaxLoginAttempts,
		outbound:    make(chan string, DefaultOutboundQueueSize),
	}
	s.state = StateAuthenticating
	return s
}

// SetBus wires the session to the notify/reload event bus. A session
// created without one (e.g. in unit tests) simply never subscribes.
func (s *Session) SetBus(bus *events.Bus) { s.bus = bus }

// SetRegistry wires the session into a cross-transport Registry so a
// later re-login elsewhere can find and close it. A session created
// without one (e.g. in unit tests) is simply never reachable for rebind.
func (s *Session) SetRegistry(registry *Registry) { s.registry = registry }

// Receive implements events.Subscriber, delivering a bus-fanned
// notification onto the session's own outbound queue.
func (s *Session) Receive(ev events.Event) { s.Enqueue(ev.Text) }

// Closed implements events.Subscriber.
func (s *Session) Closed() bool { return s.State() == StateClosing }

// ID returns the session's opaque identity.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Player returns the bound player id, or "" if not yet authenticated.
func (s *Session) Player() world.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// Feed assembles raw transport bytes into lines per §4.6: split on CR or
// LF, apply backspace (0x08 / 0x7F) to the in-progress buffer, drop
// control bytes below 0x20 except tab. Each assembled line is handed to
// HandleLine in submission order.
func (s *Session) Feed(ctx context.Context, data []byte) {
	s.mu.Lock()
	buf := s.lineBuf
	for _, b := range data {
		switch {
		case b == '\r' || b == '\n':
			line := string(buf)
			buf = buf[:0]
			s.lineBuf = buf
			s.mu.Unlock()
			if strings.TrimSpace(line) != "" {
				s.HandleLine(ctx, line)
			}
			s.mu.Lock()
			buf = s.lineBuf
		case b == 0x08 || b == 0x7f:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
			}
		case b == '\t':
			buf = append(buf, b)
		case b < 0x20:
			// drop other control bytes
		default:
			buf = append(buf, b)
		}
	}
	s.lineBuf = buf
	s.mu.Unlock()
}

// HandleLine is one assembled dispatch unit. Per §5's ordering
// guarantee, at most one HandleLine call is ever in flight for a given
// Session at a time.
func (s *Session) HandleLine(ctx context.Context, line string) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	switch s.State() {
	case StateAuthenticating:
		s.handleAuthLine(line)
	case StateInWorld:
		s.handleWorldLine(ctx, line)
	default:
		// connecting/closing: ignore input until the state advances
	}
}

func (s *Session) handleAuthLine(line string) {
	s.mu.Lock()
	pending := s.pendingName
	s.mu.Unlock()

	if pending == "" {
		fields := strings.Fields(line)
		if len(fields) >= 3 && strings.EqualFold(fields[0], "login") {
			s.tryLogin(fields[1], strings.Join(fields[2:], " "))
			return
		}
		if len(fields) == 2 && strings.EqualFold(fields[0], "login") {
			s.mu.Lock()
			s.pendingName = fields[1]
			s.mu.Unlock()
			s.Enqueue("Password:")
			return
		}
		s.Enqueue("Please log in: login <name> <password>")
		return
	}

	s.mu.Lock()
	s.pendingName = ""
	s.mu.Unlock()
	s.tryLogin(pending, line)
}

func (s *Session) tryLogin(name, password string) {
	player, ok := s.players.FindPlayerByName(name)
	authenticated := ok && s.players.CheckPassword(player, password)
	if !authenticated {
		s.mu.Lock()
		s.loginAttempts++
		attempts := s.loginAttempts
		s.mu.Unlock()
		if attempts >= s.maxAttempts {
			s.Enqueue("Too many failed attempts.")
			s.Close()
			return
		}
		s.Enqueue("Login incorrect.")
		return
	}

	// BindSession rebinds any stale session id recorded for this player;
	// look it up in the registry and close it before the new session
	// takes over, so a player is never logged in twice at once.
	previous, err := s.players.BindSession(context.Background(), player.ID, s.id)
	if err != nil {
		s.Enqueue("Login failed, try again.")
		return
	}
	if previous != "" && s.registry != nil {
		if old, ok := s.registry.Lookup(previous); ok {
			old.Close()
		}
	}

	s.mu.Lock()
	s.state = StateInWorld
	s.player = player.ID
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Subscribe(player.ID, s)
	}
	s.Enqueue(fmt.Sprintf("Welcome back, %s.", player.Name))
}

func (s *Session) handleWorldLine(ctx context.Context, line string) {
	dispatchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	outcome := s.dispatcher.Dispatch(dispatchCtx, s.Player(), line)
	switch outcome.Kind {
	case dispatch.OutcomeHandled:
		if outcome.Reply != "" {
			s.Enqueue(outcome.Reply)
		}
	case dispatch.OutcomeNoMatch:
		s.Enqueue("I don't understand that.")
	case dispatch.OutcomeAmbiguous:
		s.Enqueue(describeAmbiguous(outcome.Candidates))
	case dispatch.OutcomePermissionDenied:
		s.Enqueue("You can't do that.")
	case dispatch.OutcomeError:
		s.Enqueue(outcome.Reply)
	}
}

func describeAmbiguous(candidates []world.Thing) string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return "Which one did you mean: " + strings.Join(names, ", ") + "?"
}

// Enqueue places text on the session's bounded outbound queue. On
// overflow the oldest entry is dropped and a single "output truncated"
// marker is inserted in its place, per §4.6's non-blocking notify rule.
func (s *Session) Enqueue(text string) {
	select {
	case s.outbound <- text:
	default:
		select {
		case <-s.outbound:
		default:
		}
		s.mu.Lock()
		already := s.truncated
		s.truncated = true
		s.mu.Unlock()
		if !already {
			select {
			case s.outbound <- "[output truncated]":
			default:
			}
		}
		select {
		case s.outbound <- text:
		default:
			// the marker took the freed slot; drop the next-oldest entry
			// so the new text is still queued
			select {
			case <-s.outbound:
			default:
			}
			select {
			case s.outbound <- text:
			default:
			}
		}
	}
}

// Pump drains the outbound queue to the transport connection until ctx
// is cancelled or the session closes. It is meant to run as its own
// workflow per §5 ("each session's outbound pump are independent
// workflows").
func (s *Session) Pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.conn.Write([]byte(text + "\n")); err != nil {
				s.Close()
				return
			}
			s.mu.Lock()
			s.truncated = false
			s.mu.Unlock()
		}
	}
}

// Close transitions the session to closing, cancels any in-flight
// dispatch context owned by it, and closes the underlying connection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.bus != nil && s.player != "" {
		s.bus.Unsubscribe(s.player, s)
	}
	_ = s.conn.Close()
}
