// Package tcpline is the plain-TCP line-oriented transport: it accepts
// connections, wraps each one in a session.Conn, and drives the
// session's Feed/Pump loop until the connection closes.
package tcpline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-mud/lattice/internal/dispatch"
	"github.com/lattice-mud/lattice/internal/events"
	"github.com/lattice-mud/lattice/internal/logging"
	"github.com/lattice-mud/lattice/internal/session"
)

// netConn adapts a net.Conn to session.Conn.
type netConn struct {
	c net.Conn
}

func (n netConn) Write(p []byte) error {
	_, err := n.c.Write(p)
	return err
}

func (n netConn) Close() error       { return n.c.Close() }
func (n netConn) RemoteAddr() string { return n.c.RemoteAddr().String() }

// Listener accepts TCP connections and spins up a Session per
// connection, matching the teacher's accept-loop-spawns-goroutine shape.
type Listener struct {
	addr       string
	players    session.PlayerManager
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	registry   *session.Registry
	log        logging.Sink
	welcome    string

	mu       sync.Mutex
	sessions map[string]*session.Session
	ln       net.Listener
}

// New creates a Listener bound to addr once Serve is called. bus may be
// nil, in which case sessions never subscribe to script-triggered
// notifications (only their own dispatch replies). registry may also be
// nil, in which case a re-login never closes a stale session elsewhere.
func New(addr string, players session.PlayerManager, dispatcher *dispatch.Dispatcher, bus *events.Bus, registry *session.Registry, log logging.Sink, welcome string) *Listener {
	return &Listener{
		addr: addr, players: players, dispatcher: dispatcher, bus: bus, registry: registry, log: log, welcome: welcome,
		sessions: make(map[string]*session.Session),
	}
}

// Serve blocks accepting connections until ctx is cancelled or the
// listener errors.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("tcpline: listen %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if l.log != nil {
				l.log.Warnw("tcpline accept error", "error", err)
			}
			continue
		}
		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	sess := session.New(id, netConn{c: conn}, l.players, l.dispatcher)
	sess.SetBus(l.bus)
	sess.SetRegistry(l.registry)
	if l.registry != nil {
		l.registry.Add(sess)
	}

	l.mu.Lock()
	l.sessions[id] = sess
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.sessions, id)
		l.mu.Unlock()
		if l.registry != nil {
			l.registry.Remove(id)
		}
	}()

	if l.log != nil {
		l.log.Infow("tcpline connection opened", "remote", conn.RemoteAddr().String(), "session", id)
	}
	defer func() {
		sess.Close()
		conn.Close()
		if l.log != nil {
			l.log.Infow("tcpline connection closed", "session", id)
		}
	}()

	if l.welcome != "" {
		sess.Enqueue(l.welcome)
	}

	pumpDone := make(chan struct{})
	go func() {
		sess.Pump(ctx)
		close(pumpDone)
	}()

	buf := make([]byte, 4096)
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		n, err := conn.Read(buf)
		if n > 0 {
			sess.Feed(ctx, buf[:n])
		}
		if err != nil {
			break
		}
		if sess.State() == session.StateClosing {
			break
		}
	}
	<-pumpDone
}

// SessionCount returns the number of currently connected sessions,
// surfaced by internal/metrics.
func (l *Listener) SessionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
