// Package wsline is the WebSocket transport: each text frame carries
// one or more raw command lines, upgraded and fed through the same
// session.Session line-assembly and dispatch path tcpline uses, so the
// Session Orchestrator stays transport-agnostic.
package wsline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lattice-mud/lattice/internal/dispatch"
	"github.com/lattice-mud/lattice/internal/events"
	"github.com/lattice-mud/lattice/internal/logging"
	"github.com/lattice-mud/lattice/internal/session"
)

// wsConn adapts a *websocket.Conn to session.Conn, serializing writes
// behind a mutex since gorilla/websocket connections aren't safe for
// concurrent writers.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) Write(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, p)
}

func (w *wsConn) Close() error       { return w.conn.Close() }
func (w *wsConn) RemoteAddr() string { return w.conn.RemoteAddr().String() }

// Handler upgrades incoming HTTP requests to WebSocket connections and
// drives a Session per connection.
type Handler struct {
	players    session.PlayerManager
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	registry   *session.Registry
	log        logging.Sink
	welcome    string
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New creates a Handler. bus may be nil. registry may also be nil, in
// which case a re-login never closes a stale session elsewhere.
// corsOrigins, when non-empty, restricts the Upgrader's CheckOrigin
// allowlist; an empty list allows any origin.
func New(players session.PlayerManager, dispatcher *dispatch.Dispatcher, bus *events.Bus, registry *session.Registry, log logging.Sink, welcome string, corsOrigins []string) *Handler {
	h := &Handler{
		players: players, dispatcher: dispatcher, bus: bus, registry: registry, log: log, welcome: welcome,
		sessions: make(map[string]*session.Session),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(corsOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range corsOrigins {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeHTTP implements http.Handler, upgrading the request and running
// the connection's read loop until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warnw("wsline upgrade failed", "error", err)
		}
		return
	}
	go h.handle(r.Context(), conn)
}

func (h *Handler) handle(ctx context.Context, conn *websocket.Conn) {
	id := uuid.NewString()
	sess := session.New(id, &wsConn{conn: conn}, h.players, h.dispatcher)
	sess.SetBus(h.bus)
	sess.SetRegistry(h.registry)
	if h.registry != nil {
		h.registry.Add(sess)
	}

	h.mu.Lock()
	h.sessions[id] = sess
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
		if h.registry != nil {
			h.registry.Remove(id)
		}
	}()

	if h.log != nil {
		h.log.Infow("wsline connection opened", "remote", conn.RemoteAddr().String(), "session", id)
	}
	defer func() {
		sess.Close()
		conn.Close()
		if h.log != nil {
			h.log.Infow("wsline connection closed", "session", id)
		}
	}()

	if h.welcome != "" {
		sess.Enqueue(h.welcome)
	}

	pumpDone := make(chan struct{})
	go func() {
		sess.Pump(ctx)
		close(pumpDone)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		sess.Feed(ctx, append(data, '\n'))
		if sess.State() == session.StateClosing {
			break
		}
	}
	<-pumpDone
}

// SessionCount returns the number of currently connected sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
