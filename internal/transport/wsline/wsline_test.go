package wsline

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lattice-mud/lattice/internal/dispatch"
	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/scripthost"
	"github.com/lattice-mud/lattice/internal/session"
	"github.com/lattice-mud/lattice/internal/store/memstore"
	"github.com/lattice-mud/lattice/internal/world"
)

type noopBuiltins struct{}

func (noopBuiltins) MoveObject(context.Context, world.ID, world.ID) error { return nil }
func (noopBuiltins) GetProperty(world.ID, string) world.Value             { return world.Null() }
func (noopBuiltins) SetProperty(context.Context, world.ID, string, world.Value) error {
	return nil
}
func (noopBuiltins) GetExits(world.ID) []world.Thing                 { return nil }
func (noopBuiltins) FindObjectsByClass(world.ID, bool) []world.Thing { return nil }
func (noopBuiltins) ResolveObject(string, world.ID) (resolve.ResolveOutcome, world.Thing, []world.Thing) {
	return resolve.OutcomeNone, world.Thing{}, nil
}

func newTestRig(t *testing.T) (*world.Model, *dispatch.Dispatcher) {
	t.Helper()
	var n int
	minter := func() string {
		n++
		return "id" + strconv.Itoa(n)
	}
	m := world.New(memstore.New(), minter)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	root, err := m.CreateClass(ctx, "Object", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreatePlayer(ctx, root.ID, "Alice", "correct horse"); err != nil {
		t.Fatal(err)
	}
	reg := registry.New(registry.NewSnapshot(nil, nil))
	resolver := resolve.New(m, "", "system")
	host := scripthost.New(noopBuiltins{}, 0, 0)
	return m, dispatch.New(m, reg, resolver, host, nil)
}

func TestHandlerUpgradesAndEchoesWelcome(t *testing.T) {
	m, d := newTestRig(t)
	h := New(session.ModelPlayers{Model: m}, d, nil, nil, nil, "welcome to lattice", nil)

	srv := httptest.NewServer(h)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if strings.TrimSpace(string(data)) != "welcome to lattice" {
		t.Fatalf("welcome = %q, want \"welcome to lattice\"", data)
	}
}

func TestHandlerAcceptsGoodLogin(t *testing.T) {
	m, d := newTestRig(t)
	h := New(session.ModelPlayers{Model: m}, d, nil, nil, nil, "", nil)

	srv := httptest.NewServer(h)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("login Alice correct horse")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if strings.Contains(strings.ToLower(string(data)), "incorrect") {
		t.Fatalf("reply = %q, expected successful login", data)
	}
}
