package tcpline

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

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

func TestListenerAcceptsAndSendsWelcome(t *testing.T) {
	m, d := newTestRig(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	l := New(ln.Addr().String(), session.ModelPlayers{Model: m}, d, nil, nil, nil, "welcome")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go l.handle(ctx, conn)
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	welcome, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome == "" {
		t.Fatal("expected a non-empty welcome line")
	}
}
