package scripthost

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/world"
)

type fakeBuiltins struct {
	properties map[world.ID]map[string]world.Value
	moved      []world.ID
}

func newFakeBuiltins() *fakeBuiltins {
	return &fakeBuiltins{properties: map[world.ID]map[string]world.Value{}}
}

func (f *fakeBuiltins) MoveObject(_ context.Context, objID, _ world.ID) error {
	f.moved = append(f.moved, objID)
	return nil
}

func (f *fakeBuiltins) GetProperty(objID world.ID, key string) world.Value {
	if bag, ok := f.properties[objID]; ok {
		return bag[key]
	}
	return world.Null()
}

func (f *fakeBuiltins) SetProperty(_ context.Context, objID world.ID, key string, value world.Value) error {
	if f.properties[objID] == nil {
		f.properties[objID] = map[string]world.Value{}
	}
	f.properties[objID][key] = value
	return nil
}

func (f *fakeBuiltins) GetExits(world.ID) []world.Thing { return nil }

func (f *fakeBuiltins) FindObjectsByClass(world.ID, bool) []world.Thing { return nil }

func (f *fakeBuiltins) ResolveObject(string, world.ID) (resolve.ResolveOutcome, world.Thing, []world.Thing) {
	return resolve.OutcomeNone, world.Thing{}, nil
}

func TestInvokeReturnsValue(t *testing.T) {
	h := New(newFakeBuiltins(), 0, 0)
	unit, err := h.Compile("ping", `return "v1"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out, err := h.Invoke(context.Background(), unit, InvocationContext{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "v1" {
		t.Fatalf("Invoke() = %q, want v1", out)
	}
}

func TestCompileCachesByHash(t *testing.T) {
	h := New(newFakeBuiltins(), 0, 0)
	a, err := h.Compile("ping", `return "v1"`)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Compile("ping-again", `return "v1"`)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("identical bodies should share one compiled unit")
	}
}

func TestInvokeSetsPropertyThroughBuiltin(t *testing.T) {
	fb := newFakeBuiltins()
	h := New(fb, 0, 0)
	unit, err := h.Compile("set-color", `set_property("obj-1", "color", "red")`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Invoke(context.Background(), unit, InvocationContext{}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	got := fb.GetProperty("obj-1", "color")
	if got.String() != "red" {
		t.Fatalf("color = %q, want red", got.String())
	}
}

func TestInvokeTimesOutOnInfiniteLoop(t *testing.T) {
	h := New(newFakeBuiltins(), 0, 30*time.Millisecond)
	unit, err := h.Compile("loop", `while true do end`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.Invoke(context.Background(), unit, InvocationContext{})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("error = %v, want a timeout-tagged error", err)
	}
}

func TestInvokeRejectsDepthAtCap(t *testing.T) {
	h := New(newFakeBuiltins(), 1, 0)
	unit, err := h.Compile("noop", `return "ok"`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.Invoke(context.Background(), unit, InvocationContext{Depth: 1})
	if err == nil {
		t.Fatal("expected a call-depth error when Depth already equals maxDepth")
	}
}
