package reload

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/scripthost"
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

type fakeLog struct {
	warnings []string
}

func (f *fakeLog) Warnw(msg string, kv ...interface{}) { f.warnings = append(f.warnings, msg) }
func (f *fakeLog) Infow(msg string, kv ...interface{}) {}

type fakeSub struct {
	calls int
	ok    bool
}

func (f *fakeSub) NotifyReload(ok bool, verbCount int, diags []Diagnostic) {
	f.calls++
	f.ok = ok
}

func writeRecord(t *testing.T, dir, filename string, rec record) {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadOnceBuildsSnapshotFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, "look.verb.json", record{
		OwnerID: "root", Name: "look", Patterns: []string{"look"}, Public: true,
		Body: `return "You see nothing special."`,
	})
	writeRecord(t, dir, "add.function.json", record{
		OwnerID: "root", Name: "add", Params: []string{"a", "b"},
		Body: `return args[1]`,
	})

	reg := registry.New(nil)
	host := scripthost.New(noopBuiltins{}, 0, 0)
	log := &fakeLog{}
	sub := &fakeSub{}
	sup := New(dir, reg, host, log, sub)

	if err := sup.LoadOnce(context.Background()); err != nil {
		t.Fatalf("LoadOnce: %v", err)
	}
	if reg.Current().VerbCount() != 1 {
		t.Fatalf("VerbCount() = %d, want 1", reg.Current().VerbCount())
	}
	if _, ok := reg.GetFunction("root", "add"); !ok {
		t.Fatal("expected function \"add\" on owner \"root\"")
	}
	if sub.calls != 1 || !sub.ok {
		t.Fatalf("sub = %+v, want one successful notify", sub)
	}
}

func TestLoadOnceKeepsCurrentRegistryOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, "good.verb.json", record{
		OwnerID: "root", Name: "look", Patterns: []string{"look"}, Public: true,
		Body: `return "fine"`,
	})
	if err := os.WriteFile(filepath.Join(dir, "broken.verb.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	initial := registry.NewSnapshot([]registry.Verb{{OwnerID: "root", Name: "old", Patterns: []string{"old"}, Public: true, Body: "return 1"}}, nil)
	reg := registry.New(initial)
	host := scripthost.New(noopBuiltins{}, 0, 0)
	log := &fakeLog{}
	sub := &fakeSub{}
	sup := New(dir, reg, host, log, sub)

	if err := sup.LoadOnce(context.Background()); err == nil {
		t.Fatal("expected LoadOnce to fail on the broken file")
	}
	if reg.Current() != initial {
		t.Fatal("registry should be unchanged after a failed reload")
	}
	if sub.calls != 1 || sub.ok {
		t.Fatalf("sub = %+v, want one failed notify", sub)
	}
	if len(log.warnings) == 0 {
		t.Fatal("expected a warning to be logged")
	}
}

func TestLoadOnceRejectsUncompilableBody(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, "bad.verb.json", record{
		OwnerID: "root", Name: "bad", Patterns: []string{"bad"}, Public: true,
		Body: `this is not lua (((`,
	})

	reg := registry.New(nil)
	host := scripthost.New(noopBuiltins{}, 0, 0)
	sup := New(dir, reg, host, &fakeLog{}, &fakeSub{})

	if err := sup.LoadOnce(context.Background()); err == nil {
		t.Fatal("expected a compile-error diagnostic")
	}
}
