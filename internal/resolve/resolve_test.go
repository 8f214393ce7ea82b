package resolve

import (
	"context"
	"strconv"
	"testing"

	"github.com/lattice-mud/lattice/internal/store/memstore"
	"github.com/lattice-mud/lattice/internal/world"
)

func newTestModel(t *testing.T) *world.Model {
	t.Helper()
	var n int
	minter := func() string {
		n++
		return "id" + strconv.Itoa(n)
	}
	m := world.New(memstore.New(), minter)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func mustClass(t *testing.T, m *world.Model, name, parent string) *world.ObjectClass {
	t.Helper()
	c, err := m.CreateClass(context.Background(), name, world.ID(parent), "")
	if err != nil {
		t.Fatalf("CreateClass(%s): %v", name, err)
	}
	return c
}

func TestResolveKeywordLookup(t *testing.T) {
	m := newTestModel(t)
	root := mustClass(t, m, "Object", "")
	ctx := context.Background()

	room, err := m.CreateInstance(ctx, root.ID, "R1")
	if err != nil {
		t.Fatal(err)
	}
	player, err := m.CreatePlayer(ctx, root.ID, "P1", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Move(ctx, player.ID, room.ID); err != nil {
		t.Fatal(err)
	}
	item, err := m.CreateInstance(ctx, root.ID, "I1")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Move(ctx, item.ID, room.ID); err != nil {
		t.Fatal(err)
	}

	r := New(m, "", "system")

	got := r.Resolve("me", player.ID, "", TypeFilter{})
	if len(got) != 1 || got[0].ID != player.ID {
		t.Fatalf("resolve(me) = %+v, want [%s]", got, player.ID)
	}

	got = r.Resolve("here", player.ID, "", TypeFilter{})
	if len(got) != 1 || got[0].ID != room.ID {
		t.Fatalf("resolve(here) = %+v, want [%s]", got, room.ID)
	}
}

func TestResolveUniquePrefixAndAmbiguity(t *testing.T) {
	m := newTestModel(t)
	root := mustClass(t, m, "Object", "")
	ctx := context.Background()

	room, _ := m.CreateInstance(ctx, root.ID, "R1")
	player, _ := m.CreatePlayer(ctx, root.ID, "P1", "secret")
	_ = m.Move(ctx, player.ID, room.ID)

	staff, _ := m.CreateInstance(ctx, root.ID, "A Wooden Staff")
	_ = m.Move(ctx, staff.ID, room.ID)

	r := New(m, "", "system")

	outcome, one, _ := r.ResolveUnique("wood", player.ID, room.ID, TypeFilter{})
	if outcome != OutcomeOne || one.ID != staff.ID {
		t.Fatalf("resolve_unique(wood) = outcome %v one %+v, want one(staff)", outcome, one)
	}

	sword, _ := m.CreateInstance(ctx, root.ID, "A Wooden Sword")
	_ = m.Move(ctx, sword.ID, room.ID)

	outcome, _, candidates := r.ResolveUnique("wood", player.ID, room.ID, TypeFilter{})
	if outcome != OutcomeAmbiguous || len(candidates) != 2 {
		t.Fatalf("resolve_unique(wood) after adding sword = outcome %v candidates %+v, want ambiguous(2)", outcome, candidates)
	}
}

func TestResolveAliasMatch(t *testing.T) {
	m := newTestModel(t)
	root := mustClass(t, m, "Object", "")
	ctx := context.Background()

	room, _ := m.CreateInstance(ctx, root.ID, "R1")
	player, _ := m.CreatePlayer(ctx, root.ID, "P1", "secret")
	_ = m.Move(ctx, player.ID, room.ID)

	staff, _ := m.CreateInstance(ctx, root.ID, "A Wooden Staff")
	_ = m.Move(ctx, staff.ID, room.ID)
	if err := m.SetProperty(ctx, staff.ID, "aliases", world.Array([]world.Value{world.String("stick"), world.String("staff")})); err != nil {
		t.Fatal(err)
	}

	r := New(m, "", "system")
	outcome, one, _ := r.ResolveUnique("stick", player.ID, room.ID, TypeFilter{})
	if outcome != OutcomeOne || one.ID != staff.ID {
		t.Fatalf("resolve_unique(stick) = outcome %v one %+v, want one(staff)", outcome, one)
	}
}

func TestResolveExitAbbreviation(t *testing.T) {
	m := newTestModel(t)
	root := mustClass(t, m, "Object", "")
	exitClass := mustClass(t, m, "obj_exit", "")
	ctx := context.Background()

	room, _ := m.CreateInstance(ctx, root.ID, "R1")
	player, _ := m.CreatePlayer(ctx, root.ID, "P1", "secret")
	_ = m.Move(ctx, player.ID, room.ID)

	exit, _ := m.CreateInstance(ctx, exitClass.ID, "North Exit")
	_ = m.Move(ctx, exit.ID, room.ID)
	if err := m.SetProperty(ctx, exit.ID, "direction", world.String("north")); err != nil {
		t.Fatal(err)
	}

	r := New(m, exitClass.ID, "system")
	outcome, one, _ := r.ResolveUnique("n", player.ID, room.ID, TypeFilter{})
	if outcome != OutcomeOne || one.ID != exit.ID {
		t.Fatalf("resolve_unique(n) = outcome %v one %+v, want one(exit)", outcome, one)
	}
}

func TestResolveDBRef(t *testing.T) {
	m := newTestModel(t)
	root := mustClass(t, m, "Object", "")
	ctx := context.Background()

	obj, _ := m.CreateInstance(ctx, root.ID, "Thing")
	ref, err := m.EnsureDBRef(ctx, obj.ID)
	if err != nil {
		t.Fatal(err)
	}

	r := New(m, "", "system")
	got := r.Resolve("#"+strconv.FormatInt(int64(ref), 10), obj.ID, "", TypeFilter{})
	if len(got) != 1 || got[0].ID != obj.ID {
		t.Fatalf("resolve(#N) = %+v, want [%s]", got, obj.ID)
	}
}
