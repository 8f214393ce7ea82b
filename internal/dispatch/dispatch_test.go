package dispatch

import (
	"context"
	"strconv"
	"testing"

	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/scripthost"
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

// TestDispatchVerbShadowing builds a Weapon class with a "wield <name>"
// verb and a Sword subclass whose more specific "wield <name> with <name>"
// verb must win when the player supplies both a direct object and a
// prepositional phrase.
func TestDispatchVerbShadowing(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	root, err := m.CreateClass(ctx, "Object", "", "")
	if err != nil {
		t.Fatal(err)
	}
	weapon, err := m.CreateClass(ctx, "Weapon", root.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	sword, err := m.CreateClass(ctx, "Sword", weapon.ID, "")
	if err != nil {
		t.Fatal(err)
	}

	room, _ := m.CreateInstance(ctx, root.ID, "R1")
	player, err := m.CreatePlayer(ctx, root.ID, "P1", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Move(ctx, player.ID, room.ID); err != nil {
		t.Fatal(err)
	}

	blade, err := m.CreateInstance(ctx, sword.ID, "A Steel Sword")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Move(ctx, blade.ID, player.ID); err != nil {
		t.Fatal(err)
	}

	verbs := []registry.Verb{
		{
			OwnerID:      weapon.ID,
			OwnerIsClass: true,
			Name:         "wield-generic",
			Patterns:     []string{"wield", "<name>"},
			Public:       true,
			Body:         `return "You wield it generically."`,
		},
		{
			OwnerID:      sword.ID,
			OwnerIsClass: true,
			Name:         "wield-two-handed",
			Patterns:     []string{"wield", "<name>", "with", "<name>"},
			Public:       true,
			Body:         `return "You wield the blade with both hands."`,
		},
	}
	reg := registry.New(registry.NewSnapshot(verbs, nil))
	resolver := resolve.New(m, "", "system")
	host := scripthost.New(noopBuiltins{}, 0, 0)
	d := New(m, reg, resolver, host, nil)

	out := d.Dispatch(ctx, player.ID, "wield sword")
	if out.Kind != OutcomeHandled {
		t.Fatalf("wield sword: outcome = %v, err = %v", out.Kind, out.Err)
	}
	if out.Reply != "You wield it generically." {
		t.Fatalf("wield sword: reply = %q, want the generic verb's reply", out.Reply)
	}

	out = d.Dispatch(ctx, player.ID, "wield sword with hand")
	if out.Kind != OutcomeHandled {
		t.Fatalf("wield sword with hand: outcome = %v, err = %v", out.Kind, out.Err)
	}
	if out.Reply != "You wield the blade with both hands." {
		t.Fatalf("wield sword with hand: reply = %q, want the two-handed verb's reply", out.Reply)
	}
}

func TestDispatchNoMatch(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()
	root, _ := m.CreateClass(ctx, "Object", "", "")
	player, _ := m.CreatePlayer(ctx, root.ID, "P1", "secret")

	reg := registry.New(registry.NewSnapshot(nil, nil))
	resolver := resolve.New(m, "", "system")
	host := scripthost.New(noopBuiltins{}, 0, 0)
	d := New(m, reg, resolver, host, nil)

	out := d.Dispatch(ctx, player.ID, "frobnicate the widget")
	if out.Kind != OutcomeNoMatch {
		t.Fatalf("outcome = %v, want OutcomeNoMatch", out.Kind)
	}
}

func TestDispatchAmbiguousDirectObject(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()
	root, _ := m.CreateClass(ctx, "Object", "", "")
	room, _ := m.CreateInstance(ctx, root.ID, "R1")
	player, _ := m.CreatePlayer(ctx, root.ID, "P1", "secret")
	_ = m.Move(ctx, player.ID, room.ID)

	staff, _ := m.CreateInstance(ctx, root.ID, "A Wooden Staff")
	_ = m.Move(ctx, staff.ID, room.ID)
	sword, _ := m.CreateInstance(ctx, root.ID, "A Wooden Sword")
	_ = m.Move(ctx, sword.ID, room.ID)

	verbs := []registry.Verb{
		{OwnerID: player.ID, Name: "take", Patterns: []string{"take", "dobj"}, Public: true, Body: `return "taken"`},
	}
	reg := registry.New(registry.NewSnapshot(verbs, nil))
	resolver := resolve.New(m, "", "system")
	host := scripthost.New(noopBuiltins{}, 0, 0)
	d := New(m, reg, resolver, host, nil)

	out := d.Dispatch(ctx, player.ID, "take wood")
	if out.Kind != OutcomeAmbiguous {
		t.Fatalf("outcome = %v, want OutcomeAmbiguous", out.Kind)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("candidates = %+v, want 2", out.Candidates)
	}
}
