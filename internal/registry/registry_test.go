package registry

import (
	"testing"

	"github.com/lattice-mud/lattice/internal/world"
)

func TestVerbsInheritedShadowingOrder(t *testing.T) {
	weapon := world.ID("class-weapon")
	sword := world.ID("class-sword")

	snap := NewSnapshot([]Verb{
		{OwnerID: weapon, OwnerIsClass: true, Name: "wield", Patterns: []string{"wield", "<name>"}, Public: true},
		{OwnerID: sword, OwnerIsClass: true, Name: "wield", Patterns: []string{"wield", "<name>", "with", "<name>"}, Public: true},
	}, nil)

	// chain nearest-first: instance (none here), then Sword, then Weapon.
	verbs := snap.VerbsInherited([]world.ID{sword, weapon})
	if len(verbs) != 2 {
		t.Fatalf("VerbsInherited returned %d verbs, want 2", len(verbs))
	}
	if verbs[0].OwnerID != sword {
		t.Fatalf("VerbsInherited[0].OwnerID = %v, want %v (nearer class first)", verbs[0].OwnerID, sword)
	}
	if verbs[1].OwnerID != weapon {
		t.Fatalf("VerbsInherited[1].OwnerID = %v, want %v", verbs[1].OwnerID, weapon)
	}
}

func TestVerbsByFirstTokenFiltersCaseInsensitively(t *testing.T) {
	verbs := []Verb{
		{Name: "wield", Patterns: []string{"Wield", "<name>"}},
		{Name: "drop", Patterns: []string{"drop", "<name>"}},
	}
	got := VerbsByFirstToken(verbs, "WIELD")
	if len(got) != 1 || got[0].Name != "wield" {
		t.Fatalf("VerbsByFirstToken(WIELD) = %+v, want [wield]", got)
	}
}

func TestAllowedRequiresEveryPermission(t *testing.T) {
	v := Verb{Permissions: []string{"builder", "wizard"}}
	if Allowed(v, map[string]bool{"builder": true}) {
		t.Fatal("Allowed should require every listed permission")
	}
	if !Allowed(v, map[string]bool{"builder": true, "wizard": true}) {
		t.Fatal("Allowed should succeed when every permission is present")
	}
	pub := Verb{Public: true, Permissions: []string{"wizard"}}
	if !Allowed(pub, nil) {
		t.Fatal("a public verb should be allowed regardless of permissions")
	}
}

func TestSwapIsAtomicAgainstConcurrentReaders(t *testing.T) {
	owner := world.ID("obj-1")
	v1 := NewSnapshot([]Verb{{OwnerID: owner, Name: "ping", Patterns: []string{"ping"}, Body: "v1", Public: true}}, nil)
	v2 := NewSnapshot([]Verb{{OwnerID: owner, Name: "ping", Patterns: []string{"ping"}, Body: "v2", Public: true}}, nil)

	r := New(v1)
	held := r.Current()
	r.Swap(v2)

	// A snapshot a reader already obtained never changes underfoot.
	if got := held.VerbsOn(owner)[0].Body; got != "v1" {
		t.Fatalf("held snapshot mutated: body = %q, want v1", got)
	}
	// A fresh read observes the swap immediately.
	if got := r.Current().VerbsOn(owner)[0].Body; got != "v2" {
		t.Fatalf("Current() after swap = %q, want v2", got)
	}
}

func TestGetFunctionExactOwnerAndName(t *testing.T) {
	owner := world.ID("obj-1")
	snap := NewSnapshot(nil, []Function{
		{OwnerID: owner, Name: "area", Params: []string{"w", "h"}, Public: true, Body: "return w*h"},
	})
	f, ok := snap.GetFunction(owner, "area")
	if !ok || f.Body != "return w*h" {
		t.Fatalf("GetFunction(area) = %+v, %v, want the area function", f, ok)
	}
	if _, ok := snap.GetFunction(owner, "missing"); ok {
		t.Fatal("GetFunction(missing) should report not found")
	}
}
