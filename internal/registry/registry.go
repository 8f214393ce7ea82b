// Package registry holds the hot-swappable verb and function tables:
// code attached to objects and classes, looked up by the dispatcher and
// by script builtins. A Registry is published as an immutable Snapshot
// behind an atomic pointer so readers never observe a half-updated
// table during a hot reload.
package registry

import (
	"sort"
	"strings"

	"github.com/lattice-mud/lattice/internal/atomicref"
	"github.com/lattice-mud/lattice/internal/world"
)

// Verb is named code attached to an object or class, selected by
// matching a player-typed command pattern.
type Verb struct {
	OwnerID      world.ID // object or class this verb is defined on
	OwnerIsClass bool
	Name         string
	Patterns     []string // tokens: literals, "dobj", "prep", "iobj", "<name>"
	Permissions  []string // required capability tags; empty means public
	Public       bool
	Body         string
	BodyHash     string
	SourcePath   string // on-disk file this verb was loaded from, for diagnostics
}

// Function is named code attached to an object or class, callable from
// other scripts with typed parameters.
type Function struct {
	OwnerID      world.ID
	OwnerIsClass bool
	Name         string
	Params       []string
	Permissions  []string
	Public       bool
	Body         string
	BodyHash     string
	SourcePath   string
}

func (v Verb) allowed(permissions map[string]bool) bool {
	if v.Public || len(v.Permissions) == 0 {
		return true
	}
	for _, p := range v.Permissions {
		if !permissions[p] {
			return false
		}
	}
	return true
}

// functionKey identifies a function by its owner and name.
type functionKey struct {
	owner world.ID
	name  string
}

// Snapshot is an immutable point-in-time verb/function table. Build one
// with NewSnapshot and publish it via Registry.Swap; never mutate a
// Snapshot once built, since readers hold onto it without copying.
type Snapshot struct {
	byOwner    map[world.ID][]Verb   // owner id (object or class) -> verbs defined directly on it
	byName     map[string][]Verb     // verb name (first pattern token, lowercased) -> all verbs with that token, for prefix pruning
	functions  map[functionKey]Function
	verbCount  int
}

// NewSnapshot builds a Snapshot from a flat list of verbs and functions.
// Verbs are indexed both by owner (for inheritance walks) and by their
// first pattern token (for the dispatcher's fast per-object pruning).
func NewSnapshot(verbs []Verb, functions []Function) *Snapshot {
	s := &Snapshot{
		byOwner:   make(map[world.ID][]Verb),
		byName:    make(map[string][]Verb),
		functions: make(map[functionKey]Function, len(functions)),
	}
	for _, v := range verbs {
		s.byOwner[v.OwnerID] = append(s.byOwner[v.OwnerID], v)
		if len(v.Patterns) > 0 {
			key := strings.ToLower(v.Patterns[0])
			s.byName[key] = append(s.byName[key], v)
		}
		s.verbCount++
	}
	for _, f := range functions {
		s.functions[functionKey{owner: f.OwnerID, name: f.Name}] = f
	}
	return s
}

// VerbsOn returns the verbs defined directly on ownerID (object or
// class), in no particular order.
func (s *Snapshot) VerbsOn(ownerID world.ID) []Verb {
	return append([]Verb(nil), s.byOwner[ownerID]...)
}

// VerbsInherited walks chain (nearest owner first — typically the
// instance id followed by its class chain) and returns every verb
// reachable from it, nearest-definition first. A verb defined nearer in
// the chain with the same name shadows one further away; both are
// still returned here (in shadowing order) so the dispatcher's
// tie-breaking logic can apply the precise rule from its own pass.
func (s *Snapshot) VerbsInherited(chain []world.ID) []Verb {
	var out []Verb
	for _, owner := range chain {
		out = append(out, s.byOwner[owner]...)
	}
	return out
}

// VerbsByFirstToken narrows VerbsInherited to verbs whose first pattern
// token case-insensitively equals token, preserving chain order.
func VerbsByFirstToken(verbs []Verb, token string) []Verb {
	var out []Verb
	token = strings.ToLower(token)
	for _, v := range verbs {
		if len(v.Patterns) > 0 && strings.ToLower(v.Patterns[0]) == token {
			out = append(out, v)
		}
	}
	return out
}

// GetFunction looks up a function by exact owner and name.
func (s *Snapshot) GetFunction(ownerID world.ID, name string) (Function, bool) {
	f, ok := s.functions[functionKey{owner: ownerID, name: name}]
	return f, ok
}

// SortedOwners returns every owner id with at least one verb, sorted,
// for deterministic diagnostics and tests.
func (s *Snapshot) SortedOwners() []world.ID {
	out := make([]world.ID, 0, len(s.byOwner))
	for id := range s.byOwner {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VerbCount reports how many verbs the snapshot holds, for metrics.
func (s *Snapshot) VerbCount() int { return s.verbCount }

// FunctionCount reports how many functions the snapshot holds, for the
// admin inspection API.
func (s *Snapshot) FunctionCount() int { return len(s.functions) }

// Registry is the atomically swappable handle onto the current
// Snapshot. lookup_verbs_on, lookup_verbs_inherited and get_function are
// lock-free; swap is the only write path, reserved for the hot-reload
// supervisor.
type Registry struct {
	ref *atomicref.Ref[Snapshot]
}

// New creates a Registry published with an initial (possibly empty)
// snapshot.
func New(initial *Snapshot) *Registry {
	if initial == nil {
		initial = NewSnapshot(nil, nil)
	}
	return &Registry{ref: atomicref.New(initial)}
}

// Current returns the live snapshot. Callers should read through this
// once per operation rather than caching it, so a concurrent swap is
// observed promptly but never mid-operation.
func (r *Registry) Current() *Snapshot { return r.ref.Load() }

// Swap publishes a new snapshot atomically. Readers that already loaded
// the previous snapshot via Current complete their in-flight work
// against it; the very next Current call observes next.
func (r *Registry) Swap(next *Snapshot) *Snapshot { return r.ref.Swap(next) }

// LookupVerbsOn returns the verbs defined directly on ownerID.
func (r *Registry) LookupVerbsOn(ownerID world.ID) []Verb {
	return r.Current().VerbsOn(ownerID)
}

// LookupVerbsInherited walks chain and returns every reachable verb,
// nearest first.
func (r *Registry) LookupVerbsInherited(chain []world.ID) []Verb {
	return r.Current().VerbsInherited(chain)
}

// GetFunction looks up a function by owner and name against the live
// snapshot.
func (r *Registry) GetFunction(ownerID world.ID, name string) (Function, bool) {
	return r.Current().GetFunction(ownerID, name)
}

// Allowed reports whether a verb is callable by a player carrying the
// given permission set.
func Allowed(v Verb, permissions map[string]bool) bool { return v.allowed(permissions) }
