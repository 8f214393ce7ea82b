package world

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lattice-mud/lattice/internal/store"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

// IdentityMinter mints a new opaque object identity string. Supplied by
// the store backend (internal/store/boltstore.NewID in production).
type IdentityMinter func() string

// Model is the World Model: prototype-chain property lookup and
// containment geometry over objects persisted through a store.Store.
//
// Reads go through atomic.Pointer snapshots and never block. Writes take
// the per-object exclusive lock before swapping the snapshot and writing
// through to the store, so two writers never interleave on one object and
// a reader never observes a half-written value.
type Model struct {
	st    store.Store
	newID IdentityMinter

	classMu sync.RWMutex
	classes map[ID]*ObjectClass

	objLocksMu sync.Mutex
	objLocks   map[ID]*sync.Mutex

	objects sync.Map // ID -> *atomic.Pointer[GameObject]
	players sync.Map // ID -> *atomic.Pointer[Player]

	dbrefMu   sync.Mutex
	nextDBRef DBRef
}

// New creates a Model backed by st. Call Load before serving traffic.
func New(st store.Store, newID IdentityMinter) *Model {
	return &Model{
		st:       st,
		newID:    newID,
		classes:  make(map[ID]*ObjectClass),
		objLocks: make(map[ID]*sync.Mutex),
	}
}

func (m *Model) lockFor(id ID) *sync.Mutex {
	m.objLocksMu.Lock()
	defer m.objLocksMu.Unlock()
	l, ok := m.objLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.objLocks[id] = l
	}
	return l
}

func (m *Model) loadObjectPtr(id ID) *atomic.Pointer[GameObject] {
	v, _ := m.objects.LoadOrStore(id, &atomic.Pointer[GameObject]{})
	return v.(*atomic.Pointer[GameObject])
}

func (m *Model) loadPlayerPtr(id ID) *atomic.Pointer[Player] {
	v, _ := m.players.LoadOrStore(id, &atomic.Pointer[Player]{})
	return v.(*atomic.Pointer[Player])
}

// GetObject returns a lock-free snapshot of an object, or (nil, false) if
// it does not exist.
func (m *Model) GetObject(id ID) (*GameObject, bool) {
	p := m.loadObjectPtr(id)
	obj := p.Load()
	return obj, obj != nil
}

// GetPlayer returns a lock-free snapshot of a player object.
func (m *Model) GetPlayer(id ID) (*Player, bool) {
	p := m.loadPlayerPtr(id)
	pl := p.Load()
	return pl, pl != nil
}

// GetClass returns a class by ID.
func (m *Model) GetClass(id ID) (*ObjectClass, bool) {
	m.classMu.RLock()
	defer m.classMu.RUnlock()
	c, ok := m.classes[id]
	return c, ok
}

// FindClassByName looks up a class by exact, case-sensitive name.
// World-bootstrap tooling uses it to make class creation idempotent
// across restarts.
func (m *Model) FindClassByName(name string) (*ObjectClass, bool) {
	m.classMu.RLock()
	defer m.classMu.RUnlock()
	for _, c := range m.classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// AllObjects returns a snapshot slice of every live GameObject (not
// players). Used by find_by_class and the resolver's local search space.
func (m *Model) AllObjects() []*GameObject {
	var out []*GameObject
	m.objects.Range(func(_, v any) bool {
		if obj := v.(*atomic.Pointer[GameObject]).Load(); obj != nil {
			out = append(out, obj)
		}
		return true
	})
	return out
}

// AllPlayers returns a snapshot slice of every live Player.
func (m *Model) AllPlayers() []*Player {
	var out []*Player
	m.players.Range(func(_, v any) bool {
		if pl := v.(*atomic.Pointer[Player]).Load(); pl != nil {
			out = append(out, pl)
		}
		return true
	})
	return out
}

// lockOrdered locks the mutexes for the given ids in sorted order,
// deduplicated, and returns the unlock function. Used by Move to lock
// source, destination, and moving object together without risking
// deadlock against a concurrent move in the opposite direction.
func (m *Model) lockOrdered(ids ...ID) func() {
	uniq := make(map[ID]bool, len(ids))
	var sorted []ID
	for _, id := range ids {
		if id == "" || uniq[id] {
			continue
		}
		uniq[id] = true
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	locks := make([]*sync.Mutex, len(sorted))
	for i, id := range sorted {
		locks[i] = m.lockFor(id)
	}
	for _, l := range locks {
		l.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func persistErr(cause error) error {
	return worlderr.Wrap(worlderr.IOError, cause, "world: persist failed")
}
