package world

import (
	"context"

	"github.com/lattice-mud/lattice/internal/store"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

// isAncestorInContainment reports whether walking up the Location chain
// from start ever reaches ancestor.
func (m *Model) isAncestorInContainment(ancestor, start ID) bool {
	cur := start
	seen := map[ID]bool{}
	for cur != "" {
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			return false // defensive: already-broken cycle, stop rather than loop forever
		}
		seen[cur] = true
		loc, ok := m.locationOf(cur)
		if !ok {
			return false
		}
		cur = loc
	}
	return false
}

func (m *Model) locationOf(id ID) (ID, bool) {
	if obj, ok := m.GetObject(id); ok {
		return obj.Location, true
	}
	if pl, ok := m.GetPlayer(id); ok {
		return pl.Location, true
	}
	return "", false
}

// Move relocates an object into new_location. It fails with Conflict if
// new_location is the object itself or a descendant of the object in the
// containment forest (which would create a cycle). The edit locks source,
// destination, and the moving object together in identity order so
// concurrent moves never deadlock, and is atomic against readers: a
// concurrent GetObject/GetPlayer call always sees the object at its old
// location or its new one, never a half-applied state.
func (m *Model) Move(ctx context.Context, objID ID, newLocation ID) error {
	oldLoc, ok := m.locationOf(objID)
	if !ok {
		return worlderr.New(worlderr.NotFound, "world: object %q not found", objID)
	}

	unlock := m.lockOrdered(objID, oldLoc, newLocation)
	defer unlock()

	if newLocation != "" {
		if newLocation == objID {
			return worlderr.New(worlderr.Conflict, "world: cannot move object into itself")
		}
		if m.isAncestorInContainment(objID, newLocation) {
			return worlderr.New(worlderr.Conflict, "world: move would create a containment cycle")
		}
	}

	if obj, ok := m.GetObject(objID); ok {
		next := cloneObject(obj)
		next.Location = newLocation
		data, err := encodeObject(next)
		if err != nil {
			return worlderr.Wrap(worlderr.IOError, err, "world: encode object")
		}
		if err := m.st.Upsert(ctx, store.CollectionObjects, string(objID), data); err != nil {
			return persistErr(err)
		}
		m.loadObjectPtr(objID).Store(next)
		return nil
	}
	if pl, ok := m.GetPlayer(objID); ok {
		next := clonePlayer(pl)
		next.Location = newLocation
		data, err := encodePlayer(next)
		if err != nil {
			return worlderr.Wrap(worlderr.IOError, err, "world: encode player")
		}
		if err := m.st.Upsert(ctx, store.CollectionPlayers, string(objID), data); err != nil {
			return persistErr(err)
		}
		m.loadPlayerPtr(objID).Store(next)
		return nil
	}
	return worlderr.New(worlderr.NotFound, "world: object %q not found", objID)
}

// Thing is the minimal view the resolver and dispatcher need of something
// in the world, whether it's a plain GameObject or a Player.
type Thing struct {
	ID       ID
	DBRef    DBRef
	ClassID  ID
	Name     string
	Location ID
	IsPlayer bool
	Player   *Player // non-nil when IsPlayer
	Object   *GameObject
}

func thingFromObject(o *GameObject) Thing {
	return Thing{ID: o.ID, DBRef: o.DBRef, ClassID: o.ClassID, Name: o.Name, Location: o.Location, Object: o}
}

func thingFromPlayer(p *Player) Thing {
	return Thing{ID: p.ID, DBRef: p.DBRef, ClassID: p.ClassID, Name: p.Name, Location: p.Location, IsPlayer: true, Player: p, Object: &p.GameObject}
}

// GetThing returns the unified Thing view of any object or player id.
func (m *Model) GetThing(id ID) (Thing, bool) {
	if obj, ok := m.GetObject(id); ok {
		return thingFromObject(obj), true
	}
	if pl, ok := m.GetPlayer(id); ok {
		return thingFromPlayer(pl), true
	}
	return Thing{}, false
}

// ContentsOf returns every object and player whose Location equals the
// given location id.
func (m *Model) ContentsOf(location ID) []Thing {
	var out []Thing
	for _, obj := range m.AllObjects() {
		if obj.Location == location {
			out = append(out, thingFromObject(obj))
		}
	}
	for _, pl := range m.AllPlayers() {
		if pl.Location == location {
			out = append(out, thingFromPlayer(pl))
		}
	}
	return out
}

// FindByClass returns every Thing whose class is classID, optionally
// including instances of descendant classes.
func (m *Model) FindByClass(classID ID, includeSubclasses bool) []Thing {
	matches := func(cid ID) bool {
		if cid == classID {
			return true
		}
		if !includeSubclasses {
			return false
		}
		for _, c := range m.classChain(cid) {
			if c.ID == classID {
				return true
			}
		}
		return false
	}
	var out []Thing
	for _, obj := range m.AllObjects() {
		if matches(obj.ClassID) {
			out = append(out, thingFromObject(obj))
		}
	}
	for _, pl := range m.AllPlayers() {
		if matches(pl.ClassID) {
			out = append(out, thingFromPlayer(pl))
		}
	}
	return out
}
