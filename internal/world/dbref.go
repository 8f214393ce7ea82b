package world

import (
	"context"
	"encoding/json"

	"github.com/lattice-mud/lattice/internal/store"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

// EnsureDBRef assigns a DBRef to an object if it does not already have
// one. Allocation is monotonically increasing from a persisted counter;
// the bump and the object write share one store transaction so a crash
// between them cannot duplicate or skip a DBRef.
func (m *Model) EnsureDBRef(ctx context.Context, id ID) (DBRef, error) {
	m.dbrefMu.Lock()
	defer m.dbrefMu.Unlock()

	if obj, ok := m.GetObject(id); ok && obj.DBRef != NoDBRef {
		return obj.DBRef, nil
	}
	if pl, ok := m.GetPlayer(id); ok && pl.DBRef != NoDBRef {
		return pl.DBRef, nil
	}

	next := m.nextDBRef + 1
	counterData, err := json.Marshal(int64(next))
	if err != nil {
		return NoDBRef, worlderr.Wrap(worlderr.IOError, err, "world: encode dbref counter")
	}

	err = m.st.WithTx(ctx, func(tx store.Tx) error {
		if obj, ok := m.GetObject(id); ok {
			clone := cloneObject(obj)
			clone.DBRef = next
			data, err := encodeObject(clone)
			if err != nil {
				return err
			}
			if err := tx.Upsert(store.CollectionObjects, string(id), data); err != nil {
				return err
			}
			if err := tx.Upsert(store.CollectionCounters, "dbref", counterData); err != nil {
				return err
			}
			m.loadObjectPtr(id).Store(clone)
			return nil
		}
		if pl, ok := m.GetPlayer(id); ok {
			clone := clonePlayer(pl)
			clone.DBRef = next
			data, err := encodePlayer(clone)
			if err != nil {
				return err
			}
			if err := tx.Upsert(store.CollectionPlayers, string(id), data); err != nil {
				return err
			}
			if err := tx.Upsert(store.CollectionCounters, "dbref", counterData); err != nil {
				return err
			}
			m.loadPlayerPtr(id).Store(clone)
			return nil
		}
		return worlderr.New(worlderr.NotFound, "world: object %q not found", id)
	})
	if err != nil {
		if _, isE := err.(*worlderr.E); isE {
			return NoDBRef, err
		}
		return NoDBRef, persistErr(err)
	}
	m.nextDBRef = next
	return next, nil
}

// FindByDBRef does a linear scan for the unique object with the given
// DBRef. Call sites are rare enough (resolver keyword "#N") that this
// need not be indexed separately from the identity-keyed cache.
func (m *Model) FindByDBRef(ref DBRef) (Thing, bool) {
	for _, obj := range m.AllObjects() {
		if obj.DBRef == ref {
			return thingFromObject(obj), true
		}
	}
	for _, pl := range m.AllPlayers() {
		if pl.DBRef == ref {
			return thingFromPlayer(pl), true
		}
	}
	return Thing{}, false
}
