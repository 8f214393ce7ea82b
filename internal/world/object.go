package world

import (
	"context"
	"encoding/json"

	"github.com/lattice-mud/lattice/internal/store"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

type objectDoc struct {
	ID         ID               `json:"id"`
	DBRef      DBRef            `json:"dbref"`
	ClassID    ID               `json:"classId"`
	Name       string           `json:"name"`
	Location   ID               `json:"location,omitempty"`
	Properties map[string]Value `json:"properties"`
	Flags      Flag             `json:"flags"`
}

func encodeObject(o *GameObject) ([]byte, error) {
	return json.Marshal(objectDoc{ID: o.ID, DBRef: o.DBRef, ClassID: o.ClassID, Name: o.Name, Location: o.Location, Properties: o.Properties, Flags: o.Flags})
}

func decodeObject(data []byte) (*GameObject, error) {
	var d objectDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if d.Properties == nil {
		d.Properties = map[string]Value{}
	}
	return &GameObject{ID: d.ID, DBRef: d.DBRef, ClassID: d.ClassID, Name: d.Name, Location: d.Location, Properties: d.Properties, Flags: d.Flags}, nil
}

// CreateInstance creates a new GameObject of the given class, initially
// nowhere (Location == "").
func (m *Model) CreateInstance(ctx context.Context, classID ID, name string) (*GameObject, error) {
	if _, ok := m.GetClass(classID); !ok {
		return nil, worlderr.New(worlderr.NotFound, "world: class %q not found", classID)
	}
	obj := &GameObject{
		ID:         ID(m.newID()),
		ClassID:    classID,
		Name:       name,
		Properties: map[string]Value{},
	}
	data, err := encodeObject(obj)
	if err != nil {
		return nil, worlderr.Wrap(worlderr.IOError, err, "world: encode object")
	}
	if err := m.st.Upsert(ctx, store.CollectionObjects, string(obj.ID), data); err != nil {
		return nil, persistErr(err)
	}
	m.loadObjectPtr(obj.ID).Store(obj)
	return obj, nil
}

// propertyBagFor returns the instance's own property bag and class chain
// for prototype lookup, regardless of whether id names a plain object or
// a player.
func (m *Model) propertyBagFor(id ID) (map[string]Value, ID, bool) {
	if obj, ok := m.GetObject(id); ok {
		return obj.Properties, obj.ClassID, true
	}
	if pl, ok := m.GetPlayer(id); ok {
		return pl.Properties, pl.ClassID, true
	}
	return nil, "", false
}

// OwnerChain returns id followed by its class chain (class, parent
// class, ..., root), the order the registry and verb lookup walk to
// resolve inheritance. Returns just [id] if id names nothing.
func (m *Model) OwnerChain(id ID) []ID {
	chain := []ID{id}
	_, classID, ok := m.propertyBagFor(id)
	if !ok {
		return chain
	}
	for _, c := range m.classChain(classID) {
		chain = append(chain, c.ID)
	}
	return chain
}

// GetProperty performs prototype-chain lookup: instance bag first, then
// class -> parent class -> ... -> root, returning the first hit. Absent
// anywhere in the chain returns Null.
func (m *Model) GetProperty(id ID, key string) Value {
	bag, classID, ok := m.propertyBagFor(id)
	if !ok {
		return Null()
	}
	if v, ok := bag[key]; ok && !v.IsUnset {
		return v
	}
	for _, c := range m.classChain(classID) {
		if v, ok := c.Properties[key]; ok && !v.IsUnset {
			return v
		}
	}
	return Null()
}

// SetProperty writes to the instance's own bag. Writing Unset removes the
// override so lookup falls through to the class chain again. Class
// property bags are never touched here — only explicit class-editing
// operations (SetClassProperty) mutate those.
func (m *Model) SetProperty(ctx context.Context, id ID, key string, value Value) error {
	unlock := m.lockOrdered(id)
	defer unlock()

	if obj, ok := m.GetObject(id); ok {
		next := cloneObject(obj)
		applyPropertyWrite(next.Properties, key, value)
		data, err := encodeObject(next)
		if err != nil {
			return worlderr.Wrap(worlderr.IOError, err, "world: encode object")
		}
		if err := m.st.Upsert(ctx, store.CollectionObjects, string(id), data); err != nil {
			return persistErr(err)
		}
		m.loadObjectPtr(id).Store(next)
		return nil
	}
	if pl, ok := m.GetPlayer(id); ok {
		next := clonePlayer(pl)
		applyPropertyWrite(next.Properties, key, value)
		data, err := encodePlayer(next)
		if err != nil {
			return worlderr.Wrap(worlderr.IOError, err, "world: encode player")
		}
		if err := m.st.Upsert(ctx, store.CollectionPlayers, string(id), data); err != nil {
			return persistErr(err)
		}
		m.loadPlayerPtr(id).Store(next)
		return nil
	}
	return worlderr.New(worlderr.NotFound, "world: object %q not found", id)
}

// SetFlags overwrites an instance's behavioral flag bits, used by
// world-authoring tooling (e.g. marking the one system object at boot).
func (m *Model) SetFlags(ctx context.Context, id ID, flags Flag) error {
	unlock := m.lockOrdered(id)
	defer unlock()

	if obj, ok := m.GetObject(id); ok {
		next := cloneObject(obj)
		next.Flags = flags
		data, err := encodeObject(next)
		if err != nil {
			return worlderr.Wrap(worlderr.IOError, err, "world: encode object")
		}
		if err := m.st.Upsert(ctx, store.CollectionObjects, string(id), data); err != nil {
			return persistErr(err)
		}
		m.loadObjectPtr(id).Store(next)
		return nil
	}
	return worlderr.New(worlderr.NotFound, "world: object %q not found", id)
}

func applyPropertyWrite(bag map[string]Value, key string, value Value) {
	if value.IsUnset {
		delete(bag, key)
		return
	}
	bag[key] = value
}

// SetClassProperty edits a class's own property bag — the only path by
// which class-level defaults change.
func (m *Model) SetClassProperty(ctx context.Context, classID ID, key string, value Value) error {
	c, ok := m.GetClass(classID)
	if !ok {
		return worlderr.New(worlderr.NotFound, "world: class %q not found", classID)
	}
	m.classMu.Lock()
	defer m.classMu.Unlock()
	if value.IsUnset {
		delete(c.Properties, key)
	} else {
		c.Properties[key] = value
	}
	data, err := encodeClass(c)
	if err != nil {
		return worlderr.Wrap(worlderr.IOError, err, "world: encode class")
	}
	if err := m.st.Upsert(ctx, store.CollectionClasses, string(classID), data); err != nil {
		return persistErr(err)
	}
	return nil
}

func cloneObject(o *GameObject) *GameObject {
	n := *o
	n.Properties = make(map[string]Value, len(o.Properties))
	for k, v := range o.Properties {
		n.Properties[k] = v
	}
	return &n
}

func cloneProperties(p map[string]Value) map[string]Value {
	out := make(map[string]Value, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
