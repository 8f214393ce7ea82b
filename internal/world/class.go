package world

import (
	"context"
	"encoding/json"

	"github.com/lattice-mud/lattice/internal/store"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

type classDoc struct {
	ID          ID               `json:"id"`
	Name        string           `json:"name"`
	ParentID    ID               `json:"parentId,omitempty"`
	Description string           `json:"description"`
	Properties  map[string]Value `json:"properties"`
}

func encodeClass(c *ObjectClass) ([]byte, error) {
	return json.Marshal(classDoc{ID: c.ID, Name: c.Name, ParentID: c.ParentID, Description: c.Description, Properties: c.Properties})
}

func decodeClass(data []byte) (*ObjectClass, error) {
	var d classDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if d.Properties == nil {
		d.Properties = map[string]Value{}
	}
	return &ObjectClass{ID: d.ID, Name: d.Name, ParentID: d.ParentID, Description: d.Description, Properties: d.Properties}, nil
}

// Load reads every class, object, and player from the store into the
// in-memory cache. Call once at boot before serving traffic.
func (m *Model) Load(ctx context.Context) error {
	classDocs, err := m.st.Find(ctx, store.CollectionClasses, "")
	if err != nil {
		return persistErr(err)
	}
	m.classMu.Lock()
	for _, d := range classDocs {
		c, err := decodeClass(d.Value)
		if err != nil {
			m.classMu.Unlock()
			return worlderr.Wrap(worlderr.IOError, err, "world: decode class %q", d.Key)
		}
		m.classes[c.ID] = c
	}
	m.classMu.Unlock()

	objDocs, err := m.st.Find(ctx, store.CollectionObjects, "")
	if err != nil {
		return persistErr(err)
	}
	for _, d := range objDocs {
		obj, err := decodeObject(d.Value)
		if err != nil {
			return worlderr.Wrap(worlderr.IOError, err, "world: decode object %q", d.Key)
		}
		migrateUnquoteLegacyProperties(obj.Properties)
		m.loadObjectPtr(obj.ID).Store(obj)
		if obj.DBRef > m.nextDBRef {
			m.nextDBRef = obj.DBRef
		}
	}

	playerDocs, err := m.st.Find(ctx, store.CollectionPlayers, "")
	if err != nil {
		return persistErr(err)
	}
	for _, d := range playerDocs {
		pl, err := decodePlayer(d.Value)
		if err != nil {
			return worlderr.Wrap(worlderr.IOError, err, "world: decode player %q", d.Key)
		}
		migrateUnquoteLegacyProperties(pl.Properties)
		m.loadPlayerPtr(pl.ID).Store(pl)
		if pl.DBRef > m.nextDBRef {
			m.nextDBRef = pl.DBRef
		}
	}

	counterBytes, ok, err := m.st.Get(ctx, store.CollectionCounters, "dbref")
	if err != nil {
		return persistErr(err)
	}
	if ok {
		var n int64
		if err := json.Unmarshal(counterBytes, &n); err == nil && DBRef(n) > m.nextDBRef {
			m.nextDBRef = DBRef(n)
		}
	}
	return nil
}

// classChain walks class -> parent -> ... -> root and returns the chain,
// nearest first. Cycles are treated as if they terminated at the last
// unvisited class, since the create-time acyclicity invariant should
// already prevent them — this is a defensive stop, not expected to fire.
func (m *Model) classChain(id ID) []*ObjectClass {
	m.classMu.RLock()
	defer m.classMu.RUnlock()
	var chain []*ObjectClass
	seen := map[ID]bool{}
	cur := id
	for cur != "" && !seen[cur] {
		seen[cur] = true
		c, ok := m.classes[cur]
		if !ok {
			break
		}
		chain = append(chain, c)
		cur = c.ParentID
	}
	return chain
}

// wouldCycle reports whether setting child's parent to candidateParent
// would introduce a cycle in the class chain.
func (m *Model) wouldCycle(child, candidateParent ID) bool {
	m.classMu.RLock()
	defer m.classMu.RUnlock()
	cur := candidateParent
	seen := map[ID]bool{}
	for cur != "" {
		if cur == child {
			return true
		}
		if seen[cur] {
			return true
		}
		seen[cur] = true
		c, ok := m.classes[cur]
		if !ok {
			return false
		}
		cur = c.ParentID
	}
	return false
}

// CreateClass creates a new class. If parent is non-empty it must already
// exist and the resulting chain must stay acyclic (trivially true for a
// brand-new child, checked for completeness and to reject a parent that
// is itself broken).
func (m *Model) CreateClass(ctx context.Context, name string, parent ID, desc string) (*ObjectClass, error) {
	if parent != "" {
		if _, ok := m.GetClass(parent); !ok {
			return nil, worlderr.New(worlderr.NotFound, "world: parent class %q not found", parent)
		}
	}
	c := &ObjectClass{
		ID:          ID(m.newID()),
		Name:        name,
		ParentID:    parent,
		Description: desc,
		Properties:  map[string]Value{},
	}
	if m.wouldCycle(c.ID, parent) {
		return nil, worlderr.New(worlderr.Conflict, "world: class parent chain would cycle")
	}
	data, err := encodeClass(c)
	if err != nil {
		return nil, worlderr.Wrap(worlderr.IOError, err, "world: encode class")
	}
	if err := m.st.Upsert(ctx, store.CollectionClasses, string(c.ID), data); err != nil {
		return nil, persistErr(err)
	}
	m.classMu.Lock()
	m.classes[c.ID] = c
	m.classMu.Unlock()
	return c, nil
}

// EnsureRootClass creates the distinguished root class "Object" if it does
// not already exist, and returns it either way.
func (m *Model) EnsureRootClass(ctx context.Context) (*ObjectClass, error) {
	m.classMu.RLock()
	for _, c := range m.classes {
		if c.Name == RootClassName && c.ParentID == "" {
			m.classMu.RUnlock()
			return c, nil
		}
	}
	m.classMu.RUnlock()
	return m.CreateClass(ctx, RootClassName, "", "the root of every class chain")
}
