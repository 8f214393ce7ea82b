package world

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/lattice-mud/lattice/internal/store"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

type playerDoc struct {
	ID           ID               `json:"id"`
	DBRef        DBRef            `json:"dbref"`
	ClassID      ID               `json:"classId"`
	Name         string           `json:"name"`
	Location     ID               `json:"location,omitempty"`
	Properties   map[string]Value `json:"properties"`
	Flags        Flag             `json:"flags"`
	PasswordHash string           `json:"passwordHash"`
	Permissions  map[string]bool  `json:"permissions"`
	SessionID    string           `json:"sessionId,omitempty"`
	LastSeen     int64            `json:"lastSeen"`
}

func encodePlayer(p *Player) ([]byte, error) {
	return json.Marshal(playerDoc{
		ID: p.ID, DBRef: p.DBRef, ClassID: p.ClassID, Name: p.Name, Location: p.Location,
		Properties: p.Properties, Flags: p.Flags, PasswordHash: p.PasswordHash,
		Permissions: p.Permissions, SessionID: p.SessionID, LastSeen: p.LastSeen,
	})
}

func decodePlayer(data []byte) (*Player, error) {
	var d playerDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if d.Properties == nil {
		d.Properties = map[string]Value{}
	}
	if d.Permissions == nil {
		d.Permissions = map[string]bool{}
	}
	return &Player{
		GameObject: GameObject{ID: d.ID, DBRef: d.DBRef, ClassID: d.ClassID, Name: d.Name, Location: d.Location, Properties: d.Properties, Flags: d.Flags},
		PasswordHash: d.PasswordHash, Permissions: d.Permissions, SessionID: d.SessionID, LastSeen: d.LastSeen,
	}, nil
}

func clonePlayer(p *Player) *Player {
	n := *p
	n.Properties = cloneProperties(p.Properties)
	n.Permissions = make(map[string]bool, len(p.Permissions))
	for k, v := range p.Permissions {
		n.Permissions[k] = v
	}
	return &n
}

// CreatePlayer creates a player object with a bcrypt-hashed password.
// Player names are unique case-insensitively; callers must check
// FindPlayerByName first (this method does not re-check, to keep the
// uniqueness decision with one caller-visible lock acquisition at the
// authoring layer rather than silently racing here).
func (m *Model) CreatePlayer(ctx context.Context, classID ID, name, password string) (*Player, error) {
	if _, ok := m.GetClass(classID); !ok {
		return nil, worlderr.New(worlderr.NotFound, "world: class %q not found", classID)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, worlderr.Wrap(worlderr.InvalidInput, err, "world: hash password")
	}
	p := &Player{
		GameObject: GameObject{
			ID:         ID(m.newID()),
			ClassID:    classID,
			Name:       name,
			Properties: map[string]Value{},
		},
		PasswordHash: string(hash),
		Permissions:  map[string]bool{},
	}
	data, err := encodePlayer(p)
	if err != nil {
		return nil, worlderr.Wrap(worlderr.IOError, err, "world: encode player")
	}
	if err := m.st.Upsert(ctx, store.CollectionPlayers, string(p.ID), data); err != nil {
		return nil, persistErr(err)
	}
	m.loadPlayerPtr(p.ID).Store(p)
	return p, nil
}

// FindPlayerByName looks up a player by case-insensitive name.
func (m *Model) FindPlayerByName(name string) (*Player, bool) {
	want := strings.ToLower(name)
	for _, pl := range m.AllPlayers() {
		if strings.ToLower(pl.Name) == want {
			return pl, true
		}
	}
	return nil, false
}

// GrantPermission adds a capability tag to a player's permission set,
// used by world-bootstrap tooling to seed the first administrator.
func (m *Model) GrantPermission(ctx context.Context, playerID ID, tag string) error {
	unlock := m.lockOrdered(playerID)
	defer unlock()
	pl, ok := m.GetPlayer(playerID)
	if !ok {
		return worlderr.New(worlderr.NotFound, "world: player %q not found", playerID)
	}
	next := clonePlayer(pl)
	next.Permissions[tag] = true
	data, err := encodePlayer(next)
	if err != nil {
		return worlderr.Wrap(worlderr.IOError, err, "world: encode player")
	}
	if err := m.st.Upsert(ctx, store.CollectionPlayers, string(playerID), data); err != nil {
		return persistErr(err)
	}
	m.loadPlayerPtr(playerID).Store(next)
	return nil
}

// CheckPassword compares a candidate password against the player's stored
// bcrypt hash. bcrypt.CompareHashAndPassword is already constant-time with
// respect to the candidate, matching spec's "compares salted password
// hashes in constant time" requirement.
func CheckPassword(p *Player, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(candidate)) == nil
}

// constantTimeEqual is used for comparing opaque tokens (session ids) where
// no hashing is involved.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// BindSession records which session a player is authenticated under,
// rebinding (and reporting) any prior session so the caller can close it.
func (m *Model) BindSession(ctx context.Context, playerID ID, sessionID string) (previous string, err error) {
	unlock := m.lockOrdered(playerID)
	defer unlock()
	pl, ok := m.GetPlayer(playerID)
	if !ok {
		return "", worlderr.New(worlderr.NotFound, "world: player %q not found", playerID)
	}
	previous = pl.SessionID
	if previous != "" && constantTimeEqual(previous, sessionID) {
		previous = ""
	}
	next := clonePlayer(pl)
	next.SessionID = sessionID
	data, err := encodePlayer(next)
	if err != nil {
		return "", worlderr.Wrap(worlderr.IOError, err, "world: encode player")
	}
	if err := m.st.Upsert(ctx, store.CollectionPlayers, string(playerID), data); err != nil {
		return "", persistErr(err)
	}
	m.loadPlayerPtr(playerID).Store(next)
	return previous, nil
}
