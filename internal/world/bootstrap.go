package world

import "context"

// Bootstrap names the classes and objects a freshly-initialized world
// needs before any session can log in: the root class, the distinguished
// system object, the exit class the resolver and `go` verb key off of,
// and the first administrator account.
type Bootstrap struct {
	RootClassID   ID
	SystemClassID ID
	SystemObjectID ID
	ExitClassID   ID
	GodPlayerID   ID
}

// EnsureBootstrap creates whatever part of Bootstrap is missing and is
// idempotent across restarts: re-running it against an already-seeded
// world just returns the existing ids.
func (m *Model) EnsureBootstrap(ctx context.Context, godName, godPassword string) (Bootstrap, error) {
	var b Bootstrap

	root, err := m.EnsureRootClass(ctx)
	if err != nil {
		return b, err
	}
	b.RootClassID = root.ID

	systemClass, ok := m.FindClassByName("System")
	if !ok {
		systemClass, err = m.CreateClass(ctx, "System", root.ID, "the single system object's class")
		if err != nil {
			return b, err
		}
	}
	b.SystemClassID = systemClass.ID

	exitClass, ok := m.FindClassByName("Exit")
	if !ok {
		exitClass, err = m.CreateClass(ctx, "Exit", root.ID, "a directional link between two rooms")
		if err != nil {
			return b, err
		}
	}
	b.ExitClassID = exitClass.ID

	if sysObj, ok := m.findSystemObject(); ok {
		b.SystemObjectID = sysObj.ID
	} else {
		obj, err := m.CreateInstance(ctx, systemClass.ID, "system")
		if err != nil {
			return b, err
		}
		if err := m.SetFlags(ctx, obj.ID, FlagSystemObject); err != nil {
			return b, err
		}
		b.SystemObjectID = obj.ID
	}

	if god, ok := m.FindPlayerByName(godName); ok {
		b.GodPlayerID = god.ID
	} else {
		playerClass, ok := m.FindClassByName("Player")
		if !ok {
			playerClass, err = m.CreateClass(ctx, "Player", root.ID, "a human-controlled actor")
			if err != nil {
				return b, err
			}
		}
		god, err := m.CreatePlayer(ctx, playerClass.ID, godName, godPassword)
		if err != nil {
			return b, err
		}
		if err := m.GrantPermission(ctx, god.ID, "admin"); err != nil {
			return b, err
		}
		b.GodPlayerID = god.ID
	}

	return b, nil
}

func (m *Model) findSystemObject() (*GameObject, bool) {
	for _, obj := range m.AllObjects() {
		if obj.Flags.Has(FlagSystemObject) {
			return obj, true
		}
	}
	return nil, false
}
