package scripthost

import (
	"context"

	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/world"
)

// ModelBuiltins adapts a *world.Model and *resolve.Resolver into the
// Builtins facade a compiled verb/function body calls into. It is the
// production wiring for the Host; tests substitute their own fakes.
type ModelBuiltins struct {
	Model       *world.Model
	Resolver    *resolve.Resolver
	ExitClassID world.ID
}

func (b ModelBuiltins) MoveObject(ctx context.Context, objID, destination world.ID) error {
	return b.Model.Move(ctx, objID, destination)
}

func (b ModelBuiltins) GetProperty(objID world.ID, key string) world.Value {
	return b.Model.GetProperty(objID, key)
}

func (b ModelBuiltins) SetProperty(ctx context.Context, objID world.ID, key string, value world.Value) error {
	return b.Model.SetProperty(ctx, objID, key, value)
}

// GetExits returns every exit-class object contained in location, per
// the canonical `go` verb's GetExits(Location) call named in §9.
func (b ModelBuiltins) GetExits(location world.ID) []world.Thing {
	if b.ExitClassID == "" {
		return nil
	}
	var out []world.Thing
	for _, t := range b.Model.ContentsOf(location) {
		if t.ClassID == b.ExitClassID {
			out = append(out, t)
		}
	}
	return out
}

func (b ModelBuiltins) FindObjectsByClass(classID world.ID, includeSubclasses bool) []world.Thing {
	return b.Model.FindByClass(classID, includeSubclasses)
}

func (b ModelBuiltins) ResolveObject(name string, looker world.ID) (resolve.ResolveOutcome, world.Thing, []world.Thing) {
	return b.Resolver.ResolveUnique(name, looker, "", resolve.TypeFilter{})
}
