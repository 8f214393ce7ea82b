// Package dispatch implements the command dispatcher: matching a typed
// line against the verbs reachable from a player's current position in
// the world, in the standard MOO search order, and invoking the winning
// verb through the Script Host.
package dispatch

import (
	"context"
	"strings"

	"github.com/lattice-mud/lattice/internal/registry"
	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/scripthost"
	"github.com/lattice-mud/lattice/internal/world"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

// prepositions is the fixed set recognized by the "prep" pattern slot.
var prepositions = map[string]bool{
	"to": true, "from": true, "in": true, "on": true, "at": true,
	"with": true, "under": true, "over": true, "behind": true, "for": true,
	"about": true, "of": true, "into": true, "onto": true,
}

// OutcomeKind is the discriminated result of a Dispatch call.
type OutcomeKind int

const (
	OutcomeHandled OutcomeKind = iota
	OutcomeNoMatch
	OutcomeAmbiguous
	OutcomePermissionDenied
	OutcomeError
)

// Outcome is the result of dispatching one line.
type Outcome struct {
	Kind       OutcomeKind
	Reply      string        // rendered return value on Handled, sanitized message on Error
	Candidates []world.Thing // populated on Ambiguous
	Err        error         // populated on Error
}

// Dispatcher binds together the collaborators a dispatch needs: the
// World Model for containment/permissions, the Registry for verb
// lookup, the Resolver for pattern-slot resolution, and the Script Host
// for execution.
type Dispatcher struct {
	model    *world.Model
	registry *registry.Registry
	resolver *resolve.Resolver
	host     *scripthost.Host
	notify   func(target world.ID, text string)
}

// New creates a Dispatcher. notify is the session orchestrator's
// fan-out sink, forwarded into every script invocation's notify
// builtin.
func New(model *world.Model, reg *registry.Registry, resolver *resolve.Resolver, host *scripthost.Host, notify func(target world.ID, text string)) *Dispatcher {
	return &Dispatcher{model: model, registry: reg, resolver: resolver, host: host, notify: notify}
}

// Dispatch matches rawLine against the verbs reachable from player's
// position and, on a match, invokes it.
func (d *Dispatcher) Dispatch(ctx context.Context, player world.ID, rawLine string) Outcome {
	rawLine = strings.TrimSpace(rawLine)
	if rawLine == "" {
		return Outcome{Kind: OutcomeNoMatch}
	}
	verbToken, rest := splitVerb(rawLine)

	thing, ok := d.model.GetThing(player)
	if !ok {
		err := worlderr.New(worlderr.NotFound, "dispatch: player %q not found", player)
		return Outcome{Kind: OutcomeError, Err: err, Reply: scripthost.DescribeError(err)}
	}
	permissions := map[string]bool{}
	if thing.Player != nil {
		for tag, granted := range thing.Player.Permissions {
			permissions[tag] = granted
		}
	}

	for _, ownerID := range d.searchOrder(player, thing.Location) {
		chain := d.model.OwnerChain(ownerID)
		candidates := registry.VerbsByFirstToken(d.registry.LookupVerbsInherited(chain), verbToken)

		var best *registry.Verb
		var bestVars map[string]string
		bestLiterals := -1
		sawPermissionDenied := false

		for i := range candidates {
			v := candidates[i]
			if !registry.Allowed(v, permissions) {
				sawPermissionDenied = true
				continue
			}
			vars, literals, matchOutcome, ambiguous, matched := d.matchPattern(v.Patterns, rest, player)
			if matchOutcome == OutcomeAmbiguous {
				return Outcome{Kind: OutcomeAmbiguous, Candidates: ambiguous}
			}
			if !matched {
				continue
			}
			if literals > bestLiterals {
				best = &candidates[i]
				bestVars = vars
				bestLiterals = literals
			}
		}

		if best != nil {
			return d.invoke(ctx, *best, player, ownerID, rest, bestVars)
		}
		if sawPermissionDenied {
			return Outcome{Kind: OutcomePermissionDenied}
		}
	}

	return Outcome{Kind: OutcomeNoMatch}
}

// searchOrder returns, in the standard MOO order: the player, the
// player's location, every object in that location, every object in
// the player's inventory, and the system object (if any).
func (d *Dispatcher) searchOrder(player, location world.ID) []world.ID {
	order := []world.ID{player}
	if location != "" {
		order = append(order, location)
		for _, t := range d.model.ContentsOf(location) {
			if t.ID != player {
				order = append(order, t.ID)
			}
		}
	}
	for _, t := range d.model.ContentsOf(player) {
		order = append(order, t.ID)
	}
	if outcome, sysObj, _ := d.resolver.ResolveUnique("system", player, "", resolve.TypeFilter{}); outcome == resolve.OutcomeOne {
		order = append(order, sysObj.ID)
	}
	return order
}

func splitVerb(line string) (verb, rest string) {
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		return line[:idx], strings.TrimSpace(line[idx+1:])
	}
	return line, ""
}

func (d *Dispatcher) invoke(ctx context.Context, v registry.Verb, player, owner world.ID, rest string, vars map[string]string) Outcome {
	unit, err := d.host.Compile(string(v.OwnerID)+"/"+v.Name, v.Body)
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err, Reply: scripthost.DescribeError(err)}
	}
	ic := scripthost.InvocationContext{
		Player: player,
		This:   owner,
		Args:   strings.Fields(rest),
		Vars:   vars,
		Notify: d.notify,
	}
	out, err := d.host.Invoke(ctx, unit, ic)
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err, Reply: scripthost.DescribeError(err)}
	}
	return Outcome{Kind: OutcomeHandled, Reply: out}
}
