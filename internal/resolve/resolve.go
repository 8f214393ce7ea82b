// Package resolve implements noun-phrase resolution: turning a typed
// token like "n", "wood", or "#42" into the set of world objects it
// could name, from the point of view of a looker standing somewhere in
// the containment forest.
package resolve

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/lattice-mud/lattice/internal/world"
)

// TypeFilter narrows candidates in the local-search-space step to a
// single class (optionally including subclasses) or to a "type"
// property match. Zero value applies no filter.
type TypeFilter struct {
	ClassID           world.ID
	IncludeSubclasses bool
	TypeProperty      string // matched against the candidate's "type" property if non-empty
}

func (f TypeFilter) isZero() bool {
	return f.ClassID == "" && f.TypeProperty == ""
}

func (f TypeFilter) accepts(m *world.Model, t world.Thing) bool {
	if f.isZero() {
		return true
	}
	if f.ClassID != "" {
		if t.ClassID == f.ClassID {
			return true
		}
		if f.IncludeSubclasses {
			for _, c := range m.FindByClass(f.ClassID, true) {
				if c.ID == t.ID {
					return true
				}
			}
		}
	}
	if f.TypeProperty != "" {
		if m.GetProperty(t.ID, "type").String() == f.TypeProperty {
			return true
		}
	}
	return false
}

// exitAbbreviations maps a canonical direction name to its recognized
// abbreviations, per the exit-direction abbreviation table.
var exitAbbreviations = map[string][]string{
	"north":             {"n"},
	"south":             {"s"},
	"east":              {"e"},
	"west":              {"w"},
	"northeast":         {"ne"},
	"northwest":         {"nw"},
	"southeast":         {"se"},
	"southwest":         {"sw"},
	"up":                {"u"},
	"down":              {"d"},
	"out":               {"o"},
	"port":              {"p"},
	"starboard":         {"s", "stbd"},
	"forward":           {"f", "fore"},
	"aft":               {"a"},
	"turbolift":         {"tl"},
	"clockwise":         {"cw", "clock"},
	"counterclockwise":  {"ccw", "counter", "counter-clockwise", "anticlockwise", "anti-clockwise"},
	"hubward":           {"h", "hw", "hub", "inward"},
	"rimward":           {"r", "rw", "rim", "outward"},
}

func directionMatches(direction, token string) bool {
	direction = strings.ToLower(direction)
	token = strings.ToLower(token)
	if direction == token {
		return true
	}
	for _, abbr := range exitAbbreviations[direction] {
		if abbr == token {
			return true
		}
	}
	return false
}

// dynamicAlias extracts the sequence of uppercase letters and digits
// from a display name, e.g. "A Wooden Staff" -> "AWS".
func dynamicAlias(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitAliases parses the "aliases" property, which may be an array or
// a whitespace/comma-delimited string.
func splitAliases(v world.Value) []string {
	if v.Kind == world.KindArray {
		out := make([]string, 0, len(v.Array))
		for _, e := range v.Array {
			out = append(out, e.String())
		}
		return out
	}
	s := v.String()
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
}

// Resolver resolves noun phrases against a World Model.
type Resolver struct {
	model            *world.Model
	exitClassID      world.ID // class id of obj_exit, empty if not configured
	systemObjectName string
}

// New creates a Resolver. exitClassID names the class whose instances
// are treated as exits for step 5's exit-alias rule; systemObjectName
// is the fallback name matched by the "system" keyword when no object
// carries FlagSystemObject.
func New(model *world.Model, exitClassID world.ID, systemObjectName string) *Resolver {
	if systemObjectName == "" {
		systemObjectName = "system"
	}
	return &Resolver{model: model, exitClassID: exitClassID, systemObjectName: systemObjectName}
}

// Resolve implements resolve(name, looker, location?, type_filter?). The
// first step (in order) that produces a non-empty result is returned;
// later steps are not consulted.
func (r *Resolver) Resolve(name string, looker world.ID, location world.ID, filter TypeFilter) []world.Thing {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	if t, ok := r.matchKeyword(name, looker, location); ok {
		return []world.Thing{t}
	}
	if t, ok := r.matchDBRef(name); ok {
		return []world.Thing{t}
	}
	if t, ok := r.model.GetThing(world.ID(name)); ok {
		return []world.Thing{t}
	}

	space := r.localSearchSpace(looker, location)
	var exact []world.Thing
	for _, t := range space {
		if !filter.accepts(r.model, t) {
			continue
		}
		if r.matchesCandidate(t, name) {
			exact = append(exact, t)
		}
	}
	return exact
}

// ResolveOutcome is the discriminated result of ResolveUnique.
type ResolveOutcome int

const (
	OutcomeNone ResolveOutcome = iota
	OutcomeOne
	OutcomeAmbiguous
)

// ResolveUnique wraps Resolve with the none/one/ambiguous discrimination
// the dispatcher and scripting builtins consume.
func (r *Resolver) ResolveUnique(name string, looker world.ID, location world.ID, filter TypeFilter) (ResolveOutcome, world.Thing, []world.Thing) {
	matches := r.Resolve(name, looker, location, filter)
	switch len(matches) {
	case 0:
		return OutcomeNone, world.Thing{}, nil
	case 1:
		return OutcomeOne, matches[0], nil
	default:
		return OutcomeAmbiguous, world.Thing{}, matches
	}
}

func (r *Resolver) matchKeyword(name string, looker, location world.ID) (world.Thing, bool) {
	switch strings.ToLower(name) {
	case "me", "player":
		return r.model.GetThing(looker)
	case "here", "room":
		loc := r.effectiveLocation(looker, location)
		if loc == "" {
			return world.Thing{}, false
		}
		return r.model.GetThing(loc)
	case "system":
		return r.findSystemObject()
	}
	return world.Thing{}, false
}

// findSystemObject looks for the object flagged isSystemObject, falling
// back to an exact name match against systemObjectName.
func (r *Resolver) findSystemObject() (world.Thing, bool) {
	for _, obj := range r.model.AllObjects() {
		if obj.Flags.Has(world.FlagSystemObject) {
			return r.model.GetThing(obj.ID)
		}
	}
	for _, obj := range r.model.AllObjects() {
		if strings.EqualFold(obj.Name, r.systemObjectName) {
			return r.model.GetThing(obj.ID)
		}
	}
	return world.Thing{}, false
}

// wordPrefixMatch reports whether token is an exact, case-insensitive
// match for src, or a prefix of any whitespace-delimited word in src
// (so "wood" matches "A Wooden Staff" via its second word).
func wordPrefixMatch(src, token string) bool {
	if src == "" || token == "" {
		return false
	}
	if strings.EqualFold(src, token) {
		return true
	}
	token = strings.ToLower(token)
	for _, word := range strings.Fields(strings.ToLower(src)) {
		if strings.HasPrefix(word, token) {
			return true
		}
	}
	return false
}

func (r *Resolver) matchDBRef(name string) (world.Thing, bool) {
	if len(name) < 2 || name[0] != '#' {
		return world.Thing{}, false
	}
	n, err := strconv.ParseInt(name[1:], 10, 64)
	if err != nil {
		return world.Thing{}, false
	}
	return r.model.FindByDBRef(world.DBRef(n))
}

// effectiveLocation is the explicit location argument if given, else the
// looker's own location property, else the looker itself (for objects
// that are rooms and thus contain themselves conceptually).
func (r *Resolver) effectiveLocation(looker, location world.ID) world.ID {
	if location != "" {
		return location
	}
	if t, ok := r.model.GetThing(looker); ok && t.Location != "" {
		return t.Location
	}
	return looker
}

// localSearchSpace is the union of the effective location's contents and
// the looker's own contents (inventory).
func (r *Resolver) localSearchSpace(looker, location world.ID) []world.Thing {
	loc := r.effectiveLocation(looker, location)
	seen := map[world.ID]bool{}
	var out []world.Thing
	add := func(ts []world.Thing) {
		for _, t := range ts {
			if !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t)
			}
		}
	}
	add(r.model.ContentsOf(loc))
	add(r.model.ContentsOf(looker))
	return out
}

func (r *Resolver) matchesCandidate(t world.Thing, token string) bool {
	if wordPrefixMatch(t.Name, token) {
		return true
	}
	if wordPrefixMatch(r.model.GetProperty(t.ID, "name").String(), token) {
		return true
	}
	for _, alias := range splitAliases(r.model.GetProperty(t.ID, "aliases")) {
		if strings.EqualFold(alias, token) {
			return true
		}
	}
	if dynamicAlias(t.Name) == strings.ToUpper(token) && dynamicAlias(t.Name) != "" {
		return true
	}
	if r.exitClassID != "" && t.ClassID == r.exitClassID {
		direction := r.model.GetProperty(t.ID, "direction").String()
		if direction != "" && directionMatches(direction, token) {
			return true
		}
	}
	return false
}
