// Package world implements the object/class model: prototype-style
// inheritance over classes, instance property bags, and containment
// geometry. It is the second layer above internal/store: each mutation
// persists as a single store write (EnsureDBRef's counter bump and object
// write share one store-scoped transaction), and readers see per-object
// snapshots swapped in only after that write succeeds.
package world

import "fmt"

// ID is an opaque, persistence-provider-chosen object identity string.
type ID string

// DBRef is a stable small-integer alias for a GameObject, printed as #N.
type DBRef int64

// NoDBRef is the zero value meaning "no DBRef has been assigned yet".
const NoDBRef DBRef = 0

// ValueKind tags the arm of a Value that is populated.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindRef
)

// Unset is the distinguished sentinel property value: writing it removes
// an instance's override and falls back to prototype-chain lookup.
var Unset = Value{Kind: KindNull, IsUnset: true}

// Value is the tagged sum over property value arms: null, bool, int,
// float, string, array-of-values, and object-reference (an ID, resolved
// lazily by callers, never by the property bag itself).
type Value struct {
	Kind    ValueKind
	IsUnset bool
	Bool    bool
	Int     int64
	Float   float64
	Str     string
	Array   []Value
	Ref     ID
}

func Null() Value             { return Value{Kind: KindNull} }
func Bool(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value       { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value   { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value   { return Value{Kind: KindString, Str: s} }
func Array(vs []Value) Value  { return Value{Kind: KindArray, Array: vs} }
func Reference(id ID) Value   { return Value{Kind: KindRef, Ref: id} }

// String renders a Value the way a verb body or notify() sink would see
// it rendered as text.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindArray:
		out := make([]string, len(v.Array))
		for i, e := range v.Array {
			out[i] = e.String()
		}
		return fmt.Sprint(out)
	case KindRef:
		return string(v.Ref)
	default:
		return ""
	}
}

// Flag is a behavioral toggle orthogonal to class, kept off the property
// bag the way the teacher keeps MUSH flags out of the attribute table.
type Flag uint32

const (
	FlagDark Flag = 1 << iota
	FlagHaven
	FlagSticky
	FlagOpaque
	FlagJumpOK
	FlagLinkOK
	FlagEnterOK
	FlagSystemObject
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// ObjectClass is the prototype: identity, name, optional parent, and a
// property bag that class-editing operations (not instance writes)
// mutate.
type ObjectClass struct {
	ID          ID
	Name        string
	ParentID    ID // empty for the root class "Object"
	Description string
	Properties  map[string]Value
}

// RootClassName is the distinguished root of every class chain.
const RootClassName = "Object"

// GameObject is an instance of an ObjectClass, placed somewhere in the
// containment forest.
type GameObject struct {
	ID         ID
	DBRef      DBRef // 0 until EnsureDBRef is called
	ClassID    ID
	Name       string
	Location   ID // empty for "nowhere"
	Properties map[string]Value
	Flags      Flag
}

// Player is a GameObject variant carrying credentials and permissions.
type Player struct {
	GameObject
	PasswordHash string // bcrypt hash
	Permissions  map[string]bool
	SessionID    string // opaque, empty when not bound
	LastSeen     int64  // unix seconds
}

// HasPermission reports whether the player carries the given capability
// tag (free-form; the dispatcher treats every tag alike).
func (p *Player) HasPermission(tag string) bool {
	return p.Permissions[tag]
}
