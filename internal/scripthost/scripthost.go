// Package scripthost compiles and executes verb and function bodies. It
// wraps github.com/yuin/gopher-lua: each body is parsed and compiled to
// a FunctionProto once, cached by its content hash, and re-instantiated
// into a fresh Lua state for every invocation so one runaway script
// cannot corrupt state another invocation depends on.
package scripthost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/world"
	"github.com/lattice-mud/lattice/internal/worlderr"
)

// DefaultMaxCallDepth and DefaultExecutionBudget match the configuration
// defaults named in the external interface (scripting.maxCallDepth /
// scripting.maxExecutionTimeMs).
const (
	DefaultMaxCallDepth    = 100
	DefaultExecutionBudget = 5 * time.Second
)

// CompiledUnit is a parsed-and-compiled verb or function body, cached by
// the SHA-256 hash of its source text.
type CompiledUnit struct {
	Hash  string
	proto *lua.FunctionProto
}

// Host compiles bodies and runs them under the execution guardrails: a
// wall-clock budget per top-level dispatch and a call-depth cap shared
// across nested verb/function invocations.
type Host struct {
	mu       sync.RWMutex
	cache    map[string]*CompiledUnit
	maxDepth int
	budget   time.Duration
	builtins Builtins
}

// Builtins is the narrow façade onto the World Model and Resolver that
// script bodies may call into.
type Builtins interface {
	MoveObject(ctx context.Context, objID, destination world.ID) error
	GetProperty(objID world.ID, key string) world.Value
	SetProperty(ctx context.Context, objID world.ID, key string, value world.Value) error
	GetExits(location world.ID) []world.Thing
	FindObjectsByClass(classID world.ID, includeSubclasses bool) []world.Thing
	ResolveObject(name string, looker world.ID) (resolve.ResolveOutcome, world.Thing, []world.Thing)
}

// New creates a Host. maxDepth and budget fall back to the package
// defaults when zero.
func New(builtins Builtins, maxDepth int, budget time.Duration) *Host {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxCallDepth
	}
	if budget <= 0 {
		budget = DefaultExecutionBudget
	}
	return &Host{
		cache:    make(map[string]*CompiledUnit),
		maxDepth: maxDepth,
		budget:   budget,
		builtins: builtins,
	}
}

func bodyHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Compile parses and compiles body, returning the cached unit if an
// identical body (by hash) has already been compiled. Recompilation is
// otherwise triggered only by a Registry swap that carries a changed
// body.
func (h *Host) Compile(name, body string) (*CompiledUnit, error) {
	hash := bodyHash(body)

	h.mu.RLock()
	if u, ok := h.cache[hash]; ok {
		h.mu.RUnlock()
		return u, nil
	}
	h.mu.RUnlock()

	chunk, err := parse.Parse(strings.NewReader(body), name)
	if err != nil {
		return nil, worlderr.Wrap(worlderr.ScriptError, err, "scripthost: parse %q", name)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, worlderr.Wrap(worlderr.ScriptError, err, "scripthost: compile %q", name)
	}
	unit := &CompiledUnit{Hash: hash, proto: proto}

	h.mu.Lock()
	h.cache[hash] = unit
	h.mu.Unlock()
	return unit, nil
}

// InvocationContext binds the execution-time values a verb or function
// body sees: the caller, the owning object, positional arguments,
// captured pattern variables, and the notify sink.
type InvocationContext struct {
	Player   world.ID
	This     world.ID
	Args     []string
	Vars     map[string]string // dobj, iobj, prep, and any <name> captures
	Notify   func(target world.ID, text string)
	Depth    int // nested invocation depth so far; callers start at 0
}

// depthGuard enforces the call-depth cap. Invoke starts one at
// InvocationContext.Depth and refuses to run once that is at the cap,
// so a caller that nests an invocation passes its own depth plus one.
// None of the builtins bound into a script invokes another verb or
// function, so the dispatcher always starts at depth 0.
type depthGuard struct {
	mu    sync.Mutex
	count int
	max   int
}

func (g *depthGuard) enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count >= g.max {
		return worlderr.New(worlderr.ScriptError, "scripthost: call depth exceeded (max %d)", g.max)
	}
	g.count++
	return nil
}

func (g *depthGuard) leave() {
	g.mu.Lock()
	g.count--
	g.mu.Unlock()
}

// Invoke runs a compiled unit to completion or until the wall-clock
// budget or call-depth cap trips. ctx is typically the owning session's
// context: cancellation propagates to the Lua interpreter at its next
// suspension point, and any notifications already enqueued but not yet
// flushed by the orchestrator are the orchestrator's responsibility to
// drop, not the host's.
func (h *Host) Invoke(ctx context.Context, unit *CompiledUnit, ic InvocationContext) (string, error) {
	depth := &depthGuard{max: h.maxDepth, count: ic.Depth}
	if err := depth.enter(); err != nil {
		return "", err
	}
	defer depth.leave()

	runCtx, cancel := context.WithTimeout(ctx, h.budget)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()
	L.SetContext(runCtx)

	h.bindContext(L, ic)

	fn := L.NewFunctionFromProto(unit.proto)
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if runCtx.Err() != nil {
			return "", worlderr.New(worlderr.Timeout, "scripthost: execution exceeded %s", h.budget)
		}
		return "", worlderr.Wrap(worlderr.ScriptError, err, "scripthost: runtime error")
	}

	var out []string
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		out = append(out, L.Get(i).String())
	}
	L.SetTop(0)
	return strings.Join(out, " "), nil
}

func (h *Host) bindContext(L *lua.LState, ic InvocationContext) {
	L.SetGlobal("player", lua.LString(ic.Player))
	L.SetGlobal("this", lua.LString(ic.This))

	argsTable := L.NewTable()
	for i, a := range ic.Args {
		argsTable.RawSetInt(i+1, lua.LString(a))
	}
	L.SetGlobal("args", argsTable)

	varsTable := L.NewTable()
	for k, v := range ic.Vars {
		varsTable.RawSetString(k, lua.LString(v))
	}
	L.SetGlobal("vars", varsTable)

	L.SetGlobal("notify", L.NewFunction(func(L *lua.LState) int {
		target := L.CheckString(1)
		text := L.CheckString(2)
		if ic.Notify != nil {
			ic.Notify(world.ID(target), text)
		}
		return 0
	}))

	L.SetGlobal("move_object", L.NewFunction(func(L *lua.LState) int {
		objID := world.ID(L.CheckString(1))
		dest := world.ID(L.CheckString(2))
		if err := h.builtins.MoveObject(L.Context(), objID, dest); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))

	L.SetGlobal("get_property", L.NewFunction(func(L *lua.LState) int {
		objID := world.ID(L.CheckString(1))
		key := L.CheckString(2)
		L.Push(lua.LString(h.builtins.GetProperty(objID, key).String()))
		return 1
	}))

	L.SetGlobal("set_property", L.NewFunction(func(L *lua.LState) int {
		objID := world.ID(L.CheckString(1))
		key := L.CheckString(2)
		value := L.CheckString(3)
		if err := h.builtins.SetProperty(L.Context(), objID, key, world.String(value)); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))

	L.SetGlobal("get_exits", L.NewFunction(func(L *lua.LState) int {
		location := world.ID(L.CheckString(1))
		exits := h.builtins.GetExits(location)
		out := L.NewTable()
		for i, e := range exits {
			out.RawSetInt(i+1, lua.LString(e.ID))
		}
		L.Push(out)
		return 1
	}))

	L.SetGlobal("find_by_class", L.NewFunction(func(L *lua.LState) int {
		classID := world.ID(L.CheckString(1))
		includeSub := L.OptBool(2, false)
		found := h.builtins.FindObjectsByClass(classID, includeSub)
		out := L.NewTable()
		for i, t := range found {
			out.RawSetInt(i+1, lua.LString(t.ID))
		}
		L.Push(out)
		return 1
	}))

	L.SetGlobal("resolve_object", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		looker := world.ID(L.CheckString(2))
		outcome, one, _ := h.builtins.ResolveObject(name, looker)
		if outcome != resolve.OutcomeOne {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(one.ID))
		return 1
	}))
}

// DescribeError renders a script failure for the player-visible reply
// path: sanitized, with no internal detail beyond the taxonomy code.
func DescribeError(err error) string {
	if worlderr.Is(err, worlderr.Timeout) {
		return "That took too long to run and was stopped."
	}
	return fmt.Sprintf("Something went wrong running that (%s).", worlderr.CodeOf(err))
}
