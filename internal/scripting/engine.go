package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/worldgrid/internal/core/ecs"
	"github.com/l1jgo/worldgrid/internal/detect"
	"github.com/l1jgo/worldgrid/internal/grid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for detection predicates.
// Single-goroutine access only (simulation loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// EntityInfo is what a script sees of an entity.
type EntityInfo struct {
	ID       ecs.EntityID
	Name     string
	Kind     string
	Position grid.Vec3
}

// Describer resolves entity details for scripts. It returns false for
// entities that no longer exist.
type Describer func(id ecs.EntityID) (EntityInfo, bool)

// NewEngine creates a Lua engine and loads every script under
// scriptsDir/predicates. A missing directory is not an error.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("dist_sq", vm.NewFunction(luaDistSq))

	e := &Engine{vm: vm, log: log}
	if scriptsDir != "" {
		if err := e.loadDir(filepath.Join(scriptsDir, "predicates")); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load predicate scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs src in the engine's VM, defining whatever globals it
// declares.
func (e *Engine) LoadString(name, src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// Has reports whether a global Lua function called name exists.
func (e *Engine) Has(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Predicate binds the Lua function name as a detection predicate. The
// function is called as name(observer, target) with one table per entity
// ({id, name, kind, x, y, z}) and must return a boolean.
func (e *Engine) Predicate(name string, describe Describer) (detect.Predicate, error) {
	if !e.Has(name) {
		return nil, fmt.Errorf("lua function %s not found", name)
	}
	return &luaPredicate{engine: e, name: name, describe: describe}, nil
}

type luaPredicate struct {
	engine   *Engine
	name     string
	describe Describer
}

func (p *luaPredicate) Evaluate(observer, target ecs.EntityID) (bool, error) {
	obs, ok := p.describe(observer)
	if !ok {
		return false, fmt.Errorf("describe observer %s", observer)
	}
	tgt, ok := p.describe(target)
	if !ok {
		return false, fmt.Errorf("describe target %s", target)
	}
	return p.engine.callBool(p.name, p.engine.entityTable(obs), p.engine.entityTable(tgt))
}

func (e *Engine) entityTable(info EntityInfo) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("id", lua.LNumber(info.ID.Index()))
	t.RawSetString("name", lua.LString(info.Name))
	t.RawSetString("kind", lua.LString(info.Kind))
	t.RawSetString("x", lua.LNumber(info.Position.X))
	t.RawSetString("y", lua.LNumber(info.Position.Y))
	t.RawSetString("z", lua.LNumber(info.Position.Z))
	return t
}

// callBool calls a Lua function and reads one boolean result. Lua errors
// come back as Go errors; the VM stack is left balanced either way.
func (e *Engine) callBool(name string, args ...lua.LValue) (bool, error) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return false, fmt.Errorf("lua function %s not found", name)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return false, fmt.Errorf("lua %s: %w", name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	b, ok := result.(lua.LBool)
	if !ok {
		return false, fmt.Errorf("lua %s returned %s, want boolean", name, result.Type())
	}
	return bool(b), nil
}

// --- Lua helpers ---

// luaDistSq(a, b) returns the squared distance between two entity tables.
func luaDistSq(L *lua.LState) int {
	a, b := L.CheckTable(1), L.CheckTable(2)
	dx := lNum(a, "x") - lNum(b, "x")
	dy := lNum(a, "y") - lNum(b, "y")
	dz := lNum(a, "z") - lNum(b, "z")
	L.Push(lua.LNumber(dx*dx + dy*dy + dz*dz))
	return 1
}

// lNum reads a numeric field from a Lua table.
func lNum(t *lua.LTable, key string) float64 {
	return float64(lua.LVAsNumber(t.RawGetString(key)))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
