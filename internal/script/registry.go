package script

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
)

// Root designates a directory for unit discovery. A shallow root indexes only
// its direct .lua children; any other root is indexed transitively.
type Root struct {
	Path    string
	Shallow bool
}

// Handle is a reference to a not-yet-evaluated unit: a named .lua file.
// Handles are never mutated after registration.
type Handle struct {
	Name string
	Path string
}

// Registry maps unique unit names to handles and evaluates them on demand.
// Init builds the map once per discovery pass; re-running Init fully replaces
// it. Evaluated values are cached, so each unit's script runs at most once.
type Registry struct {
	rt      *Runtime
	config  *config.Config
	handles map[string]*Handle
	order   []*Handle // discovery order
	cache   map[string]lua.LValue
	core    *lua.LTable
	ready   bool
}

// NewRegistry creates an empty registry bound to a runtime.
// Import fails with ErrNotInitialized until Init has run.
func NewRegistry(cfg *config.Config, rt *Runtime) *Registry {
	return &Registry{rt: rt, config: cfg}
}

// Init clears and rebuilds the name-to-handle map from the given roots.
// Unreadable roots are warned about and skipped; discovery never aborts the
// pass.
func (reg *Registry) Init(roots ...Root) {
	reg.handles = make(map[string]*Handle)
	reg.order = nil
	reg.cache = make(map[string]lua.LValue)
	reg.ready = true

	for _, root := range roots {
		if root.Shallow {
			reg.scanShallow(root.Path)
		} else {
			reg.scanDeep(root.Path)
		}
	}

	reg.config.Log(2, "registry: indexed %d units from %d roots", len(reg.order), len(roots))
}

// scanShallow indexes only the direct .lua children of a root. Used for the
// shared-packages root, whose nested files belong to the packages themselves.
func (reg *Registry) scanShallow(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		reg.config.Log(0, "registry: cannot read root %s: %v", root, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		reg.register(filepath.Join(root, entry.Name()))
	}
}

// scanDeep indexes every .lua file nested under a root.
func (reg *Registry) scanDeep(root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			reg.config.Log(0, "registry: error walking %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".lua") {
			return nil
		}
		reg.register(path)
		return nil
	})
	if err != nil {
		reg.config.Log(0, "registry: cannot walk root %s: %v", root, err)
	}
}

// register adds a handle for a file, warning when its name collides with an
// earlier registration. The later registration wins.
func (reg *Registry) register(path string) *Handle {
	name := UnitName(path)
	h := &Handle{Name: name, Path: path}

	if prev, ok := reg.handles[name]; ok {
		reg.config.Log(0, "registry: duplicate unit name %q: %s replaces %s", name, path, prev.Path)
	}
	reg.handles[name] = h
	reg.order = append(reg.order, h)
	return reg.handles[name]
}

// AddFile registers a single file after Init, for incremental discovery.
// Returns nil if the registry has not been initialized.
func (reg *Registry) AddFile(path string) *Handle {
	if !reg.ready {
		return nil
	}
	return reg.register(path)
}

// UnitName derives a unit's name from its file path.
func UnitName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".lua")
}

// Import resolves a unit name to its evaluated value, running the script on
// first use and caching the result. The cache slot is marked before execution
// so circular imports see the placeholder instead of recursing; the slot is
// cleared on error so a retry is possible.
func (reg *Registry) Import(name string) (lua.LValue, error) {
	if !reg.ready {
		return lua.LNil, ErrNotInitialized
	}
	if cached, ok := reg.cache[name]; ok {
		return cached, nil
	}
	h, ok := reg.handles[name]
	if !ok {
		return lua.LNil, &NotFoundError{Name: name}
	}

	reg.cache[name] = lua.LTrue

	val, err := reg.evaluate(h)
	if err != nil {
		delete(reg.cache, name)
		return lua.LNil, &EvalError{Name: name, Err: err}
	}

	reg.cache[name] = val
	return val, nil
}

// evaluate compiles and runs a unit's file, returning its single return value.
func (reg *Registry) evaluate(h *Handle) (lua.LValue, error) {
	L := reg.rt.State

	fn, err := L.LoadFile(h.Path)
	if err != nil {
		return lua.LNil, err
	}

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return lua.LNil, err
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// Invalidate drops a unit's cached value so the next Import re-evaluates its
// file. Used by the hot loader when a script changes on disk.
func (reg *Registry) Invalidate(name string) {
	if reg.ready {
		delete(reg.cache, name)
	}
}

// Handle returns the registered handle for a name.
func (reg *Registry) Handle(name string) (*Handle, bool) {
	h, ok := reg.handles[name]
	return h, ok
}

// Handles returns all registered handles in discovery order.
func (reg *Registry) Handles() []*Handle {
	return reg.order
}

// HandlesUnder returns the handles whose files live under dir, in discovery
// order. Handles superseded by a duplicate name are excluded.
func (reg *Registry) HandlesUnder(dir string) []*Handle {
	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)
	var result []*Handle
	for _, h := range reg.order {
		if reg.handles[h.Name] != h {
			continue
		}
		if strings.HasPrefix(h.Path, prefix) {
			result = append(result, h)
		}
	}
	return result
}

// Capability returns the table passed to every controller's init hook. It
// exposes import(name) and log(level, msg) so controllers can fetch shared
// dependencies by name without reaching for global state. Built once per
// registry and shared across controllers.
func (reg *Registry) Capability() *lua.LTable {
	if reg.core != nil {
		return reg.core
	}

	L := reg.rt.State
	core := L.NewTable()

	L.SetField(core, "import", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		val, err := reg.Import(name)
		if err != nil {
			L.RaiseError("import %q: %v", name, err)
			return 0
		}
		L.Push(val)
		return 1
	}))

	L.SetField(core, "log", L.NewFunction(func(L *lua.LState) int {
		level := L.CheckInt(1)
		msg := L.CheckString(2)
		reg.rt.Log(level, "[lua] %s", msg)
		return 0
	}))

	reg.core = core
	return core
}
