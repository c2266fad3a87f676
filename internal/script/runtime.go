// Package script provides the shared Lua runtime and the loadable-unit
// registry. Controller units are ordinary Lua modules: files that return a
// table when executed. The registry maps unit names to their files and
// evaluates them on demand in a single shared Lua state.
package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
)

// Runtime owns the shared Lua state all controller units run in.
// It is single-threaded: callers must serialize access, which the host does
// by driving everything from one dispatch loop.
type Runtime struct {
	State  *lua.LState
	config *config.Config
}

// NewRuntime creates a Lua state with the standard libraries controllers need.
func NewRuntime(cfg *config.Config) *Runtime {
	L := lua.NewState()

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	r := &Runtime{State: L, config: cfg}
	r.registerLogGlobal()
	return r
}

// Close releases the Lua state.
func (r *Runtime) Close() {
	r.State.Close()
}

// Log logs a message via the config.
func (r *Runtime) Log(level int, format string, args ...interface{}) {
	r.config.Log(level, format, args...)
}

// registerLogGlobal adds a global log([level,] message) function so controller
// scripts share the host's verbosity-gated logging.
func (r *Runtime) registerLogGlobal() {
	L := r.State
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		var level int
		var msg string

		if top == 1 {
			level = 0
			msg = L.CheckString(1)
		} else {
			level = L.CheckInt(1)
			msg = L.CheckString(2)
		}

		r.Log(level, "[lua] %s", msg)
		return 0
	}))
}
