// Package controller loads Lua controller units, resolves their
// initialization order from declared priorities and dependencies, runs their
// init hooks, and wires their signal handlers to host signal sources.
package controller

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
)

// DefaultPriority is assigned to units that declare none. Priorities nominally
// range 1-1000; lower values initialize earlier.
const DefaultPriority = 500

// Controller is a loaded unit: the evaluated table plus bookkeeping. The
// table's shape is probed once at load time, so hooks and handlers are looked
// up here rather than re-checked on every use.
type Controller struct {
	Name         string
	Priority     int
	Dependencies []string
	// Raw units opt out of the init-hook lifecycle entirely.
	Raw   bool
	Table *lua.LTable

	init    *lua.LFunction
	signals map[Kind]*lua.LFunction

	// Bookkeeping, mutated only during the setup phase.
	Initialized bool
	InitTime    time.Time
	connected   map[Kind]bool
}

// newController probes a unit table once and caches what it declares.
func newController(cfg *config.Config, L *lua.LState, name string, tbl *lua.LTable) *Controller {
	c := &Controller{
		Name:      name,
		Priority:  DefaultPriority,
		Table:     tbl,
		signals:   make(map[Kind]*lua.LFunction),
		connected: make(map[Kind]bool),
	}
	c.probe(cfg, L)
	return c
}

// probe reads the declared fields from the unit table. Called at load time
// and again on hot reload, when the table is replaced.
func (c *Controller) probe(cfg *config.Config, L *lua.LState) {
	tbl := c.Table

	if v := L.GetField(tbl, "priority"); v != lua.LNil {
		if n, ok := v.(lua.LNumber); ok {
			c.Priority = int(n)
		} else {
			cfg.Log(0, "controller %s: priority is %s, not a number; using default", c.Name, v.Type())
		}
	}

	c.Dependencies = nil
	if v := L.GetField(tbl, "dependencies"); v != lua.LNil {
		if deps, ok := v.(*lua.LTable); ok {
			for i := 1; i <= deps.Len(); i++ {
				if s, ok := L.RawGetInt(deps, i).(lua.LString); ok {
					c.Dependencies = append(c.Dependencies, string(s))
				}
			}
		}
	}

	c.Raw = lua.LVAsBool(L.GetField(tbl, "raw"))

	// GetField honors metatables, so class-style controllers work too
	c.init = nil
	if fn, ok := L.GetField(tbl, "init").(*lua.LFunction); ok {
		c.init = fn
	}

	c.signals = make(map[Kind]*lua.LFunction)
	if v := L.GetField(tbl, "signals"); v != lua.LNil {
		sigs, ok := v.(*lua.LTable)
		if !ok {
			cfg.Log(0, "controller %s: signals is %s, not a table", c.Name, v.Type())
			return
		}
		sigs.ForEach(func(key, val lua.LValue) {
			name, ok := key.(lua.LString)
			if !ok {
				return
			}
			kind, ok := KindFromField(string(name))
			if !ok {
				cfg.Log(0, "controller %s: unknown signal %q", c.Name, string(name))
				return
			}
			fn, ok := val.(*lua.LFunction)
			if !ok {
				cfg.Log(0, "controller %s: signal %s is %s, not a function", c.Name, kind, val.Type())
				return
			}
			c.signals[kind] = fn
		})
	}
}

// Refresh swaps in a re-evaluated table and re-probes it, keeping the init
// and connection bookkeeping so a reloaded unit is neither re-initialized nor
// re-subscribed.
func (c *Controller) Refresh(cfg *config.Config, L *lua.LState, tbl *lua.LTable) {
	c.Table = tbl
	c.Priority = DefaultPriority
	c.probe(cfg, L)
}

// HasInit reports whether the unit declared an init hook.
func (c *Controller) HasInit() bool {
	return c.init != nil
}

// Signal returns the unit's current handler for a kind, or nil.
func (c *Controller) Signal(kind Kind) *lua.LFunction {
	return c.signals[kind]
}

// Connected reports whether the unit's handler for a kind has been subscribed.
func (c *Controller) Connected(kind Kind) bool {
	return c.connected[kind]
}

// Collection holds loaded units in load order plus a name index. On duplicate
// names the map entry is overwritten while the earlier sequence entry stays:
// the two views diverge for that name, which callers tolerate (the sequence
// preserves load history, the map answers "current unit by name").
type Collection struct {
	Ordered []*Controller
	ByName  map[string]*Controller
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{ByName: make(map[string]*Controller)}
}

// Add appends a unit and indexes it by name, returning the unit it displaced
// in the index, if any.
func (col *Collection) Add(c *Controller) *Controller {
	prev := col.ByName[c.Name]
	col.Ordered = append(col.Ordered, c)
	col.ByName[c.Name] = c
	return prev
}
