package controller

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/script"
)

// Loader evaluates registered units and populates a Collection. Each unit is
// loaded at most once per collection; failures are reported per unit and
// never abort the batch.
type Loader struct {
	config   *config.Config
	registry *script.Registry
	runtime  *script.Runtime
}

// NewLoader creates a loader over a registry.
func NewLoader(cfg *config.Config, rt *script.Runtime, reg *script.Registry) *Loader {
	return &Loader{config: cfg, registry: reg, runtime: rt}
}

// LoadRoot loads every unit registered under a root directory.
func (l *Loader) LoadRoot(col *Collection, root string) {
	l.LoadHandles(col, l.registry.HandlesUnder(root))
}

// LoadHandles loads an explicit, pre-enumerated list of units.
func (l *Loader) LoadHandles(col *Collection, handles []*script.Handle) {
	for _, h := range handles {
		l.loadHandle(col, h)
	}
}

// loadHandle evaluates one unit and adds it to the collection. Units that
// fail to evaluate, do not return a table, or declare a mismatched execution
// context are skipped.
func (l *Loader) loadHandle(col *Collection, h *script.Handle) {
	val, err := l.registry.Import(h.Name)
	if err != nil {
		l.config.Log(0, "loader: failed to load %s: %v", h.Name, err)
		return
	}

	tbl, ok := val.(*lua.LTable)
	if !ok {
		l.config.Log(2, "loader: skipping %s: returned %s, not a table", h.Name, val.Type())
		return
	}

	L := l.runtime.State
	if ctx := L.GetField(tbl, "isServer"); ctx != lua.LNil {
		if lua.LVAsBool(ctx) != l.config.IsServer() {
			l.config.Log(2, "loader: skipping %s: wrong execution context", h.Name)
			return
		}
	}

	c := newController(l.config, L, h.Name, tbl)
	if prev := col.Add(c); prev != nil {
		l.config.Log(0, "loader: duplicate controller name %q: replacing map entry (earlier load stays in sequence)", c.Name)
	}
	l.config.Log(2, "loader: loaded controller %s (priority %d)", c.Name, c.Priority)
}
