package controller

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/script"
)

// Core ties discovery, loading, ordering, lifecycle, and signal wiring
// together. One Core owns one runtime, one registry, and one collection for
// the lifetime of the host session; nothing tears them down explicitly.
//
// All Core methods must run on the host's dispatch goroutine: the runtime's
// Lua state is single-threaded and the bookkeeping is unlocked.
type Core struct {
	Config     *config.Config
	Runtime    *script.Runtime
	Registry   *script.Registry
	Collection *Collection

	loader    *Loader
	resolver  *Resolver
	runner    *Runner
	connector *Connector
}

// New creates a Core over the host's signal sources.
func New(cfg *config.Config, sources Sources) *Core {
	rt := script.NewRuntime(cfg)
	reg := script.NewRegistry(cfg, rt)

	return &Core{
		Config:     cfg,
		Runtime:    rt,
		Registry:   reg,
		Collection: NewCollection(),
		loader:     NewLoader(cfg, rt, reg),
		resolver:   NewResolver(cfg, reg),
		runner:     NewRunner(cfg, rt, reg),
		connector:  NewConnector(cfg, rt, sources),
	}
}

// roots builds the registry roots from config: the shared-packages root is
// indexed shallowly, controller roots transitively.
func (c *Core) roots() []script.Root {
	var roots []script.Root
	if pkg := c.Config.Controllers.Packages; pkg != "" {
		roots = append(roots, script.Root{Path: pkg, Shallow: true})
	}
	for _, r := range c.Config.Controllers.Roots {
		roots = append(roots, script.Root{Path: r})
	}
	return roots
}

// Load rebuilds the registry and loads every controller root, without
// running init hooks or connecting signals.
func (c *Core) Load() {
	c.Registry.Init(c.roots()...)

	for _, root := range c.Config.Controllers.Roots {
		c.loader.LoadRoot(c.Collection, root)
	}
}

// Init runs the full setup pass: rebuild the registry, load every controller
// root, resolve the initialization order, run init hooks, and connect signal
// handlers.
func (c *Core) Init() {
	c.Load()

	ordered := c.resolver.ResolveOrder(c.Collection.Ordered, c.Collection.ByName)
	c.runner.RunInit(ordered)
	c.connector.Connect(c.Collection.Ordered)

	c.Config.Log(1, "core: initialized %d controllers", len(c.Collection.Ordered))
}

// LoadFiles loads additional unit files discovered after Init, then re-runs
// init and connect over the whole collection. Bookkeeping makes both
// idempotent, so only the new units are initialized and subscribed.
func (c *Core) LoadFiles(paths []string) {
	var handles []*script.Handle
	for _, path := range paths {
		if h := c.Registry.AddFile(path); h != nil {
			handles = append(handles, h)
		}
	}
	c.loader.LoadHandles(c.Collection, handles)

	ordered := c.resolver.ResolveOrder(c.Collection.Ordered, c.Collection.ByName)
	c.runner.RunInit(ordered)
	c.connector.Connect(c.Collection.Ordered)
}

// ReloadFile handles a changed script file. A file backing a loaded
// controller is re-evaluated and the controller's table swapped in place,
// keeping its init and connection bookkeeping; anything else is treated as a
// newly discovered unit.
func (c *Core) ReloadFile(path string) {
	name := script.UnitName(path)

	existing, loaded := c.Collection.ByName[name]
	if !loaded {
		c.LoadFiles([]string{path})
		return
	}

	c.Registry.Invalidate(name)
	val, err := c.Registry.Import(name)
	if err != nil {
		c.Config.Log(0, "core: reload of %s failed: %v", name, err)
		return
	}
	tbl, ok := val.(*lua.LTable)
	if !ok {
		c.Config.Log(0, "core: reload of %s returned %s, not a table", name, val.Type())
		return
	}

	existing.Refresh(c.Config, c.Runtime.State, tbl)
	c.Config.Log(1, "core: reloaded controller %s", name)
}

// Order returns the currently resolved initialization order, for inspection.
func (c *Core) Order() []*Controller {
	return c.resolver.ResolveOrder(c.Collection.Ordered, c.Collection.ByName)
}

// Close releases the Lua runtime.
func (c *Core) Close() {
	c.Runtime.Close()
}
