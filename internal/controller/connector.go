package controller

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/script"
)

// Handler is a wrapped signal callback ready for a host source.
type Handler func(args ...lua.LValue)

// SubscribeFunc subscribes a handler to a host signal source. The host
// supplies one per signal kind it emits; subscription is permanent.
type SubscribeFunc func(Handler)

// Sources maps signal kinds to the host's subscription functions.
type Sources map[Kind]SubscribeFunc

// Connector subscribes unit signal handlers to host sources, once per
// (unit, kind) pair. Handler failures are caught and logged so they can never
// destabilize the host's dispatch loop.
type Connector struct {
	config  *config.Config
	runtime *script.Runtime
	sources Sources
}

// NewConnector creates a connector over the host's sources. Client-only
// sources supplied in a server context are warned about and ignored.
func NewConnector(cfg *config.Config, rt *script.Runtime, sources Sources) *Connector {
	if cfg.IsServer() {
		for kind := range sources {
			if kind.ClientOnly() {
				cfg.Log(0, "connector: signal %s is client-only, ignoring its source", kind)
				delete(sources, kind)
			}
		}
	}
	return &Connector{config: cfg, runtime: rt, sources: sources}
}

// Connect subscribes every unconnected (unit, kind) pair with a declared
// handler. Re-running it is a no-op for pairs already connected, which lets
// incrementally loaded units join without double-subscribing earlier ones.
func (cn *Connector) Connect(units []*Controller) {
	for _, kind := range Kinds {
		subscribe, ok := cn.sources[kind]
		if !ok {
			continue
		}
		for _, c := range units {
			if c.Signal(kind) == nil || c.connected[kind] {
				continue
			}
			c.connected[kind] = true
			subscribe(cn.wrap(c, kind))
			cn.config.Log(3, "connector: connected %s to %s", c.Name, kind)
		}
	}
}

// wrap builds the handler passed to the host source. It looks the Lua
// function up at invocation time so hot-reloaded units run their current
// handler without resubscribing.
func (cn *Connector) wrap(c *Controller, kind Kind) Handler {
	return func(args ...lua.LValue) {
		fn := c.Signal(kind)
		if fn == nil {
			return
		}
		L := cn.runtime.State
		L.Push(fn)
		L.Push(c.Table)
		for _, a := range args {
			L.Push(a)
		}
		if err := L.PCall(1+len(args), 0, nil); err != nil {
			cn.config.Log(0, "connector: %s: %s handler failed: %v", c.Name, kind, err)
		}
	}
}
