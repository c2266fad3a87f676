package controller

import (
	"time"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/script"
)

// Runner invokes each unit's init hook exactly once, in resolved order. A
// failing hook is reported and never retried; it cannot prevent later units
// from initializing.
type Runner struct {
	config   *config.Config
	runtime  *script.Runtime
	registry *script.Registry
}

// NewRunner creates a lifecycle runner.
func NewRunner(cfg *config.Config, rt *script.Runtime, reg *script.Registry) *Runner {
	return &Runner{config: cfg, runtime: rt, registry: reg}
}

// RunInit initializes every unit in order. Already-initialized units and raw
// units are skipped, so re-running after an incremental load only touches new
// units. Each hook receives the registry capability as its argument:
// function Controller:init(core).
func (r *Runner) RunInit(ordered []*Controller) {
	core := r.registry.Capability()
	L := r.runtime.State

	for _, c := range ordered {
		if c.Initialized {
			continue
		}
		if c.Raw {
			r.config.Log(2, "lifecycle: %s is raw, skipping init", c.Name)
			continue
		}

		// Mark before invoking so a throwing hook is never retried
		c.Initialized = true
		c.InitTime = time.Now()

		if c.init == nil {
			continue
		}

		r.config.Log(1, "lifecycle: initializing %s", c.Name)
		L.Push(c.init)
		L.Push(c.Table)
		L.Push(core)
		if err := L.PCall(2, 0, nil); err != nil {
			r.config.Log(0, "lifecycle: %s: init failed: %v", c.Name, err)
		}
	}
}
