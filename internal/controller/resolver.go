package controller

import (
	"sort"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/script"
)

// Resolver computes a total initialization order from declared priorities and
// dependency edges. Dependency edges dominate priority: a unit's declared
// dependencies always precede it, except within a detected cycle, where the
// order is best-effort.
type Resolver struct {
	config   *config.Config
	registry *script.Registry
}

// NewResolver creates a resolver. The registry may be nil; it is only used as
// a fallback for dependencies that name shared packages rather than loaded
// controllers.
func NewResolver(cfg *config.Config, reg *script.Registry) *Resolver {
	return &Resolver{config: cfg, registry: reg}
}

// ResolveOrder returns the units in initialization order: ascending priority,
// ties broken by load order, with each unit's in-collection dependencies
// hoisted before it. Every input unit appears exactly once. Missing
// dependencies and cycles are warnings, never errors.
func (r *Resolver) ResolveOrder(units []*Controller, byName map[string]*Controller) []*Controller {
	sorted := make([]*Controller, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	ordered := make([]*Controller, 0, len(sorted))
	done := make(map[*Controller]bool, len(sorted))
	visiting := make(map[*Controller]bool)

	var visit func(c *Controller)
	visit = func(c *Controller) {
		if done[c] {
			return
		}
		if visiting[c] {
			// Break the cycle here; the branch keeps whatever partial
			// order the traversal has produced so far.
			r.config.Log(0, "resolver: circular dependency involving controller %s", c.Name)
			return
		}
		visiting[c] = true

		for _, dep := range c.Dependencies {
			if d, ok := byName[dep]; ok {
				visit(d)
				continue
			}
			// Not a loaded controller; it may be a shared package
			if r.registry != nil {
				if _, err := r.registry.Import(dep); err == nil {
					continue
				}
			}
			r.config.Log(0, "resolver: controller %s: unresolved dependency %q", c.Name, dep)
		}

		delete(visiting, c)
		done[c] = true
		ordered = append(ordered, c)
	}

	for _, c := range sorted {
		visit(c)
	}

	return ordered
}
