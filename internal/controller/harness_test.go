package controller

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/script"
)

// testEnv bundles the pieces most controller tests need.
type testEnv struct {
	cfg      *config.Config
	runtime  *script.Runtime
	registry *script.Registry
	loader   *Loader
	log      *bytes.Buffer
}

func newTestEnv(t *testing.T, context string) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Controllers.Context = context
	var buf bytes.Buffer
	cfg.SetLogOutput(&buf)

	rt := script.NewRuntime(cfg)
	t.Cleanup(rt.Close)
	reg := script.NewRegistry(cfg, rt)

	return &testEnv{
		cfg:      cfg,
		runtime:  rt,
		registry: reg,
		loader:   NewLoader(cfg, rt, reg),
		log:      &buf,
	}
}

// writeScript writes a Lua file into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create script dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

// loadDir indexes dir as a deep root and loads everything under it.
func (env *testEnv) loadDir(t *testing.T, dir string) *Collection {
	t.Helper()
	env.registry.Init(script.Root{Path: dir})
	col := NewCollection()
	env.loader.LoadRoot(col, dir)
	return col
}

// global fetches a Lua global for assertions.
func (env *testEnv) global(name string) lua.LValue {
	return env.runtime.State.GetGlobal(name)
}

// unit builds a bare controller for resolver tests.
func unit(name string, priority int, deps ...string) *Controller {
	return &Controller{
		Name:         name,
		Priority:     priority,
		Dependencies: deps,
		connected:    make(map[Kind]bool),
	}
}

// index builds the by-name map the resolver consumes.
func index(units ...*Controller) map[string]*Controller {
	m := make(map[string]*Controller, len(units))
	for _, u := range units {
		m[u.Name] = u
	}
	return m
}

// names flattens an ordered result for comparison.
func names(units []*Controller) []string {
	result := make([]string, len(units))
	for i, u := range units {
		result[i] = u.Name
	}
	return result
}

func equalNames(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
