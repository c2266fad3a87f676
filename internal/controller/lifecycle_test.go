package controller

import (
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/script"
)

func TestRunInitOrderAndExactlyOnce(t *testing.T) {
	env := newTestEnv(t, "client")
	dir := t.TempDir()
	writeScript(t, dir, "first.lua", `
		local C = { priority = 100 }
		function C:init(core)
			trace = (trace or "") .. "first;"
		end
		return C
	`)
	writeScript(t, dir, "second.lua", `
		local C = { priority = 200 }
		function C:init(core)
			trace = (trace or "") .. "second;"
		end
		return C
	`)

	col := env.loadDir(t, dir)
	resolver := NewResolver(env.cfg, env.registry)
	runner := NewRunner(env.cfg, env.runtime, env.registry)

	ordered := resolver.ResolveOrder(col.Ordered, col.ByName)
	runner.RunInit(ordered)
	runner.RunInit(ordered) // second pass must be a no-op

	if got := env.global("trace"); got != lua.LString("first;second;") {
		t.Errorf("trace = %v, want each hook once in priority order", got)
	}
	for _, c := range ordered {
		if !c.Initialized {
			t.Errorf("Unit %s not marked initialized", c.Name)
		}
		if c.InitTime.IsZero() {
			t.Errorf("Unit %s has no init timestamp", c.Name)
		}
	}
}

func TestRunInitFailureDoesNotAbortBatch(t *testing.T) {
	env := newTestEnv(t, "client")
	dir := t.TempDir()
	writeScript(t, dir, "explodes.lua", `
		local C = { priority = 100 }
		function C:init(core)
			error("init failure")
		end
		return C
	`)
	writeScript(t, dir, "survivor.lua", `
		local C = { priority = 200 }
		function C:init(core)
			survived = true
		end
		return C
	`)

	col := env.loadDir(t, dir)
	runner := NewRunner(env.cfg, env.runtime, env.registry)
	ordered := NewResolver(env.cfg, env.registry).ResolveOrder(col.Ordered, col.ByName)
	runner.RunInit(ordered)

	if env.global("survived") != lua.LTrue {
		t.Error("A failing init hook must not prevent later units from initializing")
	}
	if !strings.Contains(env.log.String(), "explodes") {
		t.Error("Expected the failure report to name the unit")
	}
	// Marked before invocation: a throwing hook is never retried
	if !col.ByName["explodes"].Initialized {
		t.Error("Failing unit should still be marked initialized")
	}
}

func TestRunInitSkipsRawUnits(t *testing.T) {
	env := newTestEnv(t, "client")
	dir := t.TempDir()
	writeScript(t, dir, "passive.lua", `
		local C = { raw = true }
		function C:init(core)
			rawInited = true
		end
		return C
	`)

	col := env.loadDir(t, dir)
	runner := NewRunner(env.cfg, env.runtime, env.registry)
	runner.RunInit(col.Ordered)

	if env.global("rawInited") == lua.LTrue {
		t.Error("Raw units opt out of the init lifecycle")
	}
	if col.ByName["passive"].Initialized {
		t.Error("Raw units should not be marked initialized")
	}
}

func TestRunInitPassesCapability(t *testing.T) {
	env := newTestEnv(t, "client")
	packages := t.TempDir()
	controllers := t.TempDir()
	writeScript(t, packages, "settings.lua", `return { title = "conductor" }`)
	writeScript(t, controllers, "consumer.lua", `
		local C = {}
		function C:init(core)
			importedTitle = core.import("settings").title
		end
		return C
	`)

	env.registry.Init(
		script.Root{Path: packages, Shallow: true},
		script.Root{Path: controllers},
	)
	col := NewCollection()
	env.loader.LoadRoot(col, controllers)

	runner := NewRunner(env.cfg, env.runtime, env.registry)
	runner.RunInit(col.Ordered)

	if got := env.global("importedTitle"); got != lua.LString("conductor") {
		t.Errorf("importedTitle = %v, want the imported package value", got)
	}
}

func TestRunInitWithoutHook(t *testing.T) {
	env := newTestEnv(t, "client")
	dir := t.TempDir()
	writeScript(t, dir, "hookless.lua", `return { priority = 1 }`)

	col := env.loadDir(t, dir)
	runner := NewRunner(env.cfg, env.runtime, env.registry)
	runner.RunInit(col.Ordered)

	c := col.ByName["hookless"]
	if !c.Initialized {
		t.Error("Hookless units are still marked initialized")
	}
}
