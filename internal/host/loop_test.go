package host

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/controller"
)

func newTestLoop(t *testing.T, context string, tick time.Duration) *Loop {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Controllers.Context = context
	cfg.Host.TickInterval = config.Duration(tick)
	var buf bytes.Buffer
	cfg.SetLogOutput(&buf)
	return NewLoop(cfg)
}

func TestLoopSourcesPerContext(t *testing.T) {
	client := newTestLoop(t, "client", time.Second)
	if len(client.Sources()) != len(controller.Kinds) {
		t.Errorf("Client loop should supply every kind, got %d", len(client.Sources()))
	}

	server := newTestLoop(t, "server", time.Second)
	sources := server.Sources()
	for _, kind := range controller.Kinds {
		_, ok := sources[kind]
		if kind.ClientOnly() && ok {
			t.Errorf("Server loop must not supply client-only kind %s", kind)
		}
		if !kind.ClientOnly() && !ok {
			t.Errorf("Server loop missing kind %s", kind)
		}
	}
}

func TestLoopTickFiresUpdate(t *testing.T) {
	loop := newTestLoop(t, "client", 5*time.Millisecond)
	var ticks atomic.Int64

	loop.Dispatcher(controller.Update).Subscribe(func(args ...lua.LValue) {
		if len(args) != 1 {
			t.Errorf("Update should carry the delta, got %d args", len(args))
		}
		ticks.Add(1)
	})

	go loop.Run()
	defer loop.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("Expected at least 3 ticks, got %d", ticks.Load())
	}
}

func TestLoopPostRunsOnLoop(t *testing.T) {
	loop := newTestLoop(t, "client", time.Hour)
	go loop.Run()
	defer loop.Stop()

	done := make(chan struct{})
	loop.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Posted work never ran")
	}
}

func TestLoopPostAfterStop(t *testing.T) {
	loop := newTestLoop(t, "client", time.Hour)
	loop.Stop()

	// Must not block or panic
	loop.Post(func() {})
}
