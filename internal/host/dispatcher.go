// Package host provides signal source adapters: a fan-out dispatcher, a
// tick-driven dispatch loop, and a websocket bridge that turns remote input
// events into signal fires. The controller core only knows SubscribeFunc;
// these types supply them.
package host

import (
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/controller"
)

// Dispatcher fans one named signal out to its subscribed handlers.
// Subscribe happens during setup, Fire from the host loop; the two may be on
// different goroutines, so the handler slice is guarded.
type Dispatcher struct {
	name     string
	handlers []controller.Handler
	mu       sync.Mutex
}

// NewDispatcher creates a dispatcher for a named signal.
func NewDispatcher(name string) *Dispatcher {
	return &Dispatcher{name: name}
}

// Subscribe adds a handler. Handlers are never removed.
func (d *Dispatcher) Subscribe(h controller.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Source returns the SubscribeFunc handed to the controller core.
func (d *Dispatcher) Source() controller.SubscribeFunc {
	return d.Subscribe
}

// Len returns the number of subscribed handlers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

// Fire invokes every handler in subscription order with the given arguments.
// Handlers isolate their own failures, so Fire never fails.
func (d *Dispatcher) Fire(args ...lua.LValue) {
	d.mu.Lock()
	handlers := d.handlers
	d.mu.Unlock()

	for _, h := range handlers {
		h(args...)
	}
}
