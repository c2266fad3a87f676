package host

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/controller"
)

// Loop is the host's dispatch loop. Everything that touches the Lua state
// after setup runs on the loop goroutine: update ticks fire here, and other
// goroutines (websocket readers, the hot loader) hand work in through Post.
type Loop struct {
	config      *config.Config
	interval    time.Duration
	dispatchers map[controller.Kind]*Dispatcher
	posted      chan func()
	done        chan struct{}
}

// NewLoop creates a dispatch loop with one dispatcher per signal kind the
// context allows.
func NewLoop(cfg *config.Config) *Loop {
	l := &Loop{
		config:      cfg,
		interval:    cfg.Host.TickInterval.Duration(),
		dispatchers: make(map[controller.Kind]*Dispatcher),
		posted:      make(chan func(), 64),
		done:        make(chan struct{}),
	}
	for _, kind := range controller.Kinds {
		if kind.ClientOnly() && cfg.IsServer() {
			continue
		}
		l.dispatchers[kind] = NewDispatcher(kind.String())
	}
	return l
}

// Sources returns the subscription functions handed to the controller core.
func (l *Loop) Sources() controller.Sources {
	sources := make(controller.Sources, len(l.dispatchers))
	for kind, d := range l.dispatchers {
		sources[kind] = d.Source()
	}
	return sources
}

// Dispatcher returns the dispatcher for a kind, or nil if the context
// excludes it.
func (l *Loop) Dispatcher(kind controller.Kind) *Dispatcher {
	return l.dispatchers[kind]
}

// Post schedules fn to run on the loop goroutine. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	select {
	case l.posted <- fn:
	case <-l.done:
	}
}

// Run drives the loop until Stop: update ticks carry the measured delta
// seconds, posted work runs between ticks. Blocks the calling goroutine,
// which becomes the dispatch goroutine.
func (l *Loop) Run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	update := l.dispatchers[controller.Update]
	last := time.Now()

	for {
		select {
		case <-l.done:
			return
		case fn := <-l.posted:
			fn()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			update.Fire(lua.LNumber(dt))
		}
	}
}

// Stop ends the loop.
func (l *Loop) Stop() {
	close(l.done)
}
