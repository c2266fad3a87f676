package host

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	lua "github.com/yuin/gopher-lua"

	"github.com/zot/conductor/internal/config"
	"github.com/zot/conductor/internal/controller"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// InputEvent is the wire format for remote input notifications.
type InputEvent struct {
	Event string  `json:"event"` // "inputBegan" or "inputEnded"
	Key   string  `json:"key"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// InputSocket bridges a websocket connection to the input signal
// dispatchers. Each received event is posted to the dispatch loop, so
// handler invocation stays on the loop goroutine.
type InputSocket struct {
	config   *config.Config
	loop     *Loop
	server   *http.Server
	listener net.Listener
}

// NewInputSocket creates an input bridge over a dispatch loop.
func NewInputSocket(cfg *config.Config, loop *Loop) *InputSocket {
	return &InputSocket{config: cfg, loop: loop}
}

// Log logs a message via the config.
func (is *InputSocket) Log(level int, format string, args ...interface{}) {
	is.config.Log(level, format, args...)
}

// Start listens on addr and serves websocket upgrades on /input.
func (is *InputSocket) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	is.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/input", is.handleWS)
	is.server = &http.Server{Handler: mux}

	go func() {
		if err := is.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			is.Log(0, "InputSocket: server error: %v", err)
		}
	}()

	is.Log(1, "InputSocket: listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound listen address.
func (is *InputSocket) Addr() string {
	if is.listener == nil {
		return ""
	}
	return is.listener.Addr().String()
}

// Stop shuts the server down.
func (is *InputSocket) Stop() error {
	if is.server == nil {
		return nil
	}
	return is.server.Close()
}

// handleWS upgrades a connection and pumps its input events into the loop.
func (is *InputSocket) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		is.Log(0, "InputSocket: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	is.Log(1, "InputSocket: connection from %s", conn.RemoteAddr())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			is.Log(1, "InputSocket: connection closed: %v", err)
			return
		}

		var event InputEvent
		if err := json.Unmarshal(data, &event); err != nil {
			is.Log(0, "InputSocket: bad message: %v", err)
			continue
		}

		is.dispatch(event)
	}
}

// dispatch posts one event's fire onto the loop goroutine.
func (is *InputSocket) dispatch(event InputEvent) {
	var kind controller.Kind
	switch event.Event {
	case "inputBegan":
		kind = controller.InputBegan
	case "inputEnded":
		kind = controller.InputEnded
	default:
		is.Log(0, "InputSocket: unknown event %q", event.Event)
		return
	}

	d := is.loop.Dispatcher(kind)
	if d == nil {
		return
	}

	key := lua.LString(event.Key)
	x := lua.LNumber(event.X)
	y := lua.LNumber(event.Y)
	is.loop.Post(func() {
		d.Fire(key, x, y)
	})
}
