// Package publish serves the session state feed over websockets. Every
// client gets its own subscription, so a slow client only skips states and
// never holds up the controller or other clients.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/observe"
	"github.com/RyanBlaney/sonido-vocal/session"
)

// Source hands out latest-wins state subscriptions.
type Source interface {
	Subscribe() (<-chan session.State, func())
}

// Controls are the operations clients may trigger. Nil disables inbound
// commands.
type Controls interface {
	Stop() error
	Cancel() error
	Done() error
	SetGain(track int, gain float64) error
	SetApplyAlignment(on bool) error
}

// Command is an inbound client message.
type Command struct {
	Action string  `json:"action"`
	Track  int     `json:"track,omitempty"`
	Gain   float64 `json:"gain,omitempty"`
	On     bool    `json:"on,omitempty"`
}

// Reply answers a Command.
type Reply struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Message wraps everything written to a client.
type Message struct {
	Type  string         `json:"type"` // "state" or "reply"
	State *session.State `json:"state,omitempty"`
	Reply *Reply         `json:"reply,omitempty"`
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Option configures a [Hub].
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithControls lets clients drive the session.
func WithControls(c Controls) Option {
	return func(h *Hub) { h.controls = c }
}

// Hub is an [http.Handler] upgrading requests to state feed connections.
type Hub struct {
	source   Source
	controls Controls
	logger   logging.Logger
	metrics  *observe.Metrics
}

// NewHub returns a hub publishing states from source.
func NewHub(source Source, opts ...Option) *Hub {
	h := &Hub{source: source}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrGlobal(h.logger).WithFields(logging.Fields{"component": "state_feed"})
	h.metrics = observe.OrDefault(h.metrics)
	return h
}

// ServeHTTP upgrades the connection and streams states until either side
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(err, "websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	h.metrics.FeedClients.Add(ctx, 1)
	defer h.metrics.FeedClients.Add(context.WithoutCancel(ctx), -1)

	states, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	logger := h.logger.WithFields(logging.Fields{"remote": r.RemoteAddr})
	logger.Debug("feed client connected")

	replies := make(chan Reply, 8)
	readDone := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go h.readLoop(conn, replies, readDone, stop, logger)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var msg Message
		select {
		case <-readDone:
			logger.Debug("feed client disconnected")
			return
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			msg = Message{Type: "state", State: &s}
		case rep := <-replies:
			msg = Message{Type: "reply", Reply: &rep}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logger.Debug("write to feed client failed", logging.Fields{"error": err.Error()})
			return
		}
	}
}

// readLoop consumes client messages so control frames are processed, and
// runs commands when controls are configured.
func (h *Hub) readLoop(conn *websocket.Conn, replies chan<- Reply, done chan<- struct{}, stop <-chan struct{}, logger logging.Logger) {
	defer close(done)

	reply := func(r Reply) bool {
		select {
		case replies <- r:
			return true
		case <-stop:
			return false
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if h.controls == nil {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			if !reply(Reply{Error: fmt.Sprintf("invalid command: %v", err)}) {
				return
			}
			continue
		}
		rep := Reply{Action: cmd.Action, OK: true}
		if err := h.run(cmd); err != nil {
			rep.OK, rep.Error = false, err.Error()
			logger.Debug("feed command failed", logging.Fields{"action": cmd.Action, "error": err.Error()})
		}
		if !reply(rep) {
			return
		}
	}
}

func (h *Hub) run(cmd Command) error {
	switch cmd.Action {
	case "stop":
		return h.controls.Stop()
	case "cancel":
		return h.controls.Cancel()
	case "done":
		return h.controls.Done()
	case "gain":
		return h.controls.SetGain(cmd.Track, cmd.Gain)
	case "align":
		return h.controls.SetApplyAlignment(cmd.On)
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}
