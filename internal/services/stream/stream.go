// Package stream pushes fixture state to websocket clients.
package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bbernstein/lacylights-motion/internal/fixture"
	"github.com/bbernstein/lacylights-motion/internal/services/pubsub"
)

const (
	writeWait          = 5 * time.Second
	defaultPingPeriod  = 10 * time.Second
	subscriptionBuffer = 64
)

// Message types sent to clients.
const (
	MessageSnapshot = "snapshot"
	MessageState    = "state"
	MessagePatch    = "patch"
)

// Message is the envelope of every websocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Source provides the initial snapshot for new clients.
type Source interface {
	Snapshot() []fixture.State
}

// Handler upgrades requests to websockets and streams fixture updates.
// The optional "fixture" query parameter limits updates to one fixture.
type Handler struct {
	pubsub     *pubsub.PubSub
	source     Source
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

// NewHandler creates a stream handler.
func NewHandler(ps *pubsub.PubSub, source Source) *Handler {
	return &Handler{
		pubsub: ps,
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for WebSocket
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pingPeriod: defaultPingPeriod,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		log.Printf("⚠️  Websocket upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	filter := r.URL.Query().Get("fixture")

	states := h.pubsub.Subscribe(pubsub.TopicFixtureState, filter, subscriptionBuffer)
	defer h.pubsub.Unsubscribe(states)
	patches := h.pubsub.Subscribe(pubsub.TopicPatchUpdated, filter, subscriptionBuffer)
	defer h.pubsub.Unsubscribe(patches)

	if err := h.write(conn, Message{Type: MessageSnapshot, Data: h.initialSnapshot(filter)}); err != nil {
		return
	}

	// Clients only send control frames; reading detects disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg, ok := <-states.Channel:
			if !ok {
				return
			}
			if err := h.write(conn, Message{Type: MessageState, Data: msg}); err != nil {
				return
			}
		case msg, ok := <-patches.Channel:
			if !ok {
				return
			}
			if err := h.write(conn, Message{Type: MessagePatch, Data: msg}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) initialSnapshot(filter string) []fixture.State {
	all := h.source.Snapshot()
	if filter == "" {
		return all
	}
	states := make([]fixture.State, 0, 1)
	for _, state := range all {
		if state.ID == filter {
			states = append(states, state)
		}
	}
	return states
}

func (h *Handler) write(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
