// Package status serves the recorder's live state over HTTP and WebSocket.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Recorder states as reported to clients.
const (
	StateReady     = "ready"
	StateRecording = "recording"
)

// levelInterval is the minimum spacing between broadcast level messages.
// Levels arrive once per capture block, far too often for remote clients.
const levelInterval = 500 * time.Millisecond

// StateMessage is pushed to WebSocket clients on every state transition.
type StateMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// LevelsMessage carries coalesced per-channel level readings.
type LevelsMessage struct {
	Type   string `json:"type"`
	Levels []int  `json:"levels"`
	Peak   int    `json:"peak"`
}

// Hub tracks connected WebSocket clients and broadcasts recorder state to
// them. It also satisfies the display interface so the capture loop can feed
// it directly. It is safe for concurrent use.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	state     string
	levels    []int
	peak      int
	lastLevel time.Time
}

// NewHub returns an empty Hub in the ready state.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		state:   StateReady,
	}
}

// State returns the current recorder state.
func (h *Hub) State() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Levels returns the most recent level readings and their peak.
func (h *Hub) Levels() ([]int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.levels...), h.peak
}

// ShowReady broadcasts the transition to the ready state.
func (h *Hub) ShowReady() {
	h.setState(StateReady)
}

// ShowRecording broadcasts the transition to the recording state.
func (h *Hub) ShowRecording() {
	h.setState(StateRecording)
}

// ShowLevels records the latest readings and broadcasts them at most once
// per levelInterval.
func (h *Hub) ShowLevels(levels []int, peak int) {
	h.mu.Lock()
	h.levels = append(h.levels[:0], levels...)
	h.peak = peak

	now := time.Now()
	if now.Sub(h.lastLevel) < levelInterval {
		h.mu.Unlock()
		return
	}
	h.lastLevel = now
	msg := LevelsMessage{Type: "levels", Levels: append([]int(nil), levels...), Peak: peak}
	h.broadcastLocked(msg)
	h.mu.Unlock()
}

func (h *Hub) setState(state string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == state {
		return
	}
	h.state = state
	h.broadcastLocked(StateMessage{Type: "state", State: state})
}

// broadcastLocked writes to every client; dead clients are dropped.
// Caller holds h.mu.
func (h *Hub) broadcastLocked(msg any) {
	for conn := range h.clients {
		if err := conn.WriteJSON(msg); err != nil {
			slog.Debug("dropping WebSocket client", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// register adds a client and sends it the current state.
func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	state := h.state
	h.mu.Unlock()

	_ = conn.WriteJSON(StateMessage{Type: "state", State: state})
}

// unregister removes and closes a client.
func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}
