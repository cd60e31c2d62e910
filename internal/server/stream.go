// Package server streams per-frame mouth state to renderer clients over
// WebSocket. The renderer applies the influence weights to its morph
// targets; this side only fans frames out.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// FrameMessage is one engine tick as seen by a renderer client.
type FrameMessage struct {
	Type       string    `json:"type"`
	Mouth      float64   `json:"mouth"`
	Centroid   float64   `json:"centroid"`
	Viseme     int       `json:"viseme"`
	Influences []float64 `json:"influences,omitempty"`
	Fallback   float64   `json:"fallback,omitempty"`
	Sequence   int64     `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
}

// HelloMessage is sent once on connect so the renderer can size its shape
// table before the first frame arrives.
type HelloMessage struct {
	Type    string   `json:"type"`
	Palette []string `json:"palette"`
}

// Hub accepts renderer connections and broadcasts frames to all of them.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]chan []byte
	palette  []string
	sequence int64

	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHub creates a hub announcing the given palette names to new clients.
func NewHub(palette []string, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		palette: palette,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Renderer pages are served from anywhere during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "stream").Logger(),
	}
}

// ServeHTTP upgrades the connection and keeps it subscribed until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	hello, err := json.Marshal(HelloMessage{Type: "hello", Palette: h.palette})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, hello)
	}

	send := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = send
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info().Int("clients", n).Msg("Renderer connected")

	go h.writeLoop(conn, send)

	// Drain incoming messages to process control frames; clients don't talk.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(conn)
}

// Broadcast sends one frame to every connected renderer. A client whose send
// queue is full skips the frame rather than stalling the animation loop.
func (h *Hub) Broadcast(frame FrameMessage) {
	h.mu.Lock()
	h.sequence++
	frame.Sequence = h.sequence
	if frame.Type == "" {
		frame.Type = "frame"
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		h.mu.Unlock()
		return
	}
	sends := make([]chan []byte, 0, len(h.clients))
	for _, send := range h.clients {
		sends = append(sends, send)
	}
	h.mu.Unlock()

	for _, send := range sends {
		select {
		case send <- payload:
		default:
		}
	}
}

// Clients returns the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(conn *websocket.Conn, send chan []byte) {
	for payload := range send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	send, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.logger.Info().Msg("Renderer disconnected")
	}
}
