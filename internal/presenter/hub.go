package presenter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/service/session"
)

const writeWait = 5 * time.Second

// Hub pushes messages to connected WebSocket clients. As a presenter it
// broadcasts every session snapshot; new clients get the latest message
// on connect.
type Hub struct {
	session.NopPresenter

	upgrader   websocket.Upgrader
	broadcast  chan any
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	logger     zerolog.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	last    any
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		broadcast:  make(chan any, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
		logger:     logging.WithComponent("ws-hub"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			last := h.last
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("clients", n).Msg("Client connected")
			if last != nil {
				h.write(conn, last)
			}

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.last = msg
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.Unlock()
			for _, conn := range conns {
				h.write(conn, msg)
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg any) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug().Err(err).Msg("Write failed, dropping client")
		h.drop(conn)
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		conn.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info().Int("clients", n).Msg("Client disconnected")
	}
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg any) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn().Msg("Broadcast queue full, dropping message")
	}
}

func (h *Hub) OnSnapshot(s session.Snapshot) {
	h.Broadcast(s)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Reads only detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
