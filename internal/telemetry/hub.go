package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

const (
	hubBufferSize = 64
	writeWait     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins in dev setups
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans engine events out to every connected WebSocket client. Writes
// carry a deadline; a client that cannot keep up is dropped.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
}

// NewHub creates an empty hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, hubBufferSize),
	}
}

// Name implements worker.Worker
func (h *Hub) Name() string {
	return "websocket_hub"
}

// Run drains the broadcast channel and writes each message to all clients
// until ctx is canceled. On shutdown every client connection is closed.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case message := <-h.broadcast:
			h.writeToAll(message)
		}
	}
}

// Broadcast queues one event for delivery. The call never blocks: when the
// hub cannot keep up the event is dropped with a warning.
func (h *Hub) Broadcast(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to encode event for websocket",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		logger.Warn("websocket broadcast buffer full, dropping event",
			zap.String("type", string(event.Type)),
		)
	}
}

// ServeWS upgrades the request and registers the connection with the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()

	logger.Info("websocket client connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("clients", count),
	)

	// Reader goroutine: clients never send data, but the read pump is what
	// surfaces close frames and broken connections.
	go h.readUntilClose(conn)
}

// ClientCount reports the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) readUntilClose(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) writeToAll(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Debug("evicting websocket client",
				zap.String("remote", client.RemoteAddr().String()),
				zap.Error(err),
			)
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
