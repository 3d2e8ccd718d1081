package notifyhub

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/moyoez/excel-console/tool"
	"github.com/moyoez/excel-console/types"
)

const writeWait = 5 * time.Second

// client serializes writes; a websocket connection allows one writer at a time.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (cl *client) write(payload []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub holds WebSocket connections and broadcasts console events to all clients.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*client
}

// New creates a new notify hub.
func New() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]*client),
	}
}

// Register adds a WebSocket connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = &client{conn: conn}
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Len reports the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send writes one event to a single registered connection.
func (h *Hub) Send(conn *websocket.Conn, event *types.ConsoleEvent) error {
	payload, err := sonic.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.RLock()
	cl, ok := h.conns[conn]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return cl.write(payload)
}

// Broadcast sends the event as JSON to all registered connections.
func (h *Hub) Broadcast(event *types.ConsoleEvent) {
	if event == nil {
		return
	}
	payload, err := sonic.Marshal(event)
	if err != nil {
		tool.DefaultLogger.Errorf("[NotifyHub] failed to encode %s event: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns))
	for _, cl := range h.conns {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		if err := cl.write(payload); err != nil {
			tool.DefaultLogger.Debugf("[NotifyHub] write failed: %v", err)
		}
	}
}
