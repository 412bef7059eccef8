package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

// WSRegistry bridges websocket connections onto the bus: each attached
// connection becomes a subscriber for its user and is pumped by a single
// writer goroutine, so concurrent publishes never interleave frames.
type WSRegistry struct {
	bus    Bus
	logger *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]func()
}

func NewWSRegistry(b Bus, logger *slog.Logger) *WSRegistry {
	return &WSRegistry{bus: b, logger: logger, conns: make(map[*websocket.Conn]func())}
}

// Attach subscribes conn to userID's events and starts the write pump.
// The pump owns the connection and closes it when the subscription drains
// or a write fails.
func (r *WSRegistry) Attach(userID string, conn *websocket.Conn) {
	events, rawDetach := r.bus.Subscribe(userID)
	var once sync.Once
	detach := func() { once.Do(rawDetach) }

	r.mu.Lock()
	r.conns[conn] = detach
	r.mu.Unlock()

	go r.writePump(userID, conn, events, detach)
	go r.readPump(userID, conn)
}

func (r *WSRegistry) writePump(userID string, conn *websocket.Conn, events <-chan Event, detach func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		r.drop(conn)
		detach()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				r.logger.Debug("ws write failed", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to notice closed peers.
func (r *WSRegistry) readPump(userID string, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			r.logger.Debug("ws peer detached", "user_id", userID)
			r.Detach(conn)
			return
		}
	}
}

// Detach unsubscribes and closes the connection.
func (r *WSRegistry) Detach(conn *websocket.Conn) {
	r.mu.Lock()
	detach, ok := r.conns[conn]
	delete(r.conns, conn)
	r.mu.Unlock()
	if ok {
		detach()
	}
	_ = conn.Close()
}

func (r *WSRegistry) drop(conn *websocket.Conn) {
	r.mu.Lock()
	delete(r.conns, conn)
	r.mu.Unlock()
}
