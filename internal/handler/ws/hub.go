// Package ws streams execution reports to websocket clients.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"CopyFabric/internal/domain/models"
	drepo "CopyFabric/internal/domain/repository"
	"CopyFabric/pkg/logger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 64
)

type client struct {
	conn     *websocket.Conn
	send     chan models.ExecutionReport
	masterID string
}

// Hub keeps the connected clients and fans reports out to them. A client
// that cannot keep up is disconnected rather than slowing dispatch down.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP upgrades the request. The optional master_id query parameter
// limits the stream to one master.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}
	c := &client{
		conn:     conn,
		send:     make(chan models.ExecutionReport, sendBuffer),
		masterID: r.URL.Query().Get("master_id"),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("websocket client connected", logger.String("remote", r.RemoteAddr), logger.Int("clients", h.Len()))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump discards inbound frames and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case rep, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(rep); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) Name() string { return "websocket" }

// Record never blocks; slow clients are dropped.
func (h *Hub) Record(_ context.Context, reports []models.ExecutionReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		for _, rep := range reports {
			if c.masterID != "" && c.masterID != rep.MasterID {
				continue
			}
			select {
			case c.send <- rep:
			default:
				h.log.Warn("websocket client too slow, dropping")
				delete(h.clients, c)
				close(c.send)
			}
			if _, ok := h.clients[c]; !ok {
				break
			}
		}
	}
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

var _ drepo.ResultSink = (*Hub)(nil)
