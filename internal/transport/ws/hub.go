package ws

import (
	"log/slog"
	"sync"

	"github.com/KStasi/pixel-map/internal/protocol"
)

// Hub is the set of live connections. It backs the whole-server broadcasts:
// item board updates after a purchase and the online-user counter.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*Conn]struct{})}
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.announce()
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	h.announce()
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends v to every connection. Send failures are the read loop's
// problem; the failing connection will tear itself down.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(v); err != nil {
			slog.Debug("broadcast send failed", "error", err)
		}
	}
}

func (h *Hub) announce() {
	h.Broadcast(protocol.NewOnlineUsers(h.Count()))
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.ping(); err != nil {
			c.close()
		}
	}
}
