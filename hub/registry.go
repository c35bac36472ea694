package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"chat-relay/domain"
)

type Hub struct {
	clients map[string]domain.Connection
	mu      sync.RWMutex
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]domain.Connection),
	}
}

func (h *Hub) Add(conn domain.Connection) error {
	h.mu.Lock()
	if _, exists := h.clients[conn.ID()]; exists {
		h.mu.Unlock()
		return fmt.Errorf("add %s: %w", conn.ID(), domain.ErrDuplicateConnection)
	}
	h.clients[conn.ID()] = conn
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("client connected", "clientId", conn.ID(), "clients", count)
	return nil
}

func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	if _, exists := h.clients[id]; !exists {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, id)
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("client disconnected", "clientId", id, "clients", count)
	return true
}

// ForEach visits the connections registered at call time. The visitor runs
// without the lock held, so it may add or remove connections.
func (h *Hub) ForEach(visit func(domain.Connection)) {
	h.mu.RLock()
	snapshot := lo.Values(h.clients)
	h.mu.RUnlock()

	for _, conn := range snapshot {
		visit(conn)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
