package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Hub maintains the clients connected to this instance, grouped by user.
type Hub struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{groups: make(map[uuid.UUID]map[*Client]struct{})}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[c.userID]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[c.userID] = group
	}
	group[c] = struct{}{}
}

// remove reports whether the client was still registered.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[c.userID]
	if !ok {
		return false
	}
	if _, ok := group[c]; !ok {
		return false
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, c.userID)
	}
	return true
}

// members snapshots a user's group so sends happen outside the lock.
func (h *Hub) members(userID uuid.UUID) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group := h.groups[userID]
	out := make([]*Client, 0, len(group))
	for c := range group {
		out = append(out, c)
	}
	return out
}

func (h *Hub) all() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for _, group := range h.groups {
		for c := range group {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) userIDs() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(h.groups))
	for id := range h.groups {
		out = append(out, id)
	}
	return out
}

func (h *Hub) sendToUser(userID uuid.UUID, msg []byte) int {
	members := h.members(userID)
	for _, c := range members {
		c.enqueue(msg)
	}
	return len(members)
}

func (h *Hub) broadcast(msg []byte) int {
	clients := h.all()
	for _, c := range clients {
		c.enqueue(msg)
	}
	return len(clients)
}

// ClientCount is the number of sockets open on this instance.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, group := range h.groups {
		n += len(group)
	}
	return n
}
