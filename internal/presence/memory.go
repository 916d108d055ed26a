package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRegistry is authoritative for the current process only.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[string]time.Time
	now   func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		conns: make(map[uuid.UUID]map[string]time.Time),
		now:   time.Now,
	}
}

var _ Registry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) Register(_ context.Context, userID uuid.UUID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConns, ok := r.conns[userID]
	if !ok {
		userConns = make(map[string]time.Time)
		r.conns[userID] = userConns
	}
	userConns[connID] = r.now()
	return nil
}

func (r *MemoryRegistry) Unregister(_ context.Context, userID uuid.UUID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConns, ok := r.conns[userID]
	if !ok {
		return nil
	}
	delete(userConns, connID)
	if len(userConns) == 0 {
		delete(r.conns, userID)
	}
	return nil
}

func (r *MemoryRegistry) IsOnline(_ context.Context, userID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[userID]
	return ok, nil
}

func (r *MemoryRegistry) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns), nil
}

// Refresh is a no-op; memory entries live until unregistered.
func (r *MemoryRegistry) Refresh(context.Context, []uuid.UUID) error {
	return nil
}

// Connections reports how many connections a user holds.
func (r *MemoryRegistry) Connections(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[userID])
}
