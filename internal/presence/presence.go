// Package presence tracks which users hold a live realtime connection.
//
// A user may hold several connections (devices, tabs). Each connection
// is registered on its own and the user counts as online until the last
// one is unregistered.
package presence

import (
	"context"

	"github.com/google/uuid"
)

type Registry interface {
	Register(ctx context.Context, userID uuid.UUID, connID string) error
	// Unregister removes one connection. Unknown connections are a no-op.
	Unregister(ctx context.Context, userID uuid.UUID, connID string) error
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	// Count returns the number of online users, not connections.
	Count(ctx context.Context) (int, error)
	// Refresh is the heartbeat for users connected to this instance.
	Refresh(ctx context.Context, userIDs []uuid.UUID) error
}
