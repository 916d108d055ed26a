package messaging

import (
	"context"
	"errors"
)

// ErrClosed is returned by brokers after Close.
var ErrClosed = errors.New("broker closed")

// Broker defines the interface for message brokers. Messages are JSON
// encoded on Publish and delivered to subscribers as raw bytes.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
