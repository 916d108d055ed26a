package realtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/presence"
	"github.com/devflow/devflow-api/pkg/messaging"
)

const DefaultChannel = "devflow:realtime"

// Publisher addresses clients on every instance through the bus. It has
// no sockets of its own, so the standalone worker uses it directly.
type Publisher struct {
	bus      messaging.Broker
	presence presence.Registry
	channel  string
}

func NewPublisher(bus messaging.Broker, registry presence.Registry, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{bus: bus, presence: registry, channel: channel}
}

// SendToUser emits event to every connection of userID. An offline user
// is a silent no-op and reports false.
func (p *Publisher) SendToUser(ctx context.Context, userID uuid.UUID, event string, payload interface{}) (bool, error) {
	online, err := p.presence.IsOnline(ctx, userID)
	if err != nil {
		return false, err
	}
	if !online {
		return false, nil
	}

	frame, err := newFrame(event, payload)
	if err != nil {
		return false, err
	}
	if err := p.bus.Publish(ctx, p.channel, envelope{UserID: &userID, Frame: frame}); err != nil {
		return false, fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return true, nil
}

// BroadcastAll emits event to every connected client.
func (p *Publisher) BroadcastAll(ctx context.Context, event string, payload interface{}) error {
	frame, err := newFrame(event, payload)
	if err != nil {
		return err
	}
	if err := p.bus.Publish(ctx, p.channel, envelope{Frame: frame}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

func (p *Publisher) IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	return p.presence.IsOnline(ctx, userID)
}

func (p *Publisher) OnlineCount(ctx context.Context) (int, error) {
	return p.presence.Count(ctx)
}
