package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Outbound events.
const (
	EventNotificationNew     = "notification:new"
	EventNotificationAllRead = "notification:allRead"
	EventSystemUpdate        = "system:update"
)

// Inbound events.
const (
	EventNotificationRead    = "notification:read"
	EventNotificationReadAll = "notification:readAll"
)

// Frame is the JSON shape of every message on the socket, both ways.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newFrame(event string, payload interface{}) (Frame, error) {
	f := Frame{Event: event}
	if payload == nil {
		return f, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	f.Data = data
	return f, nil
}

// envelope travels on the bus. A nil UserID addresses every client.
type envelope struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Frame  Frame      `json:"frame"`
}
