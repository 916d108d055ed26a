package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

const EventNotificationCreated = "notification.created"

type OutboxEvent struct {
	ID           uuid.UUID       `json:"id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       OutboxStatus    `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// NotificationCreatedPayload is the outbox payload for a new notification.
// It carries everything delivery needs so the worker does not read the
// notification back.
type NotificationCreatedPayload struct {
	RecipientID  uuid.UUID         `json:"recipient_id"`
	Notification NotificationEvent `json:"notification"`
}
