package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationReviewReceived NotificationType = "review-received"
	NotificationReviewApproved NotificationType = "review-approved"
	NotificationReviewRejected NotificationType = "review-rejected"
	NotificationProjectLiked   NotificationType = "project-liked"
	NotificationProjectViewed  NotificationType = "project-viewed"
	NotificationProfileViewed  NotificationType = "profile-viewed"
	NotificationSystemUpdate   NotificationType = "system-update"
	NotificationWelcome        NotificationType = "welcome"
	NotificationAchievement    NotificationType = "achievement"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationReviewReceived: {},
	NotificationReviewApproved: {},
	NotificationReviewRejected: {},
	NotificationProjectLiked:   {},
	NotificationProjectViewed:  {},
	NotificationProfileViewed:  {},
	NotificationSystemUpdate:   {},
	NotificationWelcome:        {},
	NotificationAchievement:    {},
}

func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

// Notification is a persisted message for a single recipient.
type Notification struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"user_id"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Type          NotificationType `json:"type"`
	Data          json.RawMessage  `json:"data,omitempty"`
	Read          bool             `json:"read"`
	ProjectID     *uuid.UUID       `json:"project_id,omitempty"`
	ReviewID      *uuid.UUID       `json:"review_id,omitempty"`
	TriggeredByID *uuid.UUID       `json:"triggered_by_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NotificationDetail is a notification joined with its linked records.
type NotificationDetail struct {
	Notification
	Recipient   *UserSummary    `json:"recipient,omitempty"`
	Project     *ProjectSummary `json:"project,omitempty"`
	TriggeredBy *UserSummary    `json:"triggered_by,omitempty"`
}

// NotificationEvent is the realtime projection of a notification. Read
// state and linkage ids are not sent.
type NotificationEvent struct {
	ID        uuid.UUID        `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Data      json.RawMessage  `json:"data,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (n *Notification) Event() NotificationEvent {
	return NotificationEvent{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
	}
}
