package notification

import (
	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/model"
)

// Payload is the typed data attached to a notification. Each
// notification type has exactly one payload type.
type Payload interface {
	NotificationType() model.NotificationType
}

type ReviewReceivedPayload struct {
	ReviewID     uuid.UUID `json:"reviewId"`
	ProjectID    uuid.UUID `json:"projectId"`
	ProjectTitle string    `json:"projectTitle"`
	ReviewerName string    `json:"reviewerName"`
}

func (ReviewReceivedPayload) NotificationType() model.NotificationType {
	return model.NotificationReviewReceived
}

type ReviewApprovedPayload struct {
	ReviewID     uuid.UUID `json:"reviewId"`
	ProjectID    uuid.UUID `json:"projectId"`
	ProjectTitle string    `json:"projectTitle"`
}

func (ReviewApprovedPayload) NotificationType() model.NotificationType {
	return model.NotificationReviewApproved
}

type ReviewRejectedPayload struct {
	ReviewID     uuid.UUID `json:"reviewId"`
	ProjectID    uuid.UUID `json:"projectId"`
	ProjectTitle string    `json:"projectTitle"`
}

func (ReviewRejectedPayload) NotificationType() model.NotificationType {
	return model.NotificationReviewRejected
}

type ProjectLikedPayload struct {
	ProjectID    uuid.UUID `json:"projectId"`
	ProjectTitle string    `json:"projectTitle"`
	LikerName    string    `json:"likerName"`
}

func (ProjectLikedPayload) NotificationType() model.NotificationType {
	return model.NotificationProjectLiked
}

type ProjectViewedPayload struct {
	ProjectID    uuid.UUID `json:"projectId"`
	ProjectTitle string    `json:"projectTitle"`
	Milestone    int       `json:"milestone"`
}

func (ProjectViewedPayload) NotificationType() model.NotificationType {
	return model.NotificationProjectViewed
}

type ProfileViewedPayload struct {
	ViewerID   uuid.UUID `json:"viewerId"`
	ViewerName string    `json:"viewerName"`
}

func (ProfileViewedPayload) NotificationType() model.NotificationType {
	return model.NotificationProfileViewed
}

type SystemUpdatePayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (SystemUpdatePayload) NotificationType() model.NotificationType {
	return model.NotificationSystemUpdate
}

type WelcomePayload struct {
	Username string `json:"username"`
}

func (WelcomePayload) NotificationType() model.NotificationType {
	return model.NotificationWelcome
}

type AchievementPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (AchievementPayload) NotificationType() model.NotificationType {
	return model.NotificationAchievement
}
