package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/realtime"
	"github.com/devflow/devflow-api/internal/repository"
	apperrors "github.com/devflow/devflow-api/pkg/errors"
)

// viewMilestones are the view counts that earn the author a notification.
var viewMilestones = map[int]struct{}{
	100:   {},
	500:   {},
	1000:  {},
	5000:  {},
	10000: {},
}

// IsViewMilestone reports whether count is a notifiable view count.
func IsViewMilestone(count int) bool {
	_, ok := viewMilestones[count]
	return ok
}

func (s *service) NotifyReviewReceived(ctx context.Context, ev ReviewEvent) (*model.NotificationDetail, error) {
	project, err := s.project(ctx, ev.ProjectID)
	if err != nil || project == nil {
		return nil, err
	}
	reviewer, err := s.user(ctx, ev.ReviewerID)
	if err != nil || reviewer == nil {
		return nil, err
	}

	return s.CreateNotification(ctx, CreateInput{
		RecipientID: project.AuthorID,
		Title:       "New review received",
		Message:     fmt.Sprintf("%s reviewed your project %q", reviewer.Name(), project.Title),
		Type:        model.NotificationReviewReceived,
		Data: ReviewReceivedPayload{
			ReviewID:     ev.ReviewID,
			ProjectID:    project.ID,
			ProjectTitle: project.Title,
			ReviewerName: reviewer.Name(),
		},
		ProjectID:     &project.ID,
		ReviewID:      &ev.ReviewID,
		TriggeredByID: &reviewer.ID,
	})
}

func (s *service) NotifyReviewStatusChanged(ctx context.Context, ev ReviewEvent, approved bool) (*model.NotificationDetail, error) {
	project, err := s.project(ctx, ev.ProjectID)
	if err != nil || project == nil {
		return nil, err
	}
	if ev.ActorID != project.AuthorID {
		return nil, apperrors.Forbidden(ErrNotProjectAuthor.Error(), ErrNotProjectAuthor)
	}
	if ev.ReviewerID == project.AuthorID {
		return nil, nil
	}
	reviewer, err := s.user(ctx, ev.ReviewerID)
	if err != nil || reviewer == nil {
		return nil, err
	}

	in := CreateInput{
		RecipientID:   reviewer.ID,
		ProjectID:     &project.ID,
		ReviewID:      &ev.ReviewID,
		TriggeredByID: &project.AuthorID,
	}
	if approved {
		in.Type = model.NotificationReviewApproved
		in.Title = "Review approved"
		in.Message = fmt.Sprintf("Your review of %q was approved", project.Title)
		in.Data = ReviewApprovedPayload{ReviewID: ev.ReviewID, ProjectID: project.ID, ProjectTitle: project.Title}
	} else {
		in.Type = model.NotificationReviewRejected
		in.Title = "Review rejected"
		in.Message = fmt.Sprintf("Your review of %q was rejected", project.Title)
		in.Data = ReviewRejectedPayload{ReviewID: ev.ReviewID, ProjectID: project.ID, ProjectTitle: project.Title}
	}
	return s.CreateNotification(ctx, in)
}

func (s *service) NotifyProfileViewed(ctx context.Context, profileUserID, viewerID uuid.UUID) (*model.NotificationDetail, error) {
	if profileUserID == viewerID {
		return nil, nil
	}
	owner, err := s.user(ctx, profileUserID)
	if err != nil || owner == nil {
		return nil, err
	}
	viewer, err := s.user(ctx, viewerID)
	if err != nil || viewer == nil {
		return nil, err
	}

	return s.CreateNotification(ctx, CreateInput{
		RecipientID:   owner.ID,
		Title:         "Someone viewed your profile",
		Message:       fmt.Sprintf("%s viewed your profile", viewer.Name()),
		Type:          model.NotificationProfileViewed,
		Data:          ProfileViewedPayload{ViewerID: viewer.ID, ViewerName: viewer.Name()},
		TriggeredByID: &viewer.ID,
	})
}

func (s *service) NotifyProjectLiked(ctx context.Context, projectID, likerID uuid.UUID) (*model.NotificationDetail, error) {
	project, err := s.project(ctx, projectID)
	if err != nil || project == nil {
		return nil, err
	}
	if project.AuthorID == likerID {
		return nil, nil
	}
	liker, err := s.user(ctx, likerID)
	if err != nil || liker == nil {
		return nil, err
	}

	return s.CreateNotification(ctx, CreateInput{
		RecipientID: project.AuthorID,
		Title:       "Your project was liked",
		Message:     fmt.Sprintf("%s liked %q", liker.Name(), project.Title),
		Type:        model.NotificationProjectLiked,
		Data: ProjectLikedPayload{
			ProjectID:    project.ID,
			ProjectTitle: project.Title,
			LikerName:    liker.Name(),
		},
		ProjectID:     &project.ID,
		TriggeredByID: &liker.ID,
	})
}

func (s *service) NotifyProjectViewMilestone(ctx context.Context, projectID uuid.UUID, viewCount int) (*model.NotificationDetail, error) {
	if !IsViewMilestone(viewCount) {
		return nil, nil
	}
	project, err := s.project(ctx, projectID)
	if err != nil || project == nil {
		return nil, err
	}

	return s.CreateNotification(ctx, CreateInput{
		RecipientID: project.AuthorID,
		Title:       "Project milestone reached",
		Message:     fmt.Sprintf("%q reached %d views", project.Title, viewCount),
		Type:        model.NotificationProjectViewed,
		Data: ProjectViewedPayload{
			ProjectID:    project.ID,
			ProjectTitle: project.Title,
			Milestone:    viewCount,
		},
		ProjectID: &project.ID,
	})
}

func (s *service) NotifyWelcome(ctx context.Context, userID uuid.UUID) (*model.NotificationDetail, error) {
	user, err := s.user(ctx, userID)
	if err != nil || user == nil {
		return nil, err
	}

	return s.CreateNotification(ctx, CreateInput{
		RecipientID: user.ID,
		Title:       "Welcome to DevFlow",
		Message:     fmt.Sprintf("Hi %s, share your first project to start collecting reviews.", user.Name()),
		Type:        model.NotificationWelcome,
		Data:        WelcomePayload{Username: user.Username},
	})
}

// NotifyAchievement is issued by admins, so an unknown user is reported as
// not found rather than skipped.
func (s *service) NotifyAchievement(ctx context.Context, userID uuid.UUID, name, description string) (*model.NotificationDetail, error) {
	return s.CreateNotification(ctx, CreateInput{
		RecipientID: userID,
		Title:       fmt.Sprintf("Achievement unlocked: %s", name),
		Message:     description,
		Type:        model.NotificationAchievement,
		Data:        AchievementPayload{Name: name, Description: description},
	})
}

// SystemUpdateEvent is broadcast to every connected client. It is not
// stored per user.
type SystemUpdateEvent struct {
	SystemUpdatePayload
	Type      model.NotificationType `json:"type"`
	CreatedAt time.Time              `json:"createdAt"`
}

func (s *service) AnnounceSystemUpdate(ctx context.Context, title, message string) error {
	event := SystemUpdateEvent{
		SystemUpdatePayload: SystemUpdatePayload{Title: title, Message: message},
		Type:                model.NotificationSystemUpdate,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.broadcaster.BroadcastAll(ctx, realtime.EventSystemUpdate, event); err != nil {
		return fmt.Errorf("failed to broadcast system update: %w", err)
	}
	s.logger.Info("system update broadcast", "title", title)
	return nil
}

// user resolves a user summary. A missing user yields (nil, nil) so
// builders can skip quietly.
func (s *service) user(ctx context.Context, id uuid.UUID) (*model.UserSummary, error) {
	u, err := s.repos.Users.GetSummary(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("skipping notification for unknown user", "user_id", id.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (s *service) project(ctx context.Context, id uuid.UUID) (*model.ProjectSummary, error) {
	p, err := s.repos.Projects.GetSummary(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("skipping notification for unknown project", "project_id", id.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return p, nil
}
