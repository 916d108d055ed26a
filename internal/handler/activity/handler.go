package activity

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/handler"
	"github.com/devflow/devflow-api/internal/model"
	notificationService "github.com/devflow/devflow-api/internal/service/notification"
	"github.com/devflow/devflow-api/pkg/httputil"
)

// Handler turns activity reported by other DevFlow services into
// notifications. The authenticated user is always the actor.
type Handler struct {
	service notificationService.Service
}

func NewHandler(service notificationService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	activity := r.Group("/activity")
	{
		activity.POST("/profile-views", h.ProfileViewed)
		activity.POST("/project-likes", h.ProjectLiked)
		activity.POST("/reviews", h.ReviewReceived)
		activity.POST("/reviews/status", h.ReviewStatusChanged)
		activity.POST("/project-views/milestone", h.ProjectViewMilestone)
		activity.POST("/welcome", h.Welcome)
	}
}

type profileViewRequest struct {
	ProfileUserID uuid.UUID `json:"profile_user_id" binding:"required"`
}

type projectLikeRequest struct {
	ProjectID uuid.UUID `json:"project_id" binding:"required"`
}

type reviewRequest struct {
	ReviewID  uuid.UUID `json:"review_id" binding:"required"`
	ProjectID uuid.UUID `json:"project_id" binding:"required"`
}

type reviewStatusRequest struct {
	ReviewID   uuid.UUID `json:"review_id" binding:"required"`
	ProjectID  uuid.UUID `json:"project_id" binding:"required"`
	ReviewerID uuid.UUID `json:"reviewer_id" binding:"required"`
	Approved   *bool     `json:"approved" binding:"required"`
}

type milestoneRequest struct {
	ProjectID uuid.UUID `json:"project_id" binding:"required"`
	ViewCount int       `json:"view_count" binding:"required,min=1"`
}

func (h *Handler) ProfileViewed(c *gin.Context) {
	actor, ok := handler.CurrentUser(c)
	if !ok {
		return
	}
	var req profileViewRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.NotifyProfileViewed(c.Request.Context(), req.ProfileUserID, actor)
	respond(c, detail, err)
}

func (h *Handler) ProjectLiked(c *gin.Context) {
	actor, ok := handler.CurrentUser(c)
	if !ok {
		return
	}
	var req projectLikeRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.NotifyProjectLiked(c.Request.Context(), req.ProjectID, actor)
	respond(c, detail, err)
}

func (h *Handler) ReviewReceived(c *gin.Context) {
	actor, ok := handler.CurrentUser(c)
	if !ok {
		return
	}
	var req reviewRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.NotifyReviewReceived(c.Request.Context(), notificationService.ReviewEvent{
		ReviewID:   req.ReviewID,
		ProjectID:  req.ProjectID,
		ReviewerID: actor,
	})
	respond(c, detail, err)
}

func (h *Handler) ReviewStatusChanged(c *gin.Context) {
	actor, ok := handler.CurrentUser(c)
	if !ok {
		return
	}
	var req reviewStatusRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.NotifyReviewStatusChanged(c.Request.Context(), notificationService.ReviewEvent{
		ReviewID:   req.ReviewID,
		ProjectID:  req.ProjectID,
		ReviewerID: req.ReviewerID,
		ActorID:    actor,
	}, *req.Approved)
	respond(c, detail, err)
}

func (h *Handler) ProjectViewMilestone(c *gin.Context) {
	if _, ok := handler.CurrentUser(c); !ok {
		return
	}
	var req milestoneRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.NotifyProjectViewMilestone(c.Request.Context(), req.ProjectID, req.ViewCount)
	respond(c, detail, err)
}

func (h *Handler) Welcome(c *gin.Context) {
	actor, ok := handler.CurrentUser(c)
	if !ok {
		return
	}

	detail, err := h.service.NotifyWelcome(c.Request.Context(), actor)
	respond(c, detail, err)
}

// respond writes 201 with the notification, or 200 when the activity did
// not warrant one.
func respond(c *gin.Context, detail *model.NotificationDetail, err error) {
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if detail == nil {
		httputil.RespondWithSuccess(c, gin.H{"skipped": true})
		return
	}
	httputil.RespondWithCreated(c, detail)
}
