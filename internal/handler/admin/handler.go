package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/handler"
	"github.com/devflow/devflow-api/internal/model"
	notificationService "github.com/devflow/devflow-api/internal/service/notification"
	"github.com/devflow/devflow-api/pkg/httputil"
)

// Handler serves operator endpoints. Routes are mounted behind
// RequireAdmin.
type Handler struct {
	service notificationService.Service
}

func NewHandler(service notificationService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	{
		admin.POST("/system-updates", h.AnnounceSystemUpdate)
		admin.POST("/achievements", h.GrantAchievement)
		admin.POST("/notifications", h.CreateNotification)
	}
}

type systemUpdateRequest struct {
	Title   string `json:"title" binding:"required,max=200"`
	Message string `json:"message" binding:"required,max=2000"`
}

type achievementRequest struct {
	UserID      uuid.UUID `json:"user_id" binding:"required"`
	Name        string    `json:"name" binding:"required,max=100"`
	Description string    `json:"description" binding:"max=500"`
}

// createNotificationRequest sends a plain notification without a payload.
type createNotificationRequest struct {
	UserID  uuid.UUID `json:"user_id" binding:"required"`
	Type    string    `json:"type" binding:"required,notiftype"`
	Title   string    `json:"title" binding:"required,max=200"`
	Message string    `json:"message" binding:"max=2000"`
}

func (h *Handler) AnnounceSystemUpdate(c *gin.Context) {
	var req systemUpdateRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.AnnounceSystemUpdate(c.Request.Context(), req.Title, req.Message); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, httputil.NewSuccessResponse(gin.H{"title": req.Title}))
}

func (h *Handler) GrantAchievement(c *gin.Context) {
	var req achievementRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.NotifyAchievement(c.Request.Context(), req.UserID, req.Name, req.Description)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, detail)
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	detail, err := h.service.CreateNotification(c.Request.Context(), notificationService.CreateInput{
		RecipientID: req.UserID,
		Title:       req.Title,
		Message:     req.Message,
		Type:        model.NotificationType(req.Type),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, detail)
}
