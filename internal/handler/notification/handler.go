package notification

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/handler"
	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/realtime"
	notificationService "github.com/devflow/devflow-api/internal/service/notification"
	"github.com/devflow/devflow-api/pkg/httputil"
	"github.com/devflow/devflow-api/pkg/logger"
)

// Pusher tells a user's other sessions about read state changes.
type Pusher interface {
	SendToUser(ctx context.Context, userID uuid.UUID, event string, payload interface{}) (bool, error)
}

type Handler struct {
	service notificationService.Service
	pusher  Pusher
	logger  *logger.Logger
}

func NewHandler(service notificationService.Service, pusher Pusher, log *logger.Logger) *Handler {
	return &Handler{service: service, pusher: pusher, logger: log.With("notification_handler")}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.PUT("/read-all", h.MarkAllRead)
		notifications.PUT("/:id/read", h.MarkRead)
		notifications.DELETE("/:id", h.DeleteNotification)
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	userID, ok := handler.CurrentUser(c)
	if !ok {
		return
	}

	var page model.Pagination
	if !handler.BindQuery(c, &page) {
		return
	}

	res, err := h.service.ListForUser(c.Request.Context(), userID, page.Page, page.PageSize)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, res.Items, res.Page, res.PageSize, res.Total)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	userID, ok := handler.CurrentUser(c)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"count": count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := handler.CurrentUser(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	affected, err := h.service.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"affected": affected})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID, ok := handler.CurrentUser(c)
	if !ok {
		return
	}

	affected, err := h.service.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	if h.pusher != nil {
		if _, err := h.pusher.SendToUser(c.Request.Context(), userID, realtime.EventNotificationAllRead, nil); err != nil {
			h.logger.Error(err, "Failed to push read-all to open sessions", "user_id", userID.String())
		}
	}
	httputil.RespondWithSuccess(c, gin.H{"affected": affected})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	userID, ok := handler.CurrentUser(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	affected, err := h.service.DeleteNotification(c.Request.Context(), id, userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"affected": affected})
}
