package presence

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devflow/devflow-api/internal/handler"
	"github.com/devflow/devflow-api/pkg/httputil"
)

type Lookup interface {
	IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	OnlineCount(ctx context.Context) (int, error)
}

type Handler struct {
	presence Lookup
}

func NewHandler(presence Lookup) *Handler {
	return &Handler{presence: presence}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	presence := r.Group("/presence")
	{
		presence.GET("/online-count", h.OnlineCount)
		presence.GET("/users/:id", h.UserStatus)
	}
}

func (h *Handler) OnlineCount(c *gin.Context) {
	count, err := h.presence.OnlineCount(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"count": count})
}

func (h *Handler) UserStatus(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	online, err := h.presence.IsUserOnline(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"user_id": id, "online": online})
}
