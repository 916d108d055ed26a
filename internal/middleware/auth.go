package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devflow/devflow-api/pkg/auth"
	apperrors "github.com/devflow/devflow-api/pkg/errors"
	"github.com/devflow/devflow-api/pkg/httputil"
)

const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	admins   map[uuid.UUID]struct{}
}

// NewAuthMiddleware verifies bearer tokens. adminIDs lists the users
// allowed through RequireAdmin.
func NewAuthMiddleware(verifier TokenVerifier, adminIDs []uuid.UUID) *AuthMiddleware {
	admins := make(map[uuid.UUID]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &AuthMiddleware{verifier: verifier, admins: admins}
}

// Authenticate verifies the bearer token and sets the user id in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, &apperrors.AppError{
				Code:    apperrors.ErrUnauthorized,
				Message: "missing authorization header",
				Err:     auth.ErrMissingToken,
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, &apperrors.AppError{
				Code:    apperrors.ErrUnauthorized,
				Message: "invalid authorization format",
			})
			c.Abort()
			return
		}

		claims, err := m.verifier.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			httputil.RespondWithError(c, &apperrors.AppError{
				Code:    apperrors.ErrUnauthorized,
				Message: "invalid token",
				Err:     err,
			})
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// RequireAdmin must run after Authenticate.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			httputil.RespondWithError(c, apperrors.Unauthorized(nil))
			c.Abort()
			return
		}
		if _, ok := m.admins[userID]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, httputil.NewErrorResponse("permission denied"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user set by Authenticate.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
