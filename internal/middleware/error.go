package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/devflow/devflow-api/pkg/httputil"
)

// ErrorHandler logs errors attached to the context. Handlers normally
// write their own response; one is written here only if nothing was.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate | gin.ErrorTypePublic) {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		if err, ok := c.Errors.Last().Err.(interface{ StatusCode() int }); ok {
			status = err.StatusCode()
		}
		c.JSON(status, httputil.NewErrorResponse(http.StatusText(status)))
	}
}
