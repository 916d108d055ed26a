package router

import (
	"github.com/gin-gonic/gin"

	"github.com/devflow/devflow-api/internal/handler/prometheus"
	"github.com/devflow/devflow-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers are the route groups mounted under /api/v1.
type Handlers struct {
	Health        Handler
	Notifications Handler
	Activity      Handler
	Presence      Handler
	Admin         Handler
	// WebSocket serves the realtime handshake. It authenticates itself.
	WebSocket gin.HandlerFunc
}

type RouterConfig struct {
	CORS         middleware.CORSConfig
	RateLimit    *middleware.RateLimiterConfig
	MaxBodyBytes int64
	MetricsPath  string
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	metrics  *prometheus.Handler
	config   RouterConfig
}

// NewRouter builds the engine with the core middleware chain. metrics may
// be nil to disable /metrics and request instrumentation.
func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, metrics *prometheus.Handler, config RouterConfig) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		metrics:  metrics,
		config:   config,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
		middleware.CORS(config.CORS),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
	)
	if config.RateLimit != nil {
		engine.Use(middleware.NewRateLimiter(*config.RateLimit).RateLimit())
	}
	if config.MaxBodyBytes > 0 {
		engine.Use(middleware.SizeLimit(config.MaxBodyBytes))
	}

	return r
}

func (r *Router) Setup() {
	if r.metrics != nil {
		path := r.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}
	if r.handlers.WebSocket != nil {
		api.GET("/ws", r.handlers.WebSocket)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range []Handler{r.handlers.Notifications, r.handlers.Activity, r.handlers.Presence} {
		if h != nil {
			h.RegisterRoutes(protected)
		}
	}

	if r.handlers.Admin != nil {
		admin := protected.Group("")
		admin.Use(r.auth.RequireAdmin())
		r.handlers.Admin.RegisterRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
