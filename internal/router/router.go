package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   Handler
	handlers []Handler
}

type RouterConfig struct {
	Mode      string
	RateLimit middleware.RateLimiterConfig
	CORS      middleware.CORSConfig
	BodyLimit middleware.BodyLimitConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	health Handler,
	handlers []Handler,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	middleware.RegisterValidators()

	engine := gin.New()
	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		handlers: handlers,
	}

	engine.Use(
		middleware.RequestContext(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORS),
		middleware.NewRateLimiter(config.RateLimit).RateLimit(),
		middleware.BodyLimit(config.BodyLimit),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.health.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.handlers {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
