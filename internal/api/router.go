package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pawcare/pkg/rbac"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	notificationHandler *NotificationHandler,
	streamHandler *StreamHandler,
	publishHandler *PublishHandler,
	jwtSecret string,
	logger *zap.Logger,
	readiness map[string]Pinger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), MetricsMiddleware(), AccessLogMiddleware(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, p := range readiness {
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		read := auth.Group("/", RequirePermission(rbac.PermissionReadNotification))
		read.GET("/notifications", notificationHandler.List)
		read.GET("/notifications/stream", streamHandler.Stream)

		update := auth.Group("/", RequirePermission(rbac.PermissionUpdateNotification))
		update.POST("/notifications/:id/read", notificationHandler.MarkRead)
		update.POST("/notifications/read-all", notificationHandler.MarkAllRead)

		auth.POST("/notifications", RequirePermission(rbac.PermissionPublishNotification), publishHandler.Publish)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
