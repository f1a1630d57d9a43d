package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"webmail/internal/handler"
	"webmail/pkg/otel"
	"webmail/pkg/rbac"
)

// Pinger 就绪检查依赖，*pgxpool.Pool 满足
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth    *handler.AuthHandler
	Message *handler.MessageHandler
	User    *handler.UserHandler
	Admin   *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, accounts AccountLookup, db Pinger, logger *zap.Logger) *Router {
	r := gin.New()
	auth := AuthMiddleware(jwtSecret, accounts, logger)
	r.Use(Recovery(logger), TraceMiddleware(), otel.GinMiddleware(), MetricsMiddleware(), AccessLog(logger))

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

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	api := r.Group("/api")
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)

	// Protected
	authed := api.Group("/")
	authed.Use(auth)
	{
		authed.GET("/auth/me", RequirePermission(rbac.PermissionReadProfile), h.Auth.Me)

		authed.GET("/messages", RequirePermission(rbac.PermissionReadMail), h.Message.List)
		authed.GET("/messages/stats", RequirePermission(rbac.PermissionReadMail), h.Message.Stats)
		authed.GET("/messages/:id", RequirePermission(rbac.PermissionReadMail), h.Message.Get)
		authed.POST("/messages", RequirePermission(rbac.PermissionSendMail), h.Message.Create)
		authed.PUT("/messages/:id", RequirePermission(rbac.PermissionUpdateMail), h.Message.Update)
		authed.DELETE("/messages/:id", RequirePermission(rbac.PermissionDeleteMail), h.Message.Delete)
		authed.POST("/messages/:id/reply", RequirePermission(rbac.PermissionSendMail), h.Message.Reply)
		authed.POST("/messages/:id/forward", RequirePermission(rbac.PermissionSendMail), h.Message.Forward)

		authed.GET("/users/:id", RequirePermission(rbac.PermissionReadProfile), h.User.Get)
		authed.PUT("/users/:id", RequirePermission(rbac.PermissionUpdateProfile), h.User.UpdateProfile)
	}

	users := api.Group("/users")
	users.Use(auth, RequirePermission(rbac.PermissionManageUsers))
	{
		users.GET("", h.User.List)
		users.PUT("/:id/activate", h.User.Activate)
		users.DELETE("/:id", h.User.Deactivate)
		users.PUT("/:id/role", h.User.SetRole)
	}

	admin := r.Group("/admin")
	admin.Use(auth, RequirePermission(rbac.PermissionReplayOutbox))
	{
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

// Server 包装成 http.Server，便于优雅关闭
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
