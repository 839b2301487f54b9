package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/middleware"
	"github.com/opennewsroom/newsdesk-api/internal/service"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	"github.com/opennewsroom/newsdesk-api/pkg/logger"
	corsmiddleware "github.com/opennewsroom/newsdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/opennewsroom/newsdesk-api/pkg/middleware/requestid"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth     *AuthHandler
	Archive  *ArchiveHandler
	Workflow *WorkflowHandler
	Desks    *DeskHandler
	Admin    *AdminHandler
	Metrics  *MetricsHandler
}

// NewRouter assembles the gin engine with the full middleware chain and
// every route of the API.
func NewRouter(cfg *config.Config, logr *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", h.Auth.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(auth))

	protected.POST("/auth/logout", h.Auth.Logout)
	protected.POST("/users", h.Auth.CreateUser)

	archive := protected.Group("/archive")
	{
		archive.POST("", h.Archive.Create)
		archive.GET("", h.Archive.List)
		archive.GET("/:id", h.Archive.Get)
		archive.PATCH("/:id", h.Archive.Update)
		archive.DELETE("/:id", h.Archive.Delete)

		archive.GET("/:id/versions", h.Archive.Versions)
		archive.GET("/:id/versions/:version", h.Archive.Version)
		archive.GET("/:id/history", h.Archive.History)
		archive.GET("/:id/chain", h.Archive.Chain)

		archive.POST("/:id/lock", h.Workflow.Lock)
		archive.POST("/:id/unlock", h.Workflow.Unlock)
		archive.POST("/:id/spike", h.Workflow.Spike)
		archive.POST("/:id/unspike", h.Workflow.Unspike)
		archive.POST("/:id/duplicate", h.Workflow.Duplicate)
		archive.POST("/:id/deschedule", h.Workflow.Deschedule)
		archive.POST("/:id/correction", h.Workflow.CreateCorrection)
		archive.POST("/:id/rewrite", h.Workflow.Rewrite)
	}

	protected.DELETE("/corrections/:id", h.Workflow.DeleteCorrection)

	desks := protected.Group("/desks")
	{
		desks.GET("", h.Desks.ListDesks)
		desks.POST("", h.Desks.CreateDesk)
		desks.GET("/:id", h.Desks.GetDesk)
		desks.GET("/:id/stages", h.Desks.ListStages)
		desks.POST("/:id/stages", h.Desks.CreateStage)
	}

	protected.POST("/admin/reindex", h.Admin.Reindex)

	return r
}
