package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/noah-isme/query-kb-api/internal/handler"
	"github.com/noah-isme/query-kb-api/internal/middleware"
	"github.com/noah-isme/query-kb-api/internal/models"
	"github.com/noah-isme/query-kb-api/internal/service"
	"github.com/noah-isme/query-kb-api/pkg/config"
	"github.com/noah-isme/query-kb-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/query-kb-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/query-kb-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth          middleware.TokenValidator
	metrics       *service.MetricsService
	queries       *handler.QueryHandler
	knowledgeBase *handler.KnowledgeBaseHandler
	health        *handler.HealthHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ExposeHeaders:  []string{"X-Request-ID", "Content-Disposition"},
	}))
	r.Use(middleware.Metrics(deps.metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.auth))

	queries := api.Group("/queries")
	queries.POST("", middleware.Audit(logr, "query.submit"), deps.queries.Create)
	queries.GET("", deps.queries.List)
	queries.GET("/stats", middleware.RequireRoles(models.RoleAdmin, models.RoleManager), deps.queries.Stats)
	queries.GET("/:id", deps.queries.Get)
	queries.PUT("/:id", middleware.Audit(logr, "query.update"), deps.queries.Update)
	queries.DELETE("/:id", middleware.Audit(logr, "query.delete"), deps.queries.Delete)
	queries.POST("/:id/answers", middleware.Audit(logr, "query.answer"), deps.queries.AddAnswer)
	queries.POST("/:id/solution", middleware.Audit(logr, "query.solution"), deps.queries.ProposeSolution)
	queries.POST("/:id/review", middleware.Audit(logr, "query.review"), deps.queries.ReviewSolution)
	queries.POST("/:id/publish", middleware.Audit(logr, "query.publish"), deps.queries.Publish)
	queries.POST("/:id/comments", middleware.Audit(logr, "query.comment"), deps.queries.AddComment)

	kb := api.Group("/knowledge-base")
	kb.GET("", deps.knowledgeBase.List)
	kb.GET("/:id", deps.knowledgeBase.Get)
	kb.PUT("/:id", middleware.Audit(logr, "kb.update"), deps.knowledgeBase.Update)
	kb.POST("/:id/ratings", middleware.Audit(logr, "kb.rate"), deps.knowledgeBase.Rate)
	kb.GET("/:id/export", deps.knowledgeBase.Export)

	return r
}
