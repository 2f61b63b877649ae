package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	_ "github.com/noah-isme/query-kb-api/api/swagger"
	"github.com/noah-isme/query-kb-api/internal/handler"
	"github.com/noah-isme/query-kb-api/internal/repository"
	"github.com/noah-isme/query-kb-api/internal/service"
	"github.com/noah-isme/query-kb-api/pkg/cache"
	"github.com/noah-isme/query-kb-api/pkg/config"
	"github.com/noah-isme/query-kb-api/pkg/database"
	"github.com/noah-isme/query-kb-api/pkg/jobs"
	"github.com/noah-isme/query-kb-api/pkg/logger"
	"github.com/noah-isme/query-kb-api/pkg/tracing"
)

// @title Query Knowledge Base API
// @version 1.0.0
// @description Field query review workflow and knowledge base publication.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type stores struct {
	queries service.QueryStore
	entries service.KnowledgeBaseStore
	users   service.UserDirectory
	checks  map[string]handler.ReadinessCheck
	close   func(context.Context)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open document store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}

	metrics := service.NewMetricsService()
	validate := service.NewValidator()

	var (
		cacheRepo service.CacheRepository
		sink      service.NotificationSink = service.NewLogSink(logr)
	)
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(client, logr)
		sink = repository.NewNotificationPublisher(client, cfg.Notifications.Channel)
		st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, cfg.Redis.Enabled)

	notifier := service.NewNotificationService(sink, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.Retries,
	})
	notifier.Start(ctx)

	actors := service.NewActorDirectory(st.users, cfg.Actors.Size, cfg.Actors.TTL, logr)
	workflow := service.NewQueryWorkflowService(st.queries, actors, validate, logr,
		service.WithNotifier(notifier),
		service.WithStatsCache(cacheSvc, cfg.Stats.CacheTTL),
		service.WithMetrics(metrics),
	)
	knowledgeBase := service.NewKnowledgeBaseService(st.entries, metrics, validate, logr)
	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	router := newRouter(cfg, logr, routerDeps{
		auth:          auth,
		metrics:       metrics,
		queries:       handler.NewQueryHandler(workflow),
		knowledgeBase: handler.NewKnowledgeBaseHandler(knowledgeBase),
		health:        handler.NewHealthHandler(metrics.Handler(), st.checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown", zap.Error(err))
	}
	if err := notifier.Stop(shutdownCtx); err != nil {
		logr.Warn("notification queue shutdown", zap.Error(err))
	}
	st.close(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := repository.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &stores{
			queries: repository.NewMongoQueryRepository(client, db),
			entries: repository.NewMongoKnowledgeBaseRepository(db),
			users:   repository.NewMongoUserRepository(db),
			checks: map[string]handler.ReadinessCheck{
				"mongo": func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
			},
			close: func(ctx context.Context) {
				if err := client.Disconnect(ctx); err != nil {
					logr.Warn("mongo disconnect", zap.Error(err))
				}
			},
		}, nil
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.RunMigrations {
			if err := database.RunMigrations(db, logr); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &stores{
			queries: repository.NewQueryRepository(db),
			entries: repository.NewKnowledgeBaseRepository(db),
			users:   repository.NewUserRepository(db),
			checks: map[string]handler.ReadinessCheck{
				"postgres": db.PingContext,
			},
			close: func(context.Context) {
				if err := db.Close(); err != nil {
					logr.Warn("postgres close", zap.Error(err))
				}
			},
		}, nil
	}
}
