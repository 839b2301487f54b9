package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/expiry"
	"github.com/opennewsroom/newsdesk-api/internal/handler"
	"github.com/opennewsroom/newsdesk-api/internal/lock"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/notify"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/published"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/service"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/internal/versions"
	"github.com/opennewsroom/newsdesk-api/internal/workflow"
	"github.com/opennewsroom/newsdesk-api/pkg/cache"
	"github.com/opennewsroom/newsdesk-api/pkg/config"
	"github.com/opennewsroom/newsdesk-api/pkg/database"
	"github.com/opennewsroom/newsdesk-api/pkg/jobs"
	"github.com/opennewsroom/newsdesk-api/pkg/logger"
)

// expiryLeaseKey is the redis key guarding the reaper lease across
// processes.
const expiryLeaseKey = "newsdesk:expiry:lease"

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: postgres is the source of truth, the in-memory index
	// mirrors the searchable collections.
	docs := store.NewPostgresStore(db)
	index := store.NewMemoryIndex()
	dual := store.NewDualStore(docs, index, []string{
		models.ResourceArchive,
		models.ResourcePublished,
	}, logr)
	versionStore := versions.NewStore(docs, logr)

	registry := resource.NewRegistry()
	register := func(c resource.Config) *resource.Service {
		svc := resource.NewService(c, dual, versionStore, logr)
		registry.Register(svc)
		return svc
	}

	archiveSvc := register(resource.Config{
		Name:        models.ResourceArchive,
		Schema:      archiveSchema(),
		Versioned:   true,
		DefaultSort: []store.SortField{{Field: models.FieldVersionCreated, Desc: true}},
	})
	publishedSvc := register(resource.Config{
		Name:        models.ResourcePublished,
		DefaultSort: []store.SortField{{Field: models.FieldVersionCreated, Desc: true}},
	})
	register(resource.Config{Name: models.ResourceArchived})
	register(resource.Config{Name: models.ResourceArchiveHistory})
	desksSvc := register(resource.Config{Name: models.ResourceDesks, Schema: deskSchema()})
	stagesSvc := register(resource.Config{Name: models.ResourceStages, Schema: stageSchema()})
	usersSvc := register(resource.Config{Name: models.ResourceUsers, Schema: userSchema()})
	filtersSvc := register(resource.Config{Name: models.ResourceContentFilters})
	registry.Seal()

	var publisher notify.Publisher = notify.Nop{}
	if cfg.Notify.Enabled {
		publisher = notify.NewRedisPublisher(redisClient, cfg.Notify.Channel, logr)
	}

	history := audit.NewHistory(dual, logr)
	pub := published.NewService(publishedSvc, logr)

	placement := workflow.NewPlacement(desksSvc, stagesSvc, cfg.Editorial)
	guards := workflow.NewGuards(stagesSvc, cfg.Editorial)
	pkgGuard := packages.NewGuard(archiveSvc, logr)
	itemWorkflow := workflow.NewItemWorkflow(archiveSvc, placement, guards, pkgGuard, history, publisher, cfg.Editorial, logr)
	locks := lock.NewManager(archiveSvc, publisher, logr)
	correction := workflow.NewCorrectionService(archiveSvc, placement, pub, history, publisher, logr)
	rewrite := workflow.NewRewriteService(archiveSvc, placement, pkgGuard, pub, history, publisher, cfg.Editorial, logr)

	metrics := service.NewMetricsService()
	validate := validator.New()
	auth := service.NewAuthService(usersSvc, redisClient, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     "newsdesk-api",
	})

	// Background maintenance: reindex tasks replay the document store into
	// the search index.
	maintenance := jobs.NewQueue("maintenance", jobs.QueueConfig{Workers: 1, Logger: logr})
	maintenance.Handle(handler.KindReindex, func(ctx context.Context, _ jobs.Task) error {
		for _, name := range []string{models.ResourceArchive, models.ResourcePublished} {
			svc := registry.MustService(name)
			n, err := svc.Reindex(ctx)
			if err != nil {
				return fmt.Errorf("reindex %s: %w", name, err)
			}
			logr.Sugar().Infow("reindex finished", "resource", name, "documents", n)
		}
		return nil
	})
	maintenance.Start(ctx)
	defer maintenance.Stop()

	var reaperLoop *jobs.Scheduler
	if cfg.Expiry.Enabled {
		lease := expiry.NewLease(redisClient, expiryLeaseKey, cfg.Expiry.LeaseTTL)
		reaper := expiry.NewReaper(archiveSvc, pub, history, filtersSvc, dual, nil, publisher, lease, cfg.Expiry.BatchSize, logr)
		reaperLoop = jobs.NewScheduler("expiry-reaper", cfg.Expiry.Interval, func(ctx context.Context) error {
			start := time.Now()
			stats, err := reaper.Run(ctx)
			if err != nil {
				return err
			}
			if !stats.Skipped {
				metrics.ObserveSweep(stats.Removed, time.Since(start))
			}
			return nil
		}, logr)
		reaperLoop.Start(ctx)
		defer reaperLoop.Stop()
	}

	handlers := handler.Handlers{
		Auth:     handler.NewAuthHandler(auth, validate),
		Archive:  handler.NewArchiveHandler(itemWorkflow, history, validate),
		Workflow: handler.NewWorkflowHandler(itemWorkflow, locks, correction, rewrite, validate),
		Desks:    handler.NewDeskHandler(desksSvc, stagesSvc),
		Admin:    handler.NewAdminHandler(maintenance),
		Metrics:  handler.NewMetricsHandler(metrics),
	}

	router := handler.NewRouter(cfg, logr, auth, metrics, handlers)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		logr.Sugar().Fatalw("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
