package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/evidence"
	"github.com/mamadbah2/stockcount/internal/repository/memory"
	"github.com/mamadbah2/stockcount/internal/repository/mongodb"
	"github.com/mamadbah2/stockcount/internal/repository/rediscache"
	"github.com/mamadbah2/stockcount/internal/repository/sheets"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/scheduler"
	"github.com/mamadbah2/stockcount/internal/server/handlers"
	"github.com/mamadbah2/stockcount/internal/server/router"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/reconcile"
	whatsappsvc "github.com/mamadbah2/stockcount/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/stockcount/pkg/clients/whatsapp"
	"github.com/mamadbah2/stockcount/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoStore, err := mongodb.NewStore(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
	if err != nil {
		// An unreachable primary still lets the service run from the local cache,
		// any other failure is a configuration problem.
		if !store.Recoverable(err) {
			baseLogger.Fatal("failed to init mongodb store", zap.Error(err))
		}
		baseLogger.Warn("mongodb unreachable at startup", zap.Error(err))
	}
	defer func() {
		if mongoStore == nil {
			return
		}
		if err := mongoStore.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	localStore := newLocalStore(ctx, cfg.Redis, baseLogger)

	var uploader evidence.Uploader = evidence.InlineUploader{}
	if cfg.Evidence.Bucket != "" {
		gcs, err := evidence.NewGCSUploader(ctx, cfg.Evidence.Bucket, cfg.Evidence.CredentialsJSON, baseLogger.Named("repo.evidence"))
		if err != nil {
			baseLogger.Fatal("failed to init evidence bucket", zap.Error(err))
		}
		defer func() { _ = gcs.Close() }()
		uploader = gcs
	}

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Warn("google sheets not configured, sheet import and export disabled")
	}

	var (
		whatsClient *whatsappclient.APIClient
		alerts      *whatsappsvc.Alerts
		notifier    counting.Notifier
	)
	if cfg.WhatsApp.Enabled() {
		whatsClient = whatsappclient.NewClient(cfg.WhatsApp)
		alerts = whatsappsvc.NewAlerts(whatsClient, cfg.WhatsApp.SupervisorID, baseLogger.Named("svc.alerts"))
		notifier = alerts
	} else {
		baseLogger.Warn("whatsapp not configured, alerts and chat commands disabled")
	}

	policy, _ := reconcile.ParseEvidencePolicy(cfg.Counting.EvidencePolicy)
	dateOrder, _ := models.ParseDateOrder(cfg.Counting.ScanDateOrder)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var remote store.Store = unavailableStore{}
	if mongoStore != nil {
		remote = mongoStore
	}
	countingSvc := counting.NewService(remote, localStore, counting.Options{
		EvidencePolicy:    policy,
		DateOrder:         dateOrder,
		DefaultTeamMember: cfg.Counting.DefaultTeamMember,
		StoreTimeout:      cfg.Counting.StoreTimeout,
		Uploader:          uploader,
		Notifier:          notifier,
		Metrics:           counting.NewMetrics(registry),
	}, baseLogger.Named("svc.counting"))
	if err := countingSvc.Start(ctx); err != nil {
		baseLogger.Fatal("failed to start counting workflow", zap.Error(err))
	}
	defer countingSvc.Close()

	h := router.Handlers{
		Counting: handlers.NewCountingHandler(countingSvc, baseLogger.Named("handlers.counting")),
		Catalog: handlers.NewCatalogHandler(countingSvc, sheetsRepo, handlers.CatalogOptions{
			Sheets:         cfg.Sheets,
			DateOrder:      dateOrder,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		}, baseLogger.Named("handlers.catalog")),
	}
	if whatsClient != nil {
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, countingSvc, baseLogger.Named("svc.whatsapp"))
		h.Webhook = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
	}
	engine := router.New(h, registry, baseLogger.Named("router"))

	var sender scheduler.Sender
	if alerts != nil && cfg.WhatsApp.SupervisorID != "" {
		sender = alerts
	}
	sched, err := scheduler.NewScheduler(cfg.Reporting, countingSvc, sender, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newLocalStore picks the fallback store: Redis when configured and
// reachable, process memory otherwise.
func newLocalStore(ctx context.Context, cfg config.RedisConfig, baseLogger *zap.Logger) store.Store {
	if cfg.Addr == "" {
		baseLogger.Info("redis not configured, local fallback kept in memory")
		return memory.New()
	}

	redisStore := rediscache.NewStore(cfg.Addr, cfg.Password, cfg.DB, cfg.Prefix, baseLogger.Named("repo.redis"))
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisStore.Ping(pingCtx); err != nil {
		baseLogger.Warn("redis unreachable, local fallback kept in memory", zap.Error(err))
		_ = redisStore.Close()
		return memory.New()
	}
	return redisStore
}
