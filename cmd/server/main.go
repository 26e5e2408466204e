package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/config"
	"github.com/inhapress/stockledger/internal/metrics"
	"github.com/inhapress/stockledger/internal/repository/dataset"
	githubrepo "github.com/inhapress/stockledger/internal/repository/github"
	"github.com/inhapress/stockledger/internal/repository/mongodb"
	"github.com/inhapress/stockledger/internal/repository/sheets"
	"github.com/inhapress/stockledger/internal/scheduler"
	"github.com/inhapress/stockledger/internal/server/handlers"
	"github.com/inhapress/stockledger/internal/server/router"
	alertsvc "github.com/inhapress/stockledger/internal/service/alerts"
	"github.com/inhapress/stockledger/internal/service/auth"
	ledgersvc "github.com/inhapress/stockledger/internal/service/ledger"
	ordersvc "github.com/inhapress/stockledger/internal/service/orders"
	reportingsvc "github.com/inhapress/stockledger/internal/service/reporting"
	githubclient "github.com/inhapress/stockledger/pkg/clients/github"
	whatsappclient "github.com/inhapress/stockledger/pkg/clients/whatsapp"
	"github.com/inhapress/stockledger/pkg/logger"
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

	m := metrics.New()

	backend, err := newBackend(ctx, cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init dataset store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}

	cache, closeCache := newCache(ctx, cfg.Store, baseLogger)
	defer closeCache()

	store := dataset.NewCachedStore(metrics.InstrumentStore(backend, m), cache, cfg.Store.CacheTTL, baseLogger.Named("store.cache"))
	names := dataset.Names{
		Inventory:    cfg.Store.InventoryFile,
		Transactions: cfg.Store.TransactionsFile,
		Orders:       cfg.Store.OrdersFile,
	}
	codec := dataset.NewCodec(cfg.Location())

	policy, err := reportingsvc.ParseCancelIncreasePolicy(cfg.Reporting.CancelIncreasePolicy)
	if err != nil {
		baseLogger.Fatal("invalid reporting policy", zap.Error(err))
	}

	ledgerSvc := ledgersvc.NewService(store, codec, names, m, baseLogger.Named("svc.ledger"))
	if count, err := ledgerSvc.VerifyCatalog(ctx); err != nil {
		if ledgersvc.IsCorruptCatalog(err) {
			baseLogger.Fatal("catalog is empty or unreadable", zap.String("dataset", names.Inventory), zap.Error(err))
		}
		baseLogger.Warn("catalog not reachable at startup", zap.String("dataset", names.Inventory), zap.Error(err))
	} else {
		baseLogger.Info("catalog loaded", zap.String("dataset", names.Inventory), zap.Int("books", count))
	}
	orderSvc := ordersvc.NewService(store, codec, names, baseLogger.Named("svc.orders"))
	reportingSvc := reportingsvc.NewService(store, codec, names, policy, baseLogger.Named("svc.reporting"))

	gate, err := auth.NewGate(cfg.Admin, baseLogger.Named("svc.auth"))
	if err != nil {
		baseLogger.Fatal("failed to init admin gate", zap.Error(err))
	}

	var whatsClient whatsappclient.Client
	if cfg.WhatsApp.AccessToken != "" {
		whatsClient = whatsappclient.NewClient(cfg.WhatsApp)
		baseLogger.Info("whatsapp alerts enabled")
	} else {
		baseLogger.Warn("whatsapp token missing, alerts disabled")
	}
	alertSvc := alertsvc.NewService(cfg.WhatsApp, whatsClient, reportingSvc, orderSvc, baseLogger.Named("svc.alerts"))

	var (
		archiveReader handlers.ArchiveReader
		archive       scheduler.ReportArchive
	)
	if cfg.MongoDB.URI != "" {
		mongoRepo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		archiveReader, archive = mongoRepo, mongoRepo
	} else {
		baseLogger.Warn("mongodb uri missing, report archive disabled")
	}

	sched := scheduler.NewScheduler(cfg.Reporting, cfg.Location(), reportingSvc, archive, alertSvc, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	var archiver handlers.Archiver
	if archive != nil {
		archiver = sched
	}

	engine := router.New(router.Handlers{
		Inventory: handlers.NewInventoryHandler(reportingSvc, baseLogger.Named("handlers.inventory")),
		Orders:    handlers.NewOrderHandler(orderSvc, baseLogger.Named("handlers.orders")),
		Ledger:    handlers.NewLedgerHandler(ledgerSvc, baseLogger.Named("handlers.ledger")),
		Reports:   handlers.NewReportHandler(reportingSvc, archiveReader, archiver, baseLogger.Named("handlers.reports")),
		Alerts:    handlers.NewAlertHandler(alertSvc, baseLogger.Named("handlers.alerts")),
		Admin:     gate,
	}, m, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("backend", cfg.Store.Backend))
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
	if p := ledgerSvc.Pending(); p != nil {
		baseLogger.Error("exiting with an unretried partial write",
			zap.String("operation", p.Operation),
			zap.String("dataset", p.Dataset),
			zap.String("error", p.Error))
	}
}

func newBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (dataset.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendSheets:
		return sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, log.Named("repo.sheets"))
	case config.BackendMemory:
		log.Warn("using in-memory datasets, nothing is persisted")
		return dataset.NewMemoryStore(), nil
	default:
		return githubrepo.NewRepository(githubclient.NewClient(cfg.GitHub), log.Named("repo.github")), nil
	}
}

func newCache(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (dataset.Cache, func()) {
	if cfg.RedisAddr == "" {
		return dataset.NewMemoryCache(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, falling back to in-process cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return dataset.NewMemoryCache(), func() {}
	}

	log.Info("redis read cache enabled", zap.String("addr", cfg.RedisAddr))
	return dataset.NewRedisCache(client, cfg.RedisPrefix), func() {
		if err := client.Close(); err != nil {
			log.Error("failed to close redis client", zap.Error(err))
		}
	}
}
