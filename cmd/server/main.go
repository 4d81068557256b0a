package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appreconciliation "github.com/erp/bankrec/internal/application/reconciliation"
	"github.com/erp/bankrec/internal/application/statementimport"
	"github.com/erp/bankrec/internal/domain/reconciliation"
	"github.com/erp/bankrec/internal/infrastructure/cache"
	"github.com/erp/bankrec/internal/infrastructure/config"
	"github.com/erp/bankrec/internal/infrastructure/jobs"
	"github.com/erp/bankrec/internal/infrastructure/locker"
	"github.com/erp/bankrec/internal/infrastructure/logger"
	"github.com/erp/bankrec/internal/infrastructure/persistence"
	"github.com/erp/bankrec/internal/infrastructure/scheduler"
	"github.com/erp/bankrec/internal/interfaces/http/handler"
	"github.com/erp/bankrec/internal/interfaces/http/middleware"
	"github.com/erp/bankrec/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(&cfg.Log)
	defer func() { _ = log.Sync() }()

	log.Info("Starting bank reconciliation service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := persistence.Migrate(db.DB); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connected and migrated")

	// Repositories and stores
	txRepo := persistence.NewGormBankTransactionRepository(db.DB)
	bankAccountRepo := persistence.NewGormBankAccountRepository(db.DB)
	clearanceStore := persistence.NewGormClearanceStore(db.DB)

	// Candidate providers; registration order is also the secondary display
	// order within equal ranks.
	engine := reconciliation.NewMatchingEngine(
		persistence.NewGormAllocationLookup(db.DB),
		log,
		persistence.NewPaymentEntryProvider(db.DB),
		persistence.NewJournalEntryProvider(db.DB),
		persistence.NewSalesInvoiceProvider(db.DB),
		persistence.NewPurchaseInvoiceProvider(db.DB),
		persistence.NewUnpaidSalesInvoiceProvider(db.DB),
		persistence.NewUnpaidPurchaseInvoiceProvider(db.DB),
		persistence.NewLoanDisbursementProvider(db.DB),
		persistence.NewLoanRepaymentProvider(db.DB),
		persistence.NewSiblingTransactionProvider(db.DB),
	)

	// Background jobs with a deduplicating idempotency store
	dedupe := cache.NewDedupeStore(cfg.Redis, log)
	defer func() { _ = dedupe.Close() }()

	runner := jobs.NewRunner(cfg.Jobs, dedupe, log)
	runner.Start()

	// Application services
	clearanceSvc := appreconciliation.NewClearanceService(
		clearanceStore, txRepo, bankAccountRepo, locker.New(), runner, log,
		cfg.Matching.BatchValidateLimit)
	reconcileSvc := appreconciliation.NewReconciliationService(
		txRepo, bankAccountRepo, engine, clearanceSvc, log)
	importSvc := statementimport.NewImportService(
		txRepo, bankAccountRepo, cfg.Import, log)

	// Nightly sweep catches voucher edits made outside the reconciliation API
	var sweep *scheduler.DailySweep
	if cfg.Sweep.Enabled {
		lookback := time.Duration(cfg.Sweep.LookbackDays) * 24 * time.Hour
		sweep = scheduler.NewDailySweep(scheduler.SweepConfig{
			Hour:          cfg.Sweep.Hour,
			Minute:        cfg.Sweep.Minute,
			CheckInterval: cfg.Sweep.CheckInterval,
		}, func(ctx context.Context) error {
			from := time.Now().Add(-lookback)
			result, err := clearanceSvc.BatchValidate(ctx, reconciliation.BankTransactionFilter{
				FromDate: &from,
				Limit:    cfg.Matching.BatchValidateLimit,
			})
			if err != nil {
				return err
			}
			log.Info("Clearance sweep finished",
				zap.Int("found", result.TotalFound),
				zap.Int("processed", result.Processed),
				zap.Int("success", result.Success))
			return nil
		}, log)
		if err := sweep.Start(context.Background()); err != nil {
			log.Fatal("Failed to start clearance sweep", zap.Error(err))
		}
	}

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.Use(
		logger.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.SecurityHeaders(),
		middleware.CORSWithConfig(middleware.DefaultCORSConfig()),
		middleware.BodyLimit(cfg.Import.MaxFileSize),
	)
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	}

	router.NewRouter(ginEngine).
		Register(handler.NewReconciliationHandler(reconcileSvc, log)).
		Register(handler.NewClearanceHandler(clearanceSvc, log)).
		Register(handler.NewImportHandler(importSvc, log)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	if sweep != nil {
		if err := sweep.Stop(ctx); err != nil {
			log.Error("Clearance sweep shutdown timed out", zap.Error(err))
		}
	}
	if err := runner.Shutdown(ctx); err != nil {
		log.Error("Job runner shutdown timed out", zap.Error(err))
	}
	log.Info("Stopped")
}
