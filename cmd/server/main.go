package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appacct "github.com/estatehq/backend/internal/application/accounting"
	appbilling "github.com/estatehq/backend/internal/application/billing"
	"github.com/estatehq/backend/internal/application/report"
	"github.com/estatehq/backend/internal/infrastructure/cache"
	"github.com/estatehq/backend/internal/infrastructure/config"
	"github.com/estatehq/backend/internal/infrastructure/logger"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/estatehq/backend/internal/interfaces/http/dto"
	"github.com/estatehq/backend/internal/interfaces/http/handler"
	"github.com/estatehq/backend/internal/interfaces/http/middleware"
	"github.com/estatehq/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	zapLogger, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("starting server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port))

	gormLogger := logger.NewGormLogger(zapLogger, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	reportCache := cache.NewReportCache(cfg.Redis, zapLogger)
	dealGateway := persistence.NewGormDealGateway(db.DB)

	reportSvc := report.NewReconciliationService(db, reportCache, cfg.Report.CacheTTL, zapLogger)
	accountSvc := appacct.NewAccountService(db, zapLogger)
	journalSvc := appacct.NewJournalService(db, zapLogger).WithReportInvalidator(reportSvc)
	voucherSvc := appacct.NewVoucherService(db, journalSvc, zapLogger).WithReportInvalidator(reportSvc)
	planSvc := appbilling.NewPaymentPlanService(db, dealGateway, zapLogger)
	receiptSvc := appbilling.NewReceiptService(db, dealGateway, journalSvc, cfg.Ledger, zapLogger).
		WithReportInvalidator(reportSvc)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		zapLogger.Fatal("invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(zapLogger),
		logger.GinMiddleware(zapLogger),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	engine.GET("/health", healthHandler(db))

	router.NewRouter(engine).
		Register(
			handler.NewAccountHandler(accountSvc),
			handler.NewJournalHandler(journalSvc),
			handler.NewVoucherHandler(voucherSvc),
			handler.NewPaymentPlanHandler(planSvc),
			handler.NewReceiptHandler(receiptSvc),
			handler.NewReportHandler(reportSvc),
		).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		zapLogger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("forced shutdown", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse("UNHEALTHY", "database unreachable"))
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{"status": "ok"}))
	}
}
