package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"guessrounds/internal/chain"
	"guessrounds/internal/config"
	cronrunner "guessrounds/internal/cron"
	"guessrounds/internal/db"
	"guessrounds/internal/game"
	"guessrounds/internal/handler"
	"guessrounds/internal/logger"
	"guessrounds/internal/metrics"
	"guessrounds/internal/realtime"
	gormrepository "guessrounds/internal/repository/gorm"
	"guessrounds/internal/service"
)

func main() {
	cfgPath := os.Getenv("GR_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("GR_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	variants, err := game.FromConfig(cfg.Game)
	if err != nil {
		logger.Fatal("bad game configuration", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	chainClient := chain.NewClient(&http.Client{Timeout: cfg.Chain.Timeout}, cfg.Chain, logger)
	hub := realtime.NewHub(logger)
	m := metrics.New("guessrounds")

	settlementSvc := &service.SettlementService{
		Repo:              store,
		Logger:            logger,
		Hub:               hub,
		Metrics:           m,
		ForceCloseOnError: cfg.Settlement.ForceCloseOnError,
	}
	scheduler := &service.Scheduler{
		Repo:       store,
		Settlement: settlementSvc,
		Variants:   variants,
		Logger:     logger,
		Hub:        hub,
		Metrics:    m,
	}
	roundsSvc := &service.RoundsService{
		Repo:     store,
		Variants: variants,
		Logger:   logger,
		Hub:      hub,
	}
	claimSvc := &service.ClaimService{
		Repo:    store,
		Chain:   chainClient,
		Logger:  logger,
		Hub:     hub,
		Metrics: m,
	}
	reconciler := &service.Reconciler{
		Repo:      store,
		Chain:     chainClient,
		Logger:    logger,
		Metrics:   m,
		BatchSize: cfg.Reconcile.BatchSize,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	schedulerHandler := &handler.SchedulerHandler{Scheduler: scheduler}
	schedulerHandler.Register(engine)
	claimHandler := &handler.ClaimHandler{Claims: claimSvc, Logger: logger}
	claimHandler.Register(engine)
	roundsHandler := &handler.RoundsHandler{Rounds: roundsSvc}
	roundsHandler.Register(engine)
	wsHandler := &realtime.WSHandler{Hub: hub, Logger: logger}
	wsHandler.Register(engine)
	metrics.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add(cfg.Cron.Scheduler, func(ctx context.Context) {
			stats := scheduler.Run(ctx, time.Now().UTC())
			if stats.ProcessedRounds > 0 || stats.ActivatedRounds > 0 || stats.CreatedNewRound {
				logger.Info("scheduler tick",
					zap.Int("processed", stats.ProcessedRounds),
					zap.Int("activated", stats.ActivatedRounds),
					zap.Bool("created", stats.CreatedNewRound),
				)
			}
		}); err != nil {
			logger.Warn("cron register scheduler failed", zap.Error(err))
		}
	}
	if cfg.Reconcile.Enabled {
		if _, err := cronRunner.Add(cfg.Cron.Reconcile, func(ctx context.Context) {
			if _, err := reconciler.RunOnce(ctx, time.Now().UTC()); err != nil {
				logger.Warn("payout reconciliation failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register reconcile failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
