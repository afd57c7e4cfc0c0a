package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Initialize OpenTelemetry
	tp, err := initTracer(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	mp, err := initMetrics(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down meter", zap.Error(err))
		}
	}()

	metrics, err := NewStoreMetrics(mp.Meter(instrumentationName))
	if err != nil {
		logger.Fatal("Failed to create metrics", zap.Error(err))
	}

	// Initialize database
	if err := runMigrations(cfg.Database.URL(), logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	dbPool, err := initDB(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	sqlDB, err := initSQLDB(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize sql database", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies
	catalogRepo := NewCatalogRepository(dbPool)
	orderRepo := NewOrderRepository(dbPool)
	fulfillmentStore := NewFulfillmentStore(sqlDB)
	pageCache := NewRedisPageCache(rdb, cfg.Redis.PageTTL, logger)
	images := NewDiskImageStore(cfg.Assets.PublicDir, logger)
	gateway := NewStripeGateway(cfg.Stripe, cfg.PublicURL, nil, logger)
	mailer := NewSendGridMailer(cfg.SendGrid, logger)
	chat := NewChatClient(cfg.Chat, logger)

	stock := NewStockUseCase(catalogRepo, metrics, logger)
	notifier := NewNotifierUseCase(orderRepo, mailer, metrics, logger, cfg.PublicURL)
	checkout := NewCheckoutUseCase(gateway, logger)
	webhooks := NewWebhookUseCase(gateway, fulfillmentStore, stock, notifier, metrics, logger, cfg.Kafka.OrdersTopic)
	catalog := NewCatalogUseCase(catalogRepo, pageCache, logger)
	admin := NewAdminUseCase(catalogRepo, orderRepo, stock, images, pageCache, logger)

	tracer := tp.Tracer(instrumentationName)
	storeHandler := NewStoreHandler(checkout, webhooks, notifier, catalog, chat, tracer, logger)
	adminHandler := NewAdminHandler(admin, tracer, logger, cfg.HTTP.MaxUploadMB)

	// Outbox -> Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := NewKafkaProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Fatal("Failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close()

		publisher := NewOutboxPublisher(NewOutboxRepository(dbPool), producer, cfg.Kafka, logger)
		go publisher.Start(ctx)
	} else {
		logger.Warn("⚠️ [OUTBOX] no kafka brokers configured, order events stay in the outbox")
	}

	// Setup Gin router
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.MaxMultipartMemory = cfg.HTTP.MaxUploadMB << 20

	r.Static("/"+productImagesDir, filepath.Join(cfg.Assets.PublicDir, productImagesDir))
	storeHandler.RegisterRoutes(r)
	adminHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("🚀 Storefront Service listening", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Shutting down storefront service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
