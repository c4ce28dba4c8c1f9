/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the HR ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Open and migrate the database (SQLite or PostgreSQL)
  3. Build the tenant gate, event publisher and core service
  4. Start the year-end rollover scheduler
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration file (default: config.yaml, optional)
  -port    HTTP server port, overrides the configuration
  -db      SQLite database path, overrides the configuration
           Use ":memory:" for an in-memory database

ENVIRONMENT:
  A .env file is loaded if present. HRL_HTTP_PORT, HRL_DB_DRIVER,
  HRL_DB_DSN, HRL_KAFKA_BROKERS, HRL_KAFKA_TOPIC, HRL_JWT_SECRET,
  HRL_ADMIN_TOKEN, HRL_LOG_LEVEL and HRL_ENTITLEMENT override the file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete
  3. Stop the scheduler, flush queued events, close the database

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/warp/hr-ledger/api"
	"github.com/warp/hr-ledger/config"
	"github.com/warp/hr-ledger/core"
	"github.com/warp/hr-ledger/events"
	"github.com/warp/hr-ledger/store/postgres"
	"github.com/warp/hr-ledger/store/sqlite"
	"github.com/warp/hr-ledger/tenant"
)

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver, cfg.Database.DSN = "sqlite", *dbPath
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	db, translate, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer closeDatabase(db, logger)

	gate, err := tenant.NewGate(db, tenant.WithLogger(logger), tenant.WithErrorTranslator(translate))
	if err != nil {
		logger.Fatal("failed to initialize tenant gate", zap.Error(err))
	}

	publisher, closePublisher := initPublisher(cfg.Kafka, logger)
	defer closePublisher()

	entitlement, err := core.EntitlementPolicy(cfg.Leave.Entitlement)
	if err != nil {
		logger.Fatal("invalid entitlement policy", zap.Error(err))
	}
	svc := core.New(gate,
		core.WithPublisher(publisher),
		core.WithRetryPolicy(cfg.Retry.Policy()),
		core.WithEntitlementPolicy(entitlement),
		core.WithLogger(logger))

	scheduler := core.NewRolloverScheduler(svc, gate, logger)
	scheduler.Enabled = cfg.Leave.RolloverEnabled
	if cfg.Leave.RolloverInterval > 0 {
		scheduler.CheckInterval = cfg.Leave.RolloverInterval
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(api.NewHandler(svc, gate), api.RouterOptions{
		JWTSecret:      cfg.Auth.JWTSecret,
		AdminToken:     cfg.Auth.AdminToken,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured; trusting X-Tenant-ID and X-Actor-ID headers")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.HTTP.Port),
			zap.String("db_driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewExample()
	}
	return logger
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, func(error) error, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.New(postgres.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		return db, postgres.Translate, err
	default:
		db, err := sqlite.New(cfg.DSN)
		return db, sqlite.Translate, err
	}
}

func closeDatabase(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		logger.Error("failed to close database", zap.Error(err))
	}
}

func initPublisher(cfg config.KafkaConfig, logger *zap.Logger) (events.Publisher, func()) {
	if !cfg.Enabled() {
		logger.Info("kafka not configured; domain events are discarded")
		return events.Nop{}, func() {}
	}
	if cfg.CreateTopic {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := events.EnsureTopic(ctx, cfg.Brokers[0], cfg.Topic, 3, logger); err != nil {
			logger.Warn("failed to reach kafka for topic creation", zap.Error(err))
		}
		cancel()
	}
	producer, err := events.NewProducer(events.ProducerConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.Topic,
		QueueSize: cfg.QueueSize,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize kafka producer", zap.Error(err))
	}
	return producer, producer.Close
}
