package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trade-settlement-go/internal/api"
	"trade-settlement-go/internal/config"
	"trade-settlement-go/internal/database"
	"trade-settlement-go/internal/lock"
	"trade-settlement-go/internal/logger"
	"trade-settlement-go/internal/quotes"
	"trade-settlement-go/internal/scheduler"
	"trade-settlement-go/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const sweepLeaseKey = "settlement:sweep"

func main() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := settlement.NewEngine(log, db, cfg.Settlement)
	if err != nil {
		log.Fatal("Failed to create settlement engine", zap.Error(err))
	}

	schedOpts := []scheduler.Option{scheduler.WithMetrics(scheduler.NewMetrics(prometheus.DefaultRegisterer))}

	var lease *lock.RedisLease
	if cfg.Redis.Addr != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		lease = lock.NewRedisLease(rdb, sweepLeaseKey, instanceName(), cfg.Scheduler.LeaseTTL)
		schedOpts = append(schedOpts, scheduler.WithLease(lease))
		log.Info("Sweep lease enabled", zap.String("addr", cfg.Redis.Addr))
	}

	sched, err := scheduler.New(log, engine, cfg.Scheduler.Interval, schedOpts...)
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}

	var prices quotes.PriceSource
	if cfg.Quotes.Enabled {
		prices = quotes.NewRestClient(&cfg.Quotes, log)
		log.Info("Entry price quotes enabled", zap.String("base_url", cfg.Quotes.BaseURL))
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	} else {
		log.Warn("Scheduler disabled; trades settle only on manual runs")
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(log, engine, sched, prices)
	router := api.NewRouter(log, handler, cfg.Admin, prometheus.DefaultGatherer)
	server := api.NewServer(cfg.Server, router, log)
	server.Start()

	<-ctx.Done()
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	sched.Stop()
	if lease != nil {
		if err := lease.Release(shutdownCtx); err != nil {
			log.Warn("Failed to release sweep lease", zap.Error(err))
		}
	}

	log.Info("Settlement service has been shut down.")
}

func instanceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
