package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/apexclear/settlement/internal/config"
	"github.com/apexclear/settlement/internal/database"
	"github.com/apexclear/settlement/internal/marketdata"
	"github.com/apexclear/settlement/internal/server"
	"github.com/apexclear/settlement/internal/settlement"
	"github.com/apexclear/settlement/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate ledger schema", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	priceCache := marketdata.NewPriceCache(redisClient, zapLogger, 0)

	engine := settlement.NewEngine(db, zapLogger, priceCache)

	processor := settlement.NewProcessor(settlement.ProcessorConfig{
		Brokers:           cfg.Kafka.Brokers,
		GroupID:           cfg.Kafka.GroupID,
		MatchTopic:        cfg.Kafka.MatchTopic,
		ConfirmationTopic: cfg.Kafka.ConfirmationTopic,
	}, engine, zapLogger)

	httpServer := server.New(cfg.HTTP.ListenAddr, db, priceCache, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go database.CollectPoolMetrics(ctx, db, "postgres", 30*time.Second)

	go func() {
		if err := processor.Run(ctx); err != nil && ctx.Err() == nil {
			zapLogger.Error("match consumer stopped", zap.Error(err))
		}
	}()

	go func() {
		zapLogger.Info("http server listening", zap.String("addr", cfg.HTTP.ListenAddr))
		if err := httpServer.Start(); err != nil {
			zapLogger.Error("http server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("shutting down")

	cancel()
	if err := processor.Close(); err != nil {
		zapLogger.Error("failed to close consumer", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("http shutdown failed", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		zapLogger.Error("failed to close redis client", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
