package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dcastano/lotledger/internal/adapter/handler"
	"github.com/dcastano/lotledger/internal/adapter/storage"
	"github.com/dcastano/lotledger/internal/config"
	"github.com/dcastano/lotledger/internal/core/domain"
	"github.com/dcastano/lotledger/internal/core/service"
	"github.com/dcastano/lotledger/internal/relay"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Primary store
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Secondary store
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Adapters
	ledger := storage.NewMySQLAdapter(db)
	tickets := storage.NewRedisAdapter(rdb)

	if err := ledger.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	// Services
	saleService := service.NewSaleService(ledger, logger, cfg.TaxRate)
	inventoryService := service.NewInventoryService(ledger, logger)

	// Relay worker
	worker := relay.NewWorker(ledger, logger, cfg.PollInterval, cfg.BatchSize, cfg.MaxRetries)
	ticketHandler := relay.NewTicketHandler(tickets, logger)
	worker.Register(domain.EventTypeSaleCreated, ticketHandler.Apply)
	worker.Start()

	// HTTP server
	engine := gin.New()
	engine.Use(gin.Recovery())
	httpHandler := handler.NewHTTPHandler(saleService, inventoryService, tickets, ledger, worker, logger)
	httpHandler.RegisterRoutes(engine)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	if err := worker.Stop(cfg.ShutdownTimeout); err != nil {
		logger.Error("relay worker stop failed", zap.Error(err))
	}

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
