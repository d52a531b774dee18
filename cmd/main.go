package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopapp/payment-service/internal/api"
	"github.com/shopapp/payment-service/internal/config"
	"github.com/shopapp/payment-service/internal/events"
	"github.com/shopapp/payment-service/internal/provider"
	"github.com/shopapp/payment-service/internal/repository"
	"github.com/shopapp/payment-service/internal/service"
	"github.com/shopapp/payment-service/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-service"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Service")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	paymentRepo := repository.NewPaymentRepository(db)
	if err := paymentRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize payments schema", zap.Error(err))
	}
	orderRepo := repository.NewOrderRepository(db)
	if err := orderRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize orders schema", zap.Error(err))
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	locker := repository.NewRedisLocker(redisClient)

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()
	notifier := events.NewNATSNotifier(nc)

	// Connect to Kafka
	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	// Initialize payment strategies
	cod := provider.NewCOD(paymentRepo, orderRepo)
	vnpay := provider.NewVNPay(cfg.VNPay, paymentRepo, orderRepo)
	momo := provider.NewMoMo(cfg.MoMo, paymentRepo, orderRepo)
	zalopay := provider.NewZaloPay(cfg.ZaloPay, paymentRepo, orderRepo)

	// Initialize services
	orchestrator := service.NewOrchestrator(paymentRepo, orderRepo, locker, publisher, notifier, cod, vnpay, momo, zalopay)
	callbacks := service.NewCallbackProcessor(paymentRepo, orderRepo, locker, publisher, notifier, vnpay, momo, zalopay)

	// Setup router
	r := api.NewRouter(orchestrator, callbacks)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
