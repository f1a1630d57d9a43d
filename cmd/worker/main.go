package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"webmail/config"
	mqcontracts "webmail/contracts/mq"
	"webmail/internal/mqhandler"
	"webmail/internal/repository"
	"webmail/pkg/db"
	"webmail/pkg/logger"
	"webmail/pkg/mq"
	"webmail/pkg/otel"
	redisclient "webmail/pkg/redis"
	"webmail/pkg/util"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_DIR"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting worker service...", zap.String("version", version))

	shutdownOtel, err := otel.Init(cfg.Otel, version, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownOtel()

	// Init Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, cfg.Worker.RetryTTL)

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	deliveryRepo := repository.NewDeliveryLogRepository(dbConn)
	deliveryHandler := mqhandler.NewMessageSentDeliveryHandler(deliveryRepo, deduper, log)

	log.Info("Initializing delivery consumer", zap.String("queue", mqcontracts.QueueMessageSentDelivery))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, mqcontracts.QueueMessageSentDelivery, mqcontracts.RoutingKeyMessageSent, log)
	if err != nil {
		log.Fatal("failed to init delivery consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(deliveryHandler.HandleMessageSent)
	consumer.SetRetryPolicy(retryCounter, cfg.Worker.MaxRetries)

	// worker 只暴露 metrics
	metricsSrv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server stopped", zap.Error(err))
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- consumer.StartConsuming(ctx)
	}()
	log.Info("Worker is ready to process messages")

	select {
	case err := <-done:
		if err != nil {
			log.Error("Delivery consumer failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("Shutting down worker, draining in-flight messages")
		if err := <-done; err != nil {
			log.Error("Delivery consumer failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

