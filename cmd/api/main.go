package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"webmail/config"
	"webmail/internal/cache"
	"webmail/internal/directory"
	"webmail/internal/handler"
	"webmail/internal/httpserver"
	"webmail/internal/repository"
	"webmail/internal/service/auth"
	"webmail/internal/service/message"
	"webmail/internal/service/user"
	"webmail/pkg/circuitbreaker"
	"webmail/pkg/db"
	"webmail/pkg/logger"
	"webmail/pkg/mq"
	"webmail/pkg/otel"
	"webmail/pkg/outbox"
	redisclient "webmail/pkg/redis"
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

	shutdownOtel, err := otel.Init(cfg.Otel, version, log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownOtel()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis（不可用时降级为无缓存）
	var summaryCache directory.SummaryCache
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, participant cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		summaryCache = cache.NewSummaryCache(rdb, cfg.Cache.SummaryTTL)
	}

	// Init MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Init Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn)
	messageRepo := repository.NewMessageRepository(dbConn, outboxRepo)

	// Init Services
	dir := directory.New(userRepo, summaryCache, log)
	authService := auth.NewService(userRepo, cfg.JWT.Secret, cfg.JWT.TTL, log)
	userService := user.NewService(userRepo, dir, log)
	messageService := message.NewService(messageRepo, dir, log)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	// Init Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithCircuitBreaker(circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()))
	go dispatcher.Start(ctx)

	// Router
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Message: handler.NewMessageHandler(messageService, log),
		User:    handler.NewUserHandler(userService, log),
		Admin:   handler.NewAdminHandler(replayService, log),
	}, cfg.JWT.Secret, dir, dbConn, log)

	srv := router.Server(cfg.Server.Port)
	go func() {
		log.Info("Starting webmail API", zap.String("port", cfg.Server.Port), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down webmail API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
