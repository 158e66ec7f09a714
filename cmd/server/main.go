package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pawcare/config"
	"pawcare/internal/api"
	"pawcare/internal/feed"
	"pawcare/internal/feed/memory"
	"pawcare/internal/feed/pgfeed"
	"pawcare/internal/notify"
	"pawcare/internal/repository"
	"pawcare/pkg/circuitbreaker"
	pkgconfig "pawcare/pkg/config"
	"pawcare/pkg/db"
	"pawcare/pkg/logger"
	"pawcare/pkg/mq"
	redisclient "pawcare/pkg/redis"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting pawcare notification server...",
		zap.String("feed_driver", cfg.Feed.Driver),
		zap.String("port", cfg.Server.Port),
	)

	var (
		source    feed.Source
		publisher api.EventPublisher
		readiness = map[string]api.Pinger{}
		cleanup   []func()
	)

	switch cfg.Feed.Driver {
	case pkgconfig.FeedDriverMemory:
		mem := memory.New()
		source = mem
		publisher = &localPublisher{source: mem, logger: log}
		log.Warn("Using in-memory feed; notifications are not persisted")

	case pkgconfig.FeedDriverPostgres:
		dbConn, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		cleanup = append(cleanup, dbConn.Close)

		migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = repository.RunMigrations(migrateCtx, dbConn)
		cancel()
		if err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}

		rdb, err := redisclient.NewRedisClient(cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		cleanup = append(cleanup, func() { _ = rdb.Close() })

		mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		cleanup = append(cleanup, mqPublisher.Close)

		repo := repository.NewNotificationRepository(dbConn, log)
		source = pgfeed.New(repo, rdb, log)
		publisher = mqPublisher
		readiness["db"] = repo
		readiness["redis"] = redisPinger{rdb}

	default:
		log.Fatal("Unknown feed driver", zap.String("driver", cfg.Feed.Driver))
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.Breaker.FailureThreshold
	breakerCfg.SuccessThreshold = cfg.Breaker.SuccessThreshold
	breakerCfg.Timeout = cfg.BreakerTimeout()

	mutator := notify.NewMutator(source, log,
		notify.WithBreaker(notify.NewWriteBreaker(breakerCfg)),
		notify.WithConcurrency(cfg.Notify.BulkConcurrency),
		notify.WithWriteTimeout(cfg.WriteTimeout()),
	)
	minBackoff, maxBackoff := cfg.ResubscribeBackoff()

	router := api.NewRouter(
		api.NewNotificationHandler(source, mutator, log),
		api.NewStreamHandler(source, log, notify.WithBackoff(minBackoff, maxBackoff)),
		api.NewPublishHandler(publisher, log),
		cfg.JWT.Secret,
		log,
		readiness,
	)

	// SSE 长连接不会自行空闲，关停时通过根 context 统一取消
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return rootCtx },
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification server gracefully...")

	rootCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}

	log.Info("Notification server shutdown complete")
}
