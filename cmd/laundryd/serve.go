package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"laundry-queue-backend/config"
	"laundry-queue-backend/internal/api"
	"laundry-queue-backend/internal/availability"
	"laundry-queue-backend/internal/db"
	"laundry-queue-backend/internal/issue"
	"laundry-queue-backend/internal/logging"
	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/notification"
	"laundry-queue-backend/internal/queue"
	"laundry-queue-backend/internal/scraper"
	"laundry-queue-backend/internal/store"
)

func serveCommand(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API, push workers and upstream scraper",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, logging.New(cfg.Log, os.Stdout))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return err
	}
	logger.WithField("driver", cfg.Database.Driver).Info("database initialized")

	appStore := store.NewGormStore(gormDB)
	m := metrics.New()

	notified, closeNotified, err := notifiedSet(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeNotified()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var sinks queue.MultiSink
	var webpushOptions *webpush.Options
	var workerPool *notification.WorkerPool
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, m, logger)
		workerPool.Start(workerCtx)
		sinks = append(sinks, workerPool)
	} else {
		logger.Warn("VAPID keys are not configured; push notifications are disabled")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := notification.NewKafkaPublisher(notification.NewKafkaWriter(cfg.Kafka), logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.WithError(err).Warn("failed to close kafka writer")
			}
		}()
		sinks = append(sinks, publisher)
		logger.WithField("topic", cfg.Kafka.Topic).Info("publishing turn events to kafka")
	}

	notifier := queue.NewTurnNotifier(appStore, notified, sinks, m, logger)
	queues := queue.NewManager(appStore, notifier, m, logger)
	tracker := issue.NewTracker(appStore, cfg.Issues.RequireInProgress, m, logger)
	coordinator := availability.NewCoordinator(queues, m, logger)

	scraperSvc := scraper.NewService(cfg.Scraper, appStore, coordinator, m, logger)
	go scraperSvc.Run(ctx)

	handler := api.NewHandler(appStore, queues, tracker, coordinator, webpushOptions, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server, m),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return errors.Wrap(err, "HTTP server")
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown")
	}

	stopWorkers()
	if workerPool != nil {
		workerPool.Wait()
	}
	logger.Info("server gracefully stopped")
	return nil
}

// notifiedSet picks Redis when an address is configured, otherwise an in-process set.
func notifiedSet(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) (queue.NotifiedSet, func(), error) {
	if cfg.Addr == "" {
		return queue.NewMemoryNotifiedSet(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
	}
	logger.WithField("addr", cfg.Addr).Info("notified set stored in redis")
	return queue.NewRedisNotifiedSet(client, cfg.NotifiedKey), func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}, nil
}
