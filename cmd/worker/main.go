package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/saraya-erp/saraya-erp/internal/app"
	"github.com/saraya-erp/saraya-erp/internal/events"
	"github.com/saraya-erp/saraya-erp/internal/observability"
	"github.com/saraya-erp/saraya-erp/internal/platform/cache"
	"github.com/saraya-erp/saraya-erp/internal/platform/db"
	"github.com/saraya-erp/saraya-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	finance, err := app.NewFinance(cfg, pool, redisClient, metrics, logger)
	if err != nil {
		return err
	}

	bus := finance.EventBus(cfg, redisClient, metrics, logger)
	dispatch, err := events.NewPool(bus, cfg.WorkerPoolSize, logger)
	if err != nil {
		return err
	}
	defer dispatch.Release()

	bedCharges := jobs.NewBedChargeJob(finance.Billing, finance.Locker, logger, metrics.Jobs())
	integrity := jobs.NewGLIntegrityJob(jobs.NewIntegrityStore(pool), finance.Locker, logger, metrics.Jobs())

	bedTask, err := jobs.NewBedChargeTask(jobs.BedChargePayload{})
	if err != nil {
		return err
	}
	integrityTask, err := jobs.NewGLIntegrityTask(jobs.GLIntegrityPayload{})
	if err != nil {
		return err
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskBedChargeAccrual, Handler: bedCharges.Handle},
		{Type: jobs.TaskGLIntegrity, Handler: integrity.Handle},
	}
	if cfg.EventTransport == app.TransportAsynq {
		handlers = append(handlers, jobs.EventHandlers(dispatch, logger)...)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().Asynq(),
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers:    handlers,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BedChargeCron, Task: bedTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.GLIntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	g.Go(func() error {
		logger.Info("worker metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	if cfg.EventTransport == app.TransportKafka {
		reader := events.NewKafkaReader(events.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		defer reader.Close()
		consumer := events.NewKafkaConsumer(reader, dispatch, logger)
		g.Go(func() error {
			logger.Info("consuming finance events from kafka", slog.String("topic", cfg.KafkaTopic))
			return consumer.Run(ctx)
		})
	}
	return g.Wait()
}
