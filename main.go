package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filealchemy/api"
	"filealchemy/config"
	"filealchemy/logging"
	"filealchemy/services"
	"filealchemy/worker"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	logger.Info().Msg("Starting FileAlchemy conversion service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")

	analytics := services.NewAnalyticsService(redisClient, cfg.HistoryKey, cfg.HistoryLimit)
	sinks := []services.HistorySink{analytics}

	if cfg.DatabaseURL != "" {
		dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbSvc.Close()
		if err := dbSvc.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to prepare database schema")
		}
		sinks = append(sinks, dbSvc)
		logger.Info().Msg("Connected to database")
	}

	if len(cfg.KafkaBrokers) > 0 {
		events := services.NewEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer events.Close()
		sinks = append(sinks, events)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Publishing conversion records")
	}

	tracker := services.NewTracker(logger, sinks...)

	client := services.NewConversionClient(cfg.APIURL, cfg.RequestTimeout, logger)
	client.PollInterval = cfg.PollInterval
	client.MaxUploadSize = cfg.MaxUploadSize

	mock := services.NewMockConverter(cfg.MockStepDelay, logger)
	converter := services.NewSmartConverter(client, mock, logger)
	if cfg.ForceMock {
		converter.ForceMock()
	}
	availability := converter.EnsureAvailabilityKnown(ctx)
	logger.Info().Str("api_url", cfg.APIURL).Str("backend", availability.String()).Msg("Conversion backend checked")

	s3Svc := services.NewS3Service(cfg)
	pool := worker.NewPool(cfg, redisClient, converter, client, s3Svc, tracker, logger)

	srv := &http.Server{
		Addr: cfg.StatusAddr,
		Handler: api.NewRouter(&api.App{
			Formats: converter,
			Queue:   pool,
			History: analytics,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerCount; i++ {
		workerID := i
		g.Go(func() error {
			pool.StartWorker(gctx, workerID)
			return nil
		})
	}
	g.Go(func() error {
		pool.RecoveryLoop(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.StatusAddr).Msg("Status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info().
		Int("workers", cfg.WorkerCount).
		Str("queue", cfg.PendingQueue).
		Msg("Service is ready to process conversions")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("Service stopped with error")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received, stopping workers")
		select {
		case err := <-done:
			if err != nil {
				logger.Error().Err(err).Msg("Shutdown error")
			}
			logger.Info().Msg("All workers stopped gracefully")
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("Shutdown timeout, forcing exit")
		}
	}

	logger.Info().Msg("Conversion service stopped")
}
