package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
	"github.com/hackgods/clinic-scheduling/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.Bootstrap()
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg, "event-worker")
	logger.Info().
		Dur("interval", cfg.WorkerInterval).
		Int("concurrency", cfg.WorkerConcurrency).
		Msg("event-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{}, logger)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	// Connect Redis
	conn := redisclient.Conn{Addr: cfg.RedisAddr, Username: cfg.RedisUsername, Password: cfg.RedisPassword}
	rdb, err := redisclient.NewRedisClient(rootCtx, conn)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()

	queue := asynq.NewClient(conn.AsynqOpt())
	defer queue.Close()

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    "clinic-scheduling-worker",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Env,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry setup error")
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown error")
		}
	}()
	metrics, err := telemetry.NewMetrics(tel.MeterProvider)
	if err != nil {
		logger.Fatal().Err(err).Msg("metrics setup error")
	}

	if cfg.MetricsPort != "" {
		metricsSrv := telemetry.NewMetricsServer(":"+cfg.MetricsPort, tel)
		go func() {
			logger.Info().Str("port", cfg.MetricsPort).Msg("metrics listener started")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := metricsSrv.Shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("metrics listener shutdown error")
			}
		}()
	}

	defaultHours, _ := cfg.DefaultHours()
	store := schedule.NewPgStore(pgPool)
	resolver := schedule.NewResolver(store, store, store, defaultHours)

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait)
	svc := appointment.NewService(repo, resolver, locker, cfg, logger)
	svc.SetPublisher(events.NewPublisher(queue))
	svc.SetMetrics(metrics)

	srv := asynq.NewServer(conn.AsynqOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			events.QueueDefault: 6,
			events.QueueBilling: 4,
		},
		Logger:          asynqLogger{logger.With().Str("component", "asynq").Logger()},
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	mux := events.NewServeMux(events.NewLogNotifier(logger), events.NewPgChargeStore(pgPool), logger)
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("asynq server start error")
	}
	defer srv.Shutdown()

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping event worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.MarkNoShows(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("no-show sweep error")
		return
	}
	logger.Info().Int("marked", marked).Dur("took", time.Since(start)).Msg("no-show sweep complete")
}
