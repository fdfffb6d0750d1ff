package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hackgods/clinic-scheduling/internal/api"
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

	logger := logging.New(cfg, "api-server")
	logger.Info().Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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

	if cfg.AutoMigrate {
		applied, err := db.NewMigrator(pgPool).Up(rootCtx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration error")
		}
		logger.Info().Int("applied", applied).Msg("schema up to date")
	}

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
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	queue := asynq.NewClient(conn.AsynqOpt())
	defer queue.Close()

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    "clinic-scheduling-api",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Env,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry setup error")
	}
	metrics, err := telemetry.NewMetrics(tel.MeterProvider)
	if err != nil {
		logger.Fatal().Err(err).Msg("metrics setup error")
	}

	defaultHours, _ := cfg.DefaultHours()
	store := schedule.NewPgStore(pgPool)
	resolver := schedule.NewResolver(store, store, store, defaultHours)

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait)
	publisher := events.NewPublisher(queue)

	svc := appointment.NewService(repo, resolver, locker, cfg, logger)
	svc.SetPublisher(publisher)
	svc.SetBilling(publisher)
	svc.SetMetrics(metrics)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Postgres:       pgPool,
		Redis:          api.RedisPinger{Client: rdb},
		Logger:         logger,
		MeterProvider:  tel.MeterProvider,
		Metrics:        tel.Handler(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Env:            cfg.Env,
		Version:        cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("telemetry shutdown error")
	}
}
