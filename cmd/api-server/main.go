package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/practiceops/clinic-scheduling/internal/allocator"
	"github.com/practiceops/clinic-scheduling/internal/api"
	"github.com/practiceops/clinic-scheduling/internal/clock"
	"github.com/practiceops/clinic-scheduling/internal/config"
	"github.com/practiceops/clinic-scheduling/internal/db"
	"github.com/practiceops/clinic-scheduling/internal/flow"
	"github.com/practiceops/clinic-scheduling/internal/notify"
	redisclient "github.com/practiceops/clinic-scheduling/internal/redis"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
	"github.com/practiceops/clinic-scheduling/internal/waitlist"
)

const version = "0.3.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", "api-server").Logger()
	}

	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	clk := clock.Real()
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	scheduleRepo := schedule.NewPgRepository(pgPool)
	scheduleSvc := schedule.NewService(scheduleRepo, locker, clk, schedule.ServiceConfig{
		ArrivalEarly:      cfg.ArrivalEarly,
		ArrivalLate:       cfg.ArrivalLate,
		RecurrenceHorizon: cfg.RecurrenceHorizon,
	}, logger)
	availability := schedule.NewAvailabilityEngine(scheduleRepo, cfg.MaxRangeDays)

	waitlistRepo := waitlist.NewPgRepository(pgPool)
	waitlistSvc := waitlist.NewService(waitlistRepo, scheduleSvc, clk, cfg.OfferTTL, logger)

	flowRepo := flow.NewPgRepository(pgPool)
	flowSvc := flow.NewService(flowRepo, clk, cfg.WaitingSLA, logger)

	alloc := allocator.New(scheduleRepo, scheduleSvc.Detector(), logger)

	var notifier schedule.Notifier
	if endpoint := os.Getenv("NOTIFY_ENDPOINT"); endpoint != "" {
		notifier = notify.NewHTTPNotifier(endpoint, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	scheduleSvc.SetNotifier(notifier)
	scheduleSvc.SetOpeningListener(waitlistSvc)
	scheduleSvc.SetVisitSpawner(flowSvc)
	waitlistSvc.SetNotifier(notifier)

	handler := api.NewRouter(api.RouterConfig{
		Schedule:     scheduleSvc,
		Availability: availability,
		Waitlist:     waitlistSvc,
		Flow:         flowSvc,
		Allocator:    alloc,
		AllocateOn:   cfg.AllocateOn,
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("api-server stopped")
}
