package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/practiceops/clinic-scheduling/internal/clock"
	"github.com/practiceops/clinic-scheduling/internal/config"
	"github.com/practiceops/clinic-scheduling/internal/db"
	"github.com/practiceops/clinic-scheduling/internal/flow"
	"github.com/practiceops/clinic-scheduling/internal/notify"
	redisclient "github.com/practiceops/clinic-scheduling/internal/redis"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
	"github.com/practiceops/clinic-scheduling/internal/waitlist"
)

// The flow worker runs the periodic sweeps that keep the system honest:
// confirmed appointments whose arrival window lapsed become no-shows,
// expired waitlist offers cascade to the next candidate, and visits
// waiting past the SLA get flagged.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "flow-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", "flow-worker").Logger()
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer rdb.Close()

	clk := clock.Real()
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	notifier := notify.NewLogNotifier(logger)

	scheduleRepo := schedule.NewPgRepository(pgPool)
	scheduleSvc := schedule.NewService(scheduleRepo, locker, clk, schedule.ServiceConfig{
		ArrivalEarly:      cfg.ArrivalEarly,
		ArrivalLate:       cfg.ArrivalLate,
		RecurrenceHorizon: cfg.RecurrenceHorizon,
	}, logger)
	scheduleSvc.SetNotifier(notifier)

	waitlistRepo := waitlist.NewPgRepository(pgPool)
	waitlistSvc := waitlist.NewService(waitlistRepo, scheduleSvc, clk, cfg.OfferTTL, logger)
	waitlistSvc.SetNotifier(notifier)
	scheduleSvc.SetOpeningListener(waitlistSvc)

	flowRepo := flow.NewPgRepository(pgPool)
	flowSvc := flow.NewService(flowRepo, clk, cfg.WaitingSLA, logger)
	scheduleSvc.SetVisitSpawner(flowSvc)

	logger.Info().Dur("interval", cfg.WorkerInterval).Msg("flow-worker starting")

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	runSweeps(rootCtx, logger, scheduleSvc, waitlistSvc, flowSvc)
	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("flow-worker stopping")
			return
		case <-ticker.C:
			runSweeps(rootCtx, logger, scheduleSvc, waitlistSvc, flowSvc)
		}
	}
}

func runSweeps(ctx context.Context, logger zerolog.Logger, sched *schedule.Service, wl *waitlist.Service, fl *flow.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := sched.SweepNoShows(runCtx); err != nil {
		logger.Error().Err(err).Msg("no-show sweep failed")
	}
	if err := wl.SweepExpiredOffers(runCtx); err != nil {
		logger.Error().Err(err).Msg("offer expiry sweep failed")
	}
	if err := fl.SweepSLA(runCtx); err != nil {
		logger.Error().Err(err).Msg("waiting SLA sweep failed")
	}
}
