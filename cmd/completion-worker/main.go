package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/campushours/booking-engine/internal/booking"
	"github.com/campushours/booking-engine/internal/config"
	"github.com/campushours/booking-engine/internal/db"
	"github.com/campushours/booking-engine/internal/logging"
	"github.com/campushours/booking-engine/internal/notify"
	redisclient "github.com/campushours/booking-engine/internal/redis"
	"github.com/campushours/booking-engine/internal/roster"
)

// The completion worker periodically moves accepted appointments whose slot
// has ended to completed, and reports requested appointments that have gone
// stale inside their provider's advance-notice window. Stale requests are
// surfaced only; declining them stays a provider decision.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("completion-worker starting up",
		zap.String("env", cfg.Env), zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.Connect(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()
	log.Info("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL, cfg.LockRetries, cfg.LockRetryDelay)
	svc := booking.NewService(repo, locker, roster.NewStaticChecker(), notify.NewLogDispatcher(log), log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	completed, err := svc.CompleteElapsed(runCtx)
	if err != nil {
		log.Error("completion run error", zap.Error(err))
		return
	}

	stale, err := svc.StaleRequested(runCtx)
	if err != nil {
		log.Error("stale query error", zap.Error(err))
		return
	}
	for _, appt := range stale {
		log.Info("requested appointment is stale",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("provider_id", appt.ProviderID.String()),
			zap.Time("slot_start", appt.SlotStart))
	}

	log.Info("completion run complete",
		zap.Int("completed", completed),
		zap.Int("stale_requested", len(stale)),
		zap.Duration("duration", time.Since(start)))
}
