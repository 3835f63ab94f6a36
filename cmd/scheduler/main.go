package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pinpoint/internal/attendance"
	"pinpoint/internal/config"
	"pinpoint/internal/report"
	"pinpoint/internal/schedule"
	"pinpoint/internal/store"
)

const lockKey = "pinpoint:sweep:lock"

// Scheduler opens and closes time-based classes. Without SWEEP_INTERVAL it
// runs one sweep and exits, for cron; with it, it sweeps on a ticker.
func main() {
	cfg := config.Load()
	report.Init(cfg.RollbarToken, cfg.Env, cfg.Version)

	code := run(cfg)
	report.Close()
	os.Exit(code)
}

func run(cfg config.App) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loc, err := cfg.Location()
	if err != nil {
		log.Print(err)
		return 1
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("db connect failed: %v", err)
		return 1
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	rules := schedule.DefaultRules(loc)
	rules.OpenLead = cfg.OpenLead
	rules.CloseGrace = cfg.CloseGrace
	sw := schedule.NewSweeper(attendance.NewRepository(db.Client), rules)

	if cfg.SweepEvery <= 0 {
		if err := sweepOnce(ctx, sw, redisClient, cfg.SweepLockTTL); err != nil {
			report.Error("sweep aborted", err, nil)
			return 1
		}
		return 0
	}

	log.Printf("scheduler started, sweeping every %s", cfg.SweepEvery)
	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()
	for {
		if err := sweepOnce(ctx, sw, redisClient, cfg.SweepLockTTL); err != nil {
			report.Error("sweep aborted", err, nil)
		}
		select {
		case <-ctx.Done():
			log.Println("scheduler stopped")
			return 0
		case <-ticker.C:
		}
	}
}

// sweepOnce runs a sweep under a Redis lock so overlapping schedulers do not
// duplicate work. Without Redis it sweeps anyway; transitions are conditional.
func sweepOnce(ctx context.Context, sw *schedule.Sweeper, r *store.Redis, ttl time.Duration) error {
	unlock, err := r.Lock(ctx, lockKey, ttl)
	switch {
	case errors.Is(err, store.ErrLocked):
		log.Println("sweep: another scheduler holds the lock, skipping")
		return nil
	case err != nil:
		log.Printf("warning: sweep lock unavailable: %v", err)
	default:
		defer func() {
			if err := unlock(context.Background()); err != nil {
				log.Printf("warning: sweep unlock: %v", err)
			}
		}()
	}

	sum, err := sw.Sweep(ctx, time.Now())
	if err != nil {
		return err
	}
	log.Printf("sweep: %s", sum)
	return nil
}
