package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pinpoint/internal/attendance"
	"pinpoint/internal/config"
	"pinpoint/internal/httpapi"
	"pinpoint/internal/httpmiddleware"
	"pinpoint/internal/notify"
	"pinpoint/internal/queue"
	"pinpoint/internal/report"
	"pinpoint/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	report.Init(cfg.RollbarToken, cfg.Env, cfg.Version)
	defer report.Close()

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	checks := map[string]httpapi.HealthCheck{}
	var st attendance.Store
	if cfg.StoreBackend == "memory" {
		log.Println("warning: using in-memory store; data is lost on restart")
		st = attendance.NewMemoryStore()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: db not reachable: %v", err)
		}
		if db == nil {
			return err
		}
		defer db.Close()
		checks["db"] = db.Healthy
		st = attendance.NewRepository(db.Client)
	}

	var (
		q       queue.Queue
		limiter httpmiddleware.Limiter
	)
	if cfg.QueueBackend == "memory" {
		// no worker reads an in-process queue from another binary, so drain it here
		mem := queue.NewInMemory(64)
		q = mem
		go drainInProcess(ctx, mem, st, loc)
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	svc := attendance.NewService(st, notify.NewPublisher(q), loc)
	r := httpapi.New(httpapi.Options{
		Service:    svc,
		Limiter:    limiter,
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		Checks:     checks,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (campus time %s)", cfg.HTTPPort, loc)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func drainInProcess(ctx context.Context, q *queue.InMemory, contacts notify.ContactSource, loc *time.Location) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Printf("in-process notifications disabled: %v", err)
		return
	}
	notify.NewWorker(contacts, &notify.LogSender{}, loc).Run(ctx, msgs)
}
