package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pinpoint/internal/attendance"
	"pinpoint/internal/config"
	"pinpoint/internal/notify"
	"pinpoint/internal/queue"
	"pinpoint/internal/report"
	"pinpoint/internal/store"
)

// Worker consumes admitted sign-ins and emails the student's guardians.
func main() {
	cfg := config.Load()
	report.Init(cfg.RollbarToken, cfg.Env, cfg.Version)
	defer report.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal(err)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the in-memory queue is drained by the api process")
	}
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	var sender notify.Sender
	switch cfg.MailBackend {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			log.Fatal("MAIL_BACKEND=sendgrid needs SENDGRID_API_KEY")
		}
		sender = notify.NewSendGrid(cfg.SendGridAPIKey, cfg.AppName, cfg.MailFrom)
		log.Println("mail: sendgrid")
	default:
		sender = &notify.LogSender{}
		log.Println("mail: log only")
	}

	repo := attendance.NewRepository(db.Client)
	w := notify.NewWorker(repo, sender, loc)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	w.Run(ctx, messages)
	log.Println("worker stopped")
}
