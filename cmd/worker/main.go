package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elmojondesatan/backend-asist/internal/config"
	"github.com/elmojondesatan/backend-asist/internal/notify"
	"github.com/elmojondesatan/backend-asist/internal/queue"
	"github.com/elmojondesatan/backend-asist/internal/store"
)

// Worker consumes recovery notices from the queue and delivers them through
// the configured channel (console, SMTP or webhook).
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "asistencia:avisos")
	}

	notifier := notifierFromConfig(cfg)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for recovery notices...")
	for msg := range messages {
		if msg.Type != "recovery" {
			continue
		}

		var notice notify.Notice
		if err := json.Unmarshal(msg.Body, &notice); err != nil {
			log.Printf("bad notice payload: %v", err)
			continue
		}

		deliverCtx, done := context.WithTimeout(ctx, 15*time.Second)
		if err := notifier.Deliver(deliverCtx, notice); err != nil {
			log.Printf("delivery to %s failed: %v", notice.Correo, err)
			// The password was already rotated; a lost delivery means the
			// user retries /recover. Log to console as the fallback.
			_ = notify.Console{}.Deliver(deliverCtx, notice)
		} else {
			log.Printf("recovery notice delivered to %s", notice.Correo)
		}
		done()
	}

	log.Println("worker stopped")
}

func notifierFromConfig(cfg config.App) notify.Notifier {
	switch cfg.NotifyChannel {
	case "smtp":
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			log.Println("smtp not configured, falling back to console delivery")
			return notify.Console{}
		}
		return notify.SMTP{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
	case "webhook":
		if cfg.WebhookURL == "" {
			log.Println("webhook url not configured, falling back to console delivery")
			return notify.Console{}
		}
		return notify.NewWebhook(cfg.WebhookURL)
	default:
		return notify.Console{}
	}
}
