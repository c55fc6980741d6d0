package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"schoolgate/internal/config"
	"schoolgate/internal/notify"
	"schoolgate/internal/queue"
	"schoolgate/internal/store"
)

// Worker consumes queued guardian notifications and delivers them by email.
// Delivery is best effort: failures are logged and the message is dropped,
// never retried into the scan path.
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

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "schoolgate:notifications")
	}

	var dispatcher notify.Dispatcher
	if cfg.SendgridAPIKey != "" {
		dispatcher = notify.NewSendgridDispatcher(cfg.SendgridAPIKey, cfg.FromEmail, cfg.SchoolName)
		log.Println("sendgrid dispatcher configured")
	} else {
		dispatcher = notify.LogDispatcher{}
		log.Println("SENDGRID_API_KEY not set, notifications go to the log")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "notify" {
			continue
		}
		var n notify.Notification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			log.Printf("drop undecodable message: %v", err)
			continue
		}
		if err := dispatcher.Send(ctx, n); err != nil {
			log.Printf("notification delivery failed for %s: %v", n.SubjectName, err)
			continue
		}
		log.Printf("notified %d guardian(s) of %s %s", len(n.Recipients), n.SubjectName, n.EventType)
	}

	log.Println("worker stopped")
}
