package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/imagestore"
	"github.com/placebook/placebook/internal/pkg/distlock"
	"github.com/placebook/placebook/internal/pkg/logger"
	"github.com/placebook/placebook/internal/repository"
	"github.com/placebook/placebook/internal/worker"
)

const janitorLockKey = "placebook:image-janitor"

func main() {
	log.Println("Starting Placebook image janitor...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.RedactPII)

	if !cfg.Redis.Enabled() {
		log.Fatal("REDIS_URL is required: the release queue lives in Redis")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to parse REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()
	if err := redisClient.Ping(startCtx).Err(); err != nil {
		log.Fatalf("Failed to ping Redis: %v", err)
	}
	log.Println("Connected to Redis")

	db, err := repository.Open(startCtx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Database.Driver, err)
	}
	log.Printf("Connected to %s store", cfg.Database.Driver)

	images, _, err := imagestore.Open(startCtx, cfg.Images)
	if err != nil {
		log.Fatalf("Failed to initialize image store: %v", err)
	}

	janitor := worker.NewImageJanitor(worker.NewReleaseQueue(redisClient, ""), images, db.Store, worker.JanitorOptions{
		Interval:  cfg.Worker.Interval(),
		BatchSize: cfg.Worker.BatchSize,
		Lock:      distlock.NewRedisLock(redisClient, janitorLockKey, cfg.Worker.LockTTL()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		janitor.Start(ctx)
		close(stopped)
	}()
	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	<-stopped

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := db.Close(closeCtx); err != nil {
		log.Printf("Store close error: %v", err)
	}
	log.Println("Worker stopped")
}
