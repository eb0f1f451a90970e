package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/placebook/placebook/internal/api"
	"github.com/placebook/placebook/internal/auth"
	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/geocoder"
	"github.com/placebook/placebook/internal/imagestore"
	"github.com/placebook/placebook/internal/pkg/httpretry"
	"github.com/placebook/placebook/internal/pkg/logger"
	"github.com/placebook/placebook/internal/repository"
	"github.com/placebook/placebook/internal/service/place"
	"github.com/placebook/placebook/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v", addr, err)
	}
	ln.Close()
	return nil
}

func newRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func newGeocoder(cfg config.GeocoderConfig) geocoder.Resolver {
	if cfg.Provider == "static" {
		log.Printf("Geocoder: static (%.6f, %.6f)", cfg.StaticLat, cfg.StaticLng)
		return geocoder.NewStatic(cfg.StaticLat, cfg.StaticLng)
	}
	client := geocoder.NewClient(geocoder.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout(),
	})
	if cfg.MaxRetries > 0 {
		client.SetHTTPClient(httpretry.NewRetryClient(
			&http.Client{Timeout: cfg.Timeout()},
			httpretry.Options{MaxRetries: cfg.MaxRetries},
		))
	}
	log.Printf("Geocoder: LocationIQ at %s (retries=%d)", cfg.BaseURL, cfg.MaxRetries)
	return client
}

func main() {
	log.Println("Starting Placebook API server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.RedactPII)

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	db, err := repository.Open(startCtx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Database.Driver, err)
	}
	log.Printf("Connected to %s store", cfg.Database.Driver)

	images, s3Images, err := imagestore.Open(startCtx, cfg.Images)
	if err != nil {
		log.Fatalf("Failed to initialize image store: %v", err)
	}
	log.Printf("Image store: %s", cfg.Images.Backend)

	// Without Redis, image releases happen inline and failures are only logged.
	var (
		redisClient *redis.Client
		releaser    place.ImageReleaser = images
		queue       *worker.ReleaseQueue
	)
	if cfg.Redis.Enabled() {
		redisClient, err = newRedis(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to configure Redis: %v", err)
		}
		if err := redisClient.Ping(startCtx).Err(); err != nil {
			log.Printf("WARNING: Redis unreachable, image releases will not be deferred: %v", err)
			redisClient.Close()
			redisClient = nil
		} else {
			queue = worker.NewReleaseQueue(redisClient, "")
			releaser = worker.NewDeferredReleaser(images, queue, nil)
			log.Println("Deferred image release enabled")
		}
	}

	svc := place.NewService(db.Store, newGeocoder(cfg.Geocoder), place.Options{
		EmptyListOK:    cfg.Places.EmptyListOK,
		GeocodeTimeout: cfg.Coordinator.GeocodeTimeout(),
		StoreTimeout:   cfg.Coordinator.StoreTimeout(),
		Images:         releaser,
	})

	var objects api.Pinger
	if s3Images != nil {
		objects = s3Images
	}
	var depth api.QueueDepth
	if queue != nil {
		depth = queue
	}
	var imageDir string
	if cfg.Images.Backend == config.ImagesLocal {
		imageDir = cfg.Images.Dir
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Places:         svc,
		Images:         images,
		Tokens:         auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL()),
		Health:         api.NewHealthChecker(db.Store, redisClient, objects, depth),
		ImageDir:       imageDir,
		MaxUploadBytes: cfg.Images.MaxBytes,
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if err := db.Close(shutdownCtx); err != nil {
		log.Printf("Store close error: %v", err)
	}

	log.Println("Server stopped")
}
