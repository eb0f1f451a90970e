package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. Every section is
// read from YAML first; environment variables named in env tags win.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Geocoder    GeocoderConfig    `yaml:"geocoder"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Places      PlacesConfig      `yaml:"places"`
	Images      ImagesConfig      `yaml:"images"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port" env:"PORT"`
	Host        string   `yaml:"host" env:"SERVER_HOST"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// GetHost returns the listen host. Containers listen on all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// LogConfig controls internal/pkg/logger.
type LogConfig struct {
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	RedactPII bool   `yaml:"redact_pii" env:"LOG_REDACT_PII"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// DatabaseConfig selects and configures the entity store.
type DatabaseConfig struct {
	Driver        string `yaml:"driver" env:"DATABASE_DRIVER"`
	URL           string `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	MongoURI      string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
}

// GeocoderConfig holds address lookup settings.
type GeocoderConfig struct {
	Provider       string  `yaml:"provider" env:"GEOCODER_PROVIDER"` // "locationiq" or "static"
	BaseURL        string  `yaml:"base_url" env:"LOCATIONIQ_BASE_URL"`
	APIKey         string  `yaml:"api_key" env:"LOCATIONIQ_API_KEY"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	// MaxRetries is zero by default so one Resolve is one upstream request.
	MaxRetries     int     `yaml:"max_retries"`
	StaticLat      float64 `yaml:"static_lat"`
	StaticLng      float64 `yaml:"static_lng"`
}

// Timeout returns the configured timeout as a duration
func (c GeocoderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CoordinatorConfig bounds each step of the create/update/delete protocols.
type CoordinatorConfig struct {
	GeocodeTimeoutSeconds int `yaml:"geocode_timeout_seconds"`
	StoreTimeoutSeconds   int `yaml:"store_timeout_seconds"`
}

func (c CoordinatorConfig) GeocodeTimeout() time.Duration {
	return time.Duration(c.GeocodeTimeoutSeconds) * time.Second
}

func (c CoordinatorConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// PlacesConfig holds facade behaviour switches.
type PlacesConfig struct {
	// EmptyListOK makes listByOwner return [] instead of NoPlacesFound.
	EmptyListOK bool `yaml:"empty_list_ok" env:"PLACES_EMPTY_LIST_OK"`
}

// Image backends.
const (
	ImagesLocal = "local"
	ImagesS3    = "s3"
)

// ImagesConfig holds uploaded image storage settings.
type ImagesConfig struct {
	Backend  string `yaml:"backend" env:"IMAGES_BACKEND"`
	Dir      string `yaml:"dir" env:"IMAGES_DIR"`
	S3Bucket string `yaml:"s3_bucket" env:"IMAGES_S3_BUCKET"`
	S3Region string `yaml:"s3_region" env:"AWS_REGION"`
	S3Prefix string `yaml:"s3_prefix"`
	MaxBytes int64  `yaml:"max_bytes"`
	// MaxWidth caps stored image width; wider uploads are scaled down.
	MaxWidth int `yaml:"max_width"`
}

// RedisConfig holds the Redis connection used by the release queue and lock.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

// Enabled reports whether a Redis URL is configured.
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// TokenTTL returns the lifetime of issued tokens.
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// WorkerConfig holds image janitor settings.
type WorkerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchSize       int `yaml:"batch_size"`
	LockTTLSeconds  int `yaml:"lock_ttl_seconds"`
}

// Interval returns the janitor tick as a duration
func (c WorkerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LockTTL returns the janitor lock lifetime.
func (c WorkerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MongoDatabase == "" {
		cfg.Database.MongoDatabase = "placebook"
	}
	if cfg.Geocoder.Provider == "" {
		cfg.Geocoder.Provider = "locationiq"
	}
	if cfg.Geocoder.BaseURL == "" {
		cfg.Geocoder.BaseURL = "https://us1.locationiq.com"
	}
	if cfg.Geocoder.TimeoutSeconds == 0 {
		cfg.Geocoder.TimeoutSeconds = 10
	}
	if cfg.Coordinator.GeocodeTimeoutSeconds == 0 {
		cfg.Coordinator.GeocodeTimeoutSeconds = 10
	}
	if cfg.Coordinator.StoreTimeoutSeconds == 0 {
		cfg.Coordinator.StoreTimeoutSeconds = 5
	}
	if cfg.Images.Backend == "" {
		cfg.Images.Backend = ImagesLocal
	}
	if cfg.Images.Dir == "" {
		cfg.Images.Dir = "uploads/images"
	}
	if cfg.Images.S3Prefix == "" {
		cfg.Images.S3Prefix = "places/"
	}
	if cfg.Images.MaxBytes == 0 {
		cfg.Images.MaxBytes = 5 << 20
	}
	if cfg.Images.MaxWidth == 0 {
		cfg.Images.MaxWidth = 1200
	}
	if cfg.Auth.TokenTTLHours == 0 {
		cfg.Auth.TokenTTLHours = 1
	}
	if cfg.Worker.IntervalSeconds == 0 {
		cfg.Worker.IntervalSeconds = 60
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Worker.LockTTLSeconds == 0 {
		cfg.Worker.LockTTLSeconds = 120
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in a deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the binaries cannot start with.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return fmt.Errorf("config: database.url is required for the postgres driver")
		}
	case DriverMongo:
		if cfg.Database.MongoURI == "" {
			return fmt.Errorf("config: database.mongo_uri is required for the mongo driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown database driver %q", cfg.Database.Driver)
	}

	switch cfg.Images.Backend {
	case ImagesLocal:
	case ImagesS3:
		if cfg.Images.S3Bucket == "" {
			return fmt.Errorf("config: images.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown images backend %q", cfg.Images.Backend)
	}

	switch cfg.Geocoder.Provider {
	case "locationiq":
		if cfg.Geocoder.APIKey == "" {
			return fmt.Errorf("config: geocoder.api_key is required for locationiq")
		}
	case "static":
	default:
		return fmt.Errorf("config: unknown geocoder provider %q", cfg.Geocoder.Provider)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret is required")
	}
	// The janitor renews its lock between jobs, each bounded at 10s.
	if cfg.Worker.LockTTLSeconds < minLockTTLSeconds {
		return fmt.Errorf("config: worker.lock_ttl_seconds must be at least %d", minLockTTLSeconds)
	}
	return nil
}

const minLockTTLSeconds = 30
