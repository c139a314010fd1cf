package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string

	// RedisAddr enables idempotency keys for order placement when set.
	RedisAddr string

	LogLevel       string
	RequestTimeout time.Duration
	// CORSOrigins lists browser origins allowed to call the API; empty disables CORS.
	CORSOrigins    []string

	CompensationWorkers   int
	CompensationQueueSize int
	CompensationAttempts  int
	CompensationBackoff   time.Duration
	RecentOrderWindow     time.Duration
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory if one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:              getEnv("GRPC_ADDR", ":50051"),
		StoreDriver:           getEnv("STORE_DRIVER", StoreMongo),
		MongoURI:              getEnv("MONGO_URI", "mongodb://localhost:27017/?directConnection=true"),
		MongoDatabase:         getEnv("MONGO_DATABASE", "shop_db"),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RequestTimeout:        getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		CORSOrigins:           getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CompensationWorkers:   getEnvInt("COMPENSATION_WORKERS", 2),
		CompensationQueueSize: getEnvInt("COMPENSATION_QUEUE_SIZE", 1000),
		CompensationAttempts:  getEnvInt("COMPENSATION_ATTEMPTS", 5),
		CompensationBackoff:   getEnvDuration("COMPENSATION_BACKOFF", 200*time.Millisecond),
		RecentOrderWindow:     getEnvDuration("RECENT_ORDER_WINDOW", 7*24*time.Hour),
	}
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("mongo store needs MONGO_URI and MONGO_DATABASE")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.CompensationWorkers < 1 {
		return fmt.Errorf("compensation workers must be at least 1, got %d", c.CompensationWorkers)
	}
	if c.CompensationQueueSize < 0 {
		return fmt.Errorf("compensation queue size must not be negative, got %d", c.CompensationQueueSize)
	}
	if c.CompensationAttempts < 2 {
		return fmt.Errorf("compensation attempts must be at least 2, got %d", c.CompensationAttempts)
	}
	if c.CompensationBackoff < 0 {
		return fmt.Errorf("compensation backoff must not be negative, got %s", c.CompensationBackoff)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors origin %q must be * or start with http:// or https://", origin)
		}
	}
	if c.RecentOrderWindow < 24*time.Hour {
		return fmt.Errorf("recent order window must be at least one day, got %s", c.RecentOrderWindow)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
