// Package config collects pipeline settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// StoreConfig configures the transient asset store.
type StoreConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PresignExpiry time.Duration
}

// ContentConfig configures the content-generation client.
type ContentConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// ServicesConfig configures the image-generation and document-editing APIs,
// which share one credential pair and token endpoint.
type ServicesConfig struct {
	ClientID        string
	ClientSecret    string
	TokenURL        string
	ImageAPIBase    string
	EditAPIBase     string
	SmartObjectName string
}

// RetryConfig bounds retries of transient remote failures.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Settings holds everything the pipeline needs to run.
type Settings struct {
	Env       string
	InputDir  string
	OutputDir string

	Store    StoreConfig
	Content  ContentConfig
	Services ServicesConfig
	Retry    RetryConfig

	// MaxConcurrentProducts bounds the per-campaign product fan-out.
	MaxConcurrentProducts int

	// Worker mode
	HTTPAddr    string
	DatabaseURL string
	QueueName   string
	Concurrency int
}

// Load reads settings from the environment, loading .env first if present.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		Env:       getenv("APP_ENV", "production"),
		InputDir:  getenv("INPUT_DIRECTORY", "./input"),
		OutputDir: getenv("OUTPUT_DIRECTORY", "./output"),
		Store: StoreConfig{
			Endpoint:      os.Getenv("ASSET_STORE_ENDPOINT"),
			AccessKey:     os.Getenv("ASSET_STORE_ACCESS_KEY"),
			SecretKey:     os.Getenv("ASSET_STORE_SECRET_KEY"),
			Bucket:        getenv("ASSET_STORE_BUCKET", "ad-pipeline-assets"),
			UseSSL:        getenvBool("ASSET_STORE_USE_SSL", true),
			PresignExpiry: getenvDuration("ASSET_STORE_PRESIGN_EXPIRY", 15*time.Minute),
		},
		Content: ContentConfig{
			APIKey:      os.Getenv("LLM_API_KEY"),
			Model:       getenv("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:     getenv("LLM_BASE_URL", "https://api.openai.com/v1"),
			MaxTokens:   getenvInt("LLM_MAX_TOKENS", 1000),
			Temperature: getenvFloat("LLM_TEMPERATURE", 0.7),
		},
		Services: ServicesConfig{
			ClientID:        os.Getenv("FFS_CLIENT_ID"),
			ClientSecret:    os.Getenv("FFS_SECRET"),
			TokenURL:        getenv("FFS_TOKEN_URL", "https://ims-na1.adobelogin.com/ims/token/v3"),
			ImageAPIBase:    getenv("IMAGE_API_BASE", "https://firefly-api.adobe.io/v2"),
			EditAPIBase:     getenv("EDIT_API_BASE", "https://image.adobe.io/pie/psdService"),
			SmartObjectName: getenv("TEMPLATE_SMART_OBJECT", "product_photo"),
		},
		Retry: RetryConfig{
			MaxAttempts:    getenvInt("RETRY_MAX_ATTEMPTS", 4),
			InitialBackoff: getenvDuration("RETRY_INITIAL_BACKOFF", 1*time.Second),
			MaxBackoff:     getenvDuration("RETRY_MAX_BACKOFF", 8*time.Second),
		},
		MaxConcurrentProducts: getenvInt("MAX_CONCURRENT_PRODUCTS", 4),
		HTTPAddr:              getenv("WORKER_HTTP_ADDR", ":8081"),
		DatabaseURL:           os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
		QueueName:             getenv("DBOS_QUEUE_NAME", "default"),
		Concurrency:           getenvInt("DBOS_QUEUE_CONCURRENCY", 4),
	}

	if s.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if s.MaxConcurrentProducts < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_PRODUCTS must be at least 1")
	}

	return s, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
