package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	CRM      CRMConfig
	Loyalty  LoyaltyConfig
	Outbox   OutboxConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	URL           string
	RunMigrations bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicSales    string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	PrometheusPort string
}

// CRM sync modes.
const (
	SyncModeInline = "inline"
	SyncModeOutbox = "outbox"
)

type CRMConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	SyncMode     string
	MaxRetries   int
	RetryBase    time.Duration
	RetryMax     time.Duration
	RetryBatch   int
	RetryPolling time.Duration
}

type LoyaltyConfig struct {
	Provider string
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type AuthConfig struct {
	Secret string
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	maxRetries, _ := strconv.Atoi(getEnv("CRM_MAX_RETRIES", "5"))
	retryBatch, _ := strconv.Atoi(getEnv("CRM_RETRY_BATCH", "50"))
	outboxBatch, _ := strconv.Atoi(getEnv("OUTBOX_BATCH_SIZE", "100"))

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      getEnv("ENV", "development"),
			LogLevel: getEnv("LOG_LEVEL", ""),
		},
		Database: DatabaseConfig{
			URL:           getEnv("DATABASE_URL", ""),
			RunMigrations: getEnv("RUN_MIGRATIONS", "true") == "true",
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicSales:    getEnv("KAFKA_TOPIC_SALE_EVENTS", "pos-sale-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "crm-sync-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),
		},
		CRM: CRMConfig{
			BaseURL:      getEnv("CRM_BASE_URL", "http://localhost:9400"),
			APIKey:       getEnv("CRM_API_KEY", ""),
			Timeout:      getDuration("CRM_TIMEOUT", 5*time.Second),
			SyncMode:     normalizeSyncMode(getEnv("CRM_SYNC_MODE", SyncModeOutbox)),
			MaxRetries:   maxRetries,
			RetryBase:    getDuration("CRM_RETRY_BASE", 30*time.Second),
			RetryMax:     getDuration("CRM_RETRY_MAX", 30*time.Minute),
			RetryBatch:   retryBatch,
			RetryPolling: getDuration("CRM_RETRY_POLL_INTERVAL", 15*time.Second),
		},
		Loyalty: LoyaltyConfig{
			Provider: getEnv("LOYALTY_PROVIDER", "alpineiq"),
		},
		Outbox: OutboxConfig{
			PollInterval: getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    outboxBatch,
		},
		Auth: AuthConfig{
			Secret: getEnv("AUTH_SECRET", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, crm_sync_mode=%s", cfg.Server.Env, cfg.Server.Port, cfg.CRM.SyncMode)
	return cfg
}

func normalizeSyncMode(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), SyncModeInline) {
		return SyncModeInline
	}
	return SyncModeOutbox
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using %s", key, val, defaultVal)
		return defaultVal
	}
	return d
}
