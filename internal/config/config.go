package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Persistencia. Con "mongo" el binario arranca en modo relay: solo el
	// publisher y la consulta de dead-letter, sin el contexto de pedidos
	// (la escritura del outbox corre a cargo de otros servicios).
	StoreDriver string // "sqlite" (local), "postgres" o "mongo"
	SQLitePath  string
	PostgresDSN string
	MongoURI    string
	MongoDB     string

	// Cache
	RedisAddr string
	CacheTTL  time.Duration

	// Broker / analítica (handlers opcionales del bus)
	UseKafka           bool
	KafkaBrokers       []string
	KafkaTopicOrder    string
	KafkaTopicPayments string
	KafkaGroupID       string
	UseClickHouse      bool
	ClickHouseAddr     string
	ClickHouseDB       string

	// Outbox publisher
	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
	OutboxMaxAttempts     int
	OutboxStaleTimeout    time.Duration
	OutboxDispatchTimeout time.Duration
	OutboxRetryBase       time.Duration
	OutboxRetryMax        time.Duration

	HTTPPort string
}

func LoadConfig() *Config {
	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	getInt := func(key string, fallback int) int {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return fallback
	}

	getDuration := func(key string, fallback time.Duration) time.Duration {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
		return fallback
	}

	getBool := func(key string, fallback bool) bool {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
		return fallback
	}

	return &Config{
		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		SQLitePath:  getEnv("SQLITE_PATH", "./shoplab.db"),
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/shoplab"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "shoplab"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		CacheTTL:  getDuration("CACHE_TTL", 5*time.Minute),

		UseKafka:           getBool("USE_KAFKA", false),
		KafkaBrokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopicOrder:    getEnv("KAFKA_TOPIC_ORDER", "order-events"),
		KafkaTopicPayments: getEnv("KAFKA_TOPIC_PAYMENTS", "payment-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "shoplab"),
		UseClickHouse:      getBool("USE_CLICKHOUSE", false),
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:       getEnv("CLICKHOUSE_DB", "shoplab"),

		OutboxPollInterval:    getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:       getInt("OUTBOX_BATCH_SIZE", 20),
		OutboxMaxAttempts:     getInt("OUTBOX_MAX_ATTEMPTS", 5),
		OutboxStaleTimeout:    getDuration("OUTBOX_STALE_TIMEOUT", 5*time.Minute),
		OutboxDispatchTimeout: getDuration("OUTBOX_DISPATCH_TIMEOUT", 5*time.Second),
		OutboxRetryBase:       getDuration("OUTBOX_RETRY_BASE", 2*time.Second),
		OutboxRetryMax:        getDuration("OUTBOX_RETRY_MAX", 5*time.Minute),

		HTTPPort: getEnv("HTTP_PORT", "8080"),
	}
}
