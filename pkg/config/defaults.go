// Package config provides centralized default values for SiteBeacon
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Println("Loading configuration overrides from .env file...")
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if valStr := os.Getenv(key); valStr != "" {
		parts := strings.Split(valStr, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Ingestion
	EventDeliveryMode    string // "direct" or "queued"
	BlockedQueryParams   []string
	CurrentVisitorWindow time.Duration
	RIDSaltTTL           time.Duration

	// Dispatcher
	DispatchChunkSize  int
	DispatchRetryDelay time.Duration

	// Ad-hoc query guard
	SQLQueryMaxRows     int
	SQLQueryDefaultRows int

	// Kafka delivery channel (queued mode)
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaGroupID     string
	KafkaBatchSize   int
	KafkaBatchLinger time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond)

	// Ingestion
	EventDeliveryMode = getEnvString("EVENT_DELIVERY_MODE", "direct")
	BlockedQueryParams = getEnvStringSlice("BLOCKED_QUERY_PARAMS",
		[]string{"token", "secret", "password", "passwd", "auth", "key", "email", "session"})
	CurrentVisitorWindow = getEnvDuration("CURRENT_VISITOR_WINDOW", 300*time.Second)
	RIDSaltTTL = time.Duration(getEnvInt("RID_SALT_TTL_DAYS", 30)) * 24 * time.Hour

	// Dispatcher
	DispatchChunkSize = getEnvInt("DISPATCH_CHUNK_SIZE", 200)
	DispatchRetryDelay = time.Duration(getEnvInt("DISPATCH_RETRY_DELAY_SECONDS", 5)) * time.Second

	// Ad-hoc query guard
	SQLQueryMaxRows = getEnvInt("SQL_QUERY_MAX_ROWS", 500)
	SQLQueryDefaultRows = getEnvInt("SQL_QUERY_DEFAULT_ROWS", 100)

	// Kafka delivery channel
	KafkaBrokers = getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"})
	KafkaTopic = getEnvString("KAFKA_TOPIC", "site-events")
	KafkaGroupID = getEnvString("KAFKA_GROUP_ID", "sitebeacon-dispatch")
	KafkaBatchSize = getEnvInt("KAFKA_BATCH_SIZE", 100)
	KafkaBatchLinger = getEnvDuration("KAFKA_BATCH_LINGER", 250*time.Millisecond)
}
