// Package config loads process configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the full process configuration.
type Server struct {
	Addr     string
	LogLevel string

	// Test-configuration source. A URL wins over a file path; with neither,
	// the engine runs on an empty config set.
	ConfigURL     string
	ConfigPath    string
	ConfigTimeout time.Duration
	ConfigTTL     time.Duration

	// Sticky assignment storage. Empty Redis URL keeps assignments in memory.
	Redis         RedisConfig
	AssignmentTTL time.Duration

	// Durable results aggregation. Empty DSN keeps tallies in memory.
	PostgresDSN string

	// External analytics. No brokers disables Kafka publishing.
	KafkaBrokers []string
	KafkaTopic   string

	// EventBuffer bounds the async emission queue.
	EventBuffer int
}

// RedisConfig carries Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:     getEnv("SPLITLAB_ADDR", ":8080"),
		LogLevel: getEnv("SPLITLAB_LOG_LEVEL", "info"),

		ConfigURL:     os.Getenv("SPLITLAB_CONFIG_URL"),
		ConfigPath:    os.Getenv("SPLITLAB_CONFIG_PATH"),
		ConfigTimeout: getDuration("SPLITLAB_CONFIG_TIMEOUT", 2*time.Second),
		ConfigTTL:     getDuration("SPLITLAB_CONFIG_TTL", 30*time.Second),

		Redis: RedisConfig{
			URL:          os.Getenv("SPLITLAB_REDIS_URL"),
			PoolSize:     getInt("SPLITLAB_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("SPLITLAB_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("SPLITLAB_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("SPLITLAB_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("SPLITLAB_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		AssignmentTTL: getDuration("SPLITLAB_ASSIGNMENT_TTL", 0),

		PostgresDSN: os.Getenv("SPLITLAB_POSTGRES_DSN"),

		KafkaBrokers: splitList(os.Getenv("SPLITLAB_KAFKA_BROKERS")),
		KafkaTopic:   getEnv("SPLITLAB_KAFKA_TOPIC", "splitlab.events"),

		EventBuffer: getInt("SPLITLAB_EVENT_BUFFER", 1024),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
