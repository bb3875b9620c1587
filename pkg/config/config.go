// Package config resolves runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the gateway, worker, and api processes.
type Config struct {
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	ScyllaHosts  []string
	Keyspace     string

	GatewayAddr string
	APIAddr     string

	WorkerGroupID string
	SnowflakeNode int64
}

// Load reads a .env file if present, then the environment, falling back to
// local-development defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Failed to load .env file: %v", err)
		}
	}

	return Config{
		KafkaBrokers:  splitList(getEnv("KAFKA_BROKERS", "localhost:19092")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "chat-messages"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		ScyllaHosts:   splitList(getEnv("SCYLLA_HOSTS", "localhost:9042")),
		Keyspace:      getEnv("SCYLLA_KEYSPACE", "chat"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),
		APIAddr:       getEnv("API_ADDR", ":8081"),
		WorkerGroupID: getEnv("WORKER_GROUP_ID", "message-worker-group"),
		SnowflakeNode: getEnvInt64("SNOWFLAKE_NODE", 1),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
