package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, []string{"localhost:19092"}, cfg.KafkaBrokers)
	assert.Equal(t, "chat-messages", cfg.KafkaTopic)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"localhost:9042"}, cfg.ScyllaHosts)
	assert.Equal(t, "chat", cfg.Keyspace)
	assert.Equal(t, int64(1), cfg.SnowflakeNode)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SNOWFLAKE_NODE", "7")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(7), cfg.SnowflakeNode)
}

func TestLoadBadIntFallsBack(t *testing.T) {
	t.Setenv("SNOWFLAKE_NODE", "not-a-number")

	cfg := Load()
	assert.Equal(t, int64(1), cfg.SnowflakeNode)
}
