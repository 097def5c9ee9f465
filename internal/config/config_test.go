package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Database.MaxOpenConns)
	assert.Equal(t, "trades.matched", cfg.Kafka.MatchTopic)
	assert.Equal(t, "trades.settled", cfg.Kafka.ConfirmationTopic)
	assert.Equal(t, "settlement", cfg.Kafka.GroupID)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_DSN", "host=db user=settled dbname=ledger")
	t.Setenv("HTTP_LISTEN_ADDR", ":9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "host=db user=settled dbname=ledger", cfg.Database.DSN)
	assert.Equal(t, ":9999", cfg.HTTP.ListenAddr)
}

func TestLoadConfigMultipleBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092,broker-3:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092", "broker-3:9092"}, cfg.Kafka.Brokers)
}
