package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the service configuration, loaded from environment variables
// with an optional .env file.
type Config struct {
	LogLevel string

	Database struct {
		DSN             string
		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime int // seconds
	}

	Kafka struct {
		Brokers           []string
		GroupID           string
		MatchTopic        string
		ConfirmationTopic string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		ListenAddr string
	}
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	// A missing .env file is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 3600)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_ID", "settlement")
	v.SetDefault("KAFKA_MATCH_TOPIC", "trades.matched")
	v.SetDefault("KAFKA_CONFIRMATION_TOPIC", "trades.settled")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("HTTP_LISTEN_ADDR", ":8080")

	cfg := &Config{}
	cfg.LogLevel = v.GetString("LOG_LEVEL")
	cfg.Database.DSN = v.GetString("DB_DSN")
	cfg.Database.MaxOpenConns = v.GetInt("DB_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DB_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetInt("DB_CONN_MAX_LIFETIME")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.GroupID = v.GetString("KAFKA_GROUP_ID")
	cfg.Kafka.MatchTopic = v.GetString("KAFKA_MATCH_TOPIC")
	cfg.Kafka.ConfirmationTopic = v.GetString("KAFKA_CONFIRMATION_TOPIC")
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.HTTP.ListenAddr = v.GetString("HTTP_LISTEN_ADDR")

	return cfg, nil
}

// splitList parses a comma-separated list, dropping empty entries.
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
