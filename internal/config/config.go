package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	PostgresDSN string

	// The original deployment ran three Redis instances: one for refresh
	// sessions, one for mail verification codes, one for login tracking.
	RedisSessionsAddr string
	RedisMailAddr     string
	RedisLoginsAddr   string
	RedisPassword     string

	KafkaBrokers []string

	JWTSecret       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	VerificationTTL time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		PostgresDSN:       getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=stellaide sslmode=disable"),
		RedisSessionsAddr: getEnv("REDIS_SESSIONS_ADDR", "localhost:6379"),
		RedisMailAddr:     getEnv("REDIS_MAIL_ADDR", "localhost:6380"),
		RedisLoginsAddr:   getEnv("REDIS_LOGINS_ADDR", "localhost:6381"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:      []string{getEnv("KAFKA_BROKER", "localhost:9092")},
		JWTSecret:         getEnv("JWT_SECRET", "supersecret"),
		AccessTTL:         getDuration("ACCESS_TTL", 30*time.Minute),
		RefreshTTL:        getDuration("REFRESH_TTL", 7*24*time.Hour),
		VerificationTTL:   getDuration("VERIFICATION_TTL", 5*time.Minute),
	}

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"redis_sessions_addr", cfg.RedisSessionsAddr,
		"redis_mail_addr", cfg.RedisMailAddr,
		"redis_logins_addr", cfg.RedisLoginsAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"access_ttl", cfg.AccessTTL,
		"refresh_ttl", cfg.RefreshTTL)
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in env, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}
