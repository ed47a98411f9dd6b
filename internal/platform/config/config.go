package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Built from environment
// variables so main stays lean.
type Config struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	Redis RedisConfig
	Kafka KafkaConfig
	SMTP  SMTPConfig
	Run   RunConfig
}

// RedisConfig controls the optional redis client used for run leasing.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig controls the audit outbox relay. Empty brokers disable it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// SMTPConfig controls the email notifier. Empty host falls back to
// log-only notifications.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// RunConfig controls the batch runner.
type RunConfig struct {
	// Interval between scheduled runs; zero disables the internal ticker
	// (external cron invokes POST /inheritance/run instead).
	Interval time.Duration
	// UserTimeout bounds one user's processing so a stalled call cannot
	// block enumeration of the rest.
	UserTimeout time.Duration
	// LockTTL bounds the redis run lease.
	LockTTL time.Duration
	// DefaultInactivityDays applies when a user has no threshold configured.
	DefaultInactivityDays int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("HEIRLOOM_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "heirloom.audit"),
		},
		SMTP: SMTPConfig{
			Host: os.Getenv("SMTP_HOST"),
			Port: envInt("SMTP_PORT", 587),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: envOr("SMTP_FROM", "no-reply@heirloom.local"),
		},
		Run: RunConfig{
			Interval:              envDuration("RUN_INTERVAL", 0),
			UserTimeout:           envDuration("RUN_USER_TIMEOUT", 30*time.Second),
			LockTTL:               envDuration("RUN_LOCK_TTL", 10*time.Minute),
			DefaultInactivityDays: envInt("DEFAULT_INACTIVITY_DAYS", 30),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitAndTrim(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
