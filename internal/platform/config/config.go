package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean.
type Server struct {
	Addr            string
	DatabaseURL     string
	Redis           RedisConfig
	Kafka           KafkaConfig
	AlertRulesPath  string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	SlackWebhookURL string
	AlertWebhookURL string
	ShutdownTimeout time.Duration
}

// RedisConfig holds connection settings for the alert store. An empty URL
// means Redis is not configured and alerts stay process-local.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the critical audit action stream. Empty
// brokers disable publishing.
type KafkaConfig struct {
	Brokers       []string
	CriticalTopic string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("ERASURE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	criticalTopic := os.Getenv("KAFKA_CRITICAL_TOPIC")
	if criticalTopic == "" {
		criticalTopic = "deletion.audit.critical"
	}

	return Server{
		Addr:        addr,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			CriticalTopic: criticalTopic,
		},
		AlertRulesPath:  os.Getenv("ALERT_RULES_PATH"),
		JWTSigningKey:   jwtSigningKey,
		JWTIssuer:       envDefault("JWT_ISSUER", "erasure"),
		JWTAudience:     envDefault("JWT_AUDIENCE", "erasure-admin"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func envDefault(key, fallback string) string {
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

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
