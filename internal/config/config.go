package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	DatabaseURL     string
	DBPoolSize      int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTIssuer       string
	JWTSecret       string
	TokenTTL        time.Duration
	BatchTimeout    time.Duration
	QueueBackend    string
	RateLimitPerMin int
	LoginRateLimit  int
	NotifyChannel   string
	SMTPHost        string
	SMTPPort        string
	SMTPUser        string
	SMTPPassword    string
	SMTPFrom        string
	WebhookURL      string
}

// Load returns application config populated from environment variables with
// sensible defaults. A .env file in the working directory is honored when present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", getEnv("PORT", "3000")),
		DatabaseURL:     databaseURL(),
		DBPoolSize:      intEnv("DB_POOL_SIZE", 5),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         intEnv("REDIS_DB", 0),
		JWTIssuer:       getEnv("JWT_ISSUER", "backend-asist"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-signing-secret-change"),
		TokenTTL:        durationEnv("TOKEN_TTL", 2*time.Hour),
		BatchTimeout:    durationEnv("BATCH_TIMEOUT", 10*time.Second),
		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		LoginRateLimit:  intEnv("LOGIN_RATE_LIMIT", 10),
		NotifyChannel:   getEnv("NOTIFY_CHANNEL", "console"),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnv("SMTP_PORT", "587"),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        getEnv("SMTP_FROM", ""),
		WebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles a postgres URL from
// the discrete DB_* variables.
func databaseURL() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "asistencia")
	pass := getEnv("DB_PASSWORD", "asistencia")
	name := getEnv("DB_NAME", "asistencia")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(user), url.QueryEscape(pass), host, port, name)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
