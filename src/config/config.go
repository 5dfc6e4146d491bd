package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// const dsn = "host=localhost user=postgres password=password dbname=ticketshop port=5432 sslmode=disable TimeZone=Europe/Zurich"

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

type Config struct {
	Env  string
	Port string

	DatabaseDriver string
	SQLitePath     string

	RedisHost string

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	AppHost             string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	JWTSecret string

	// Lifecycle engine
	MaxTicketsPerOrder int
	OrderStayAlive     time.Duration
	SweepInterval      time.Duration
	TransferTokenTTL   time.Duration
	RFIDLength         int
	PaymentTimeout     time.Duration
	PaymentCacheTTL    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Env:  getEnv("API_ENV", "local"),
		Port: getEnv("PORT", "8080"),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		SQLitePath:     getEnv("SQLITE_PATH", "ticketshop.db"),

		RedisHost: getEnv("REDIS_HOST", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		Currency:            getEnv("CURRENCY", "chf"),
		AppHost:             getEnv("APP_HOST", "http://localhost:3000"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "tickets@localhost"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		MaxTicketsPerOrder: getEnvAsInt("MAX_TICKETS_PER_ORDER", 10),
		OrderStayAlive:     getEnvAsDuration("ORDER_STAY_ALIVE", "30m"),
		SweepInterval:      getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", "60s"),
		TransferTokenTTL:   getEnvAsDuration("TRANSFER_TOKEN_TTL", "72h"),
		RFIDLength:         getEnvAsInt("RFID_LENGTH", 10),
		PaymentTimeout:     getEnvAsDuration("PAYMENT_TIMEOUT", "15s"),
		PaymentCacheTTL:    getEnvAsDuration("PAYMENT_CACHE_TTL", "2h"),
	}
}

func IsMaintenanceMode() bool {
	return getEnvAsBool("MAINTENANCE_MODE", false)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
