package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	Port            string
	MongoURI        string
	DBName          string
	JWTSecret       string
	AdminJWTSecret  string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	LogLevel        string
	GinMode         string
	CORSOrigins     []string

	// FieldEncryptionKey is the hex encoded 32 byte key used for payment fields.
	FieldEncryptionKey string

	ShippingCost   float64
	DeliveryWindow time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv reads the configuration without touching .env files.
func FromEnv() Config {
	jwtSecret := getEnvOrDefault("JWT_SECRET", "")
	return Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		MongoURI:           getEnvOrDefault("MONGO_URI", ""),
		DBName:             getEnvOrDefault("DB_NAME", "storefront"),
		JWTSecret:          jwtSecret,
		AdminJWTSecret:     getEnvOrDefault("ADMIN_JWT_SECRET", jwtSecret),
		AccessTokenTTL:     getDurationEnv("ACCESS_TOKEN_TTL", 20, time.Minute),
		RefreshTokenTTL:    getDurationEnv("REFRESH_TOKEN_TTL", 7, 24*time.Hour),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		GinMode:            getEnvOrDefault("GIN_MODE", "release"),
		CORSOrigins:        getListEnv("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:5174"}),
		FieldEncryptionKey: getEnvOrDefault("FIELD_ENCRYPTION_KEY", ""),
		ShippingCost:       getFloatEnv("SHIPPING_COST", 50),
		DeliveryWindow:     getDurationEnv("DELIVERY_WINDOW_DAYS", 7, 24*time.Hour),
		SMTPHost:           getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:           getIntEnv("SMTP_PORT", 465),
		SMTPUsername:       getEnvOrDefault("SMTP_USERNAME", ""),
		SMTPPassword:       getEnvOrDefault("SMTP_PASSWORD", ""),
		SMTPFrom:           getEnvOrDefault("SMTP_FROM", ""),
	}
}

// Validate reports the first missing or malformed required setting.
func (c Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	key, err := hex.DecodeString(c.FieldEncryptionKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY must be 64 hex characters")
	}
	if c.ShippingCost < 0 {
		return fmt.Errorf("SHIPPING_COST must be zero or greater")
	}
	return nil
}

func (c Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	out := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
