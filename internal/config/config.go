package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DSN           string
	HTTPPort      string
	MigrationsDir string

	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string

	RedisAddr string

	UploadDir     string
	MaxUploadSize int64
	SignSecret    string

	UnitRate     float64
	ExpenseRatio float64

	// AuthTokens is a comma-separated list of token:userID:email:role entries
	// used by the static identity provider.
	AuthTokens string
}

func LoadConfig() *Config {
	brokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	return &Config{
		DSN:           getEnv("APP_DSN", "host=localhost user=postgres password=postgres dbname=printshop sslmode=disable"),
		HTTPPort:      getEnv("APP_PORT", "9000"),
		MigrationsDir: getEnv("APP_MIGRATIONS", "migrations"),
		KafkaBrokers:  strings.Split(brokersStr, ","),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "printshop-feed"),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "order-changes"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		UploadDir:     getEnv("APP_UPLOAD_DIR", "uploads"),
		MaxUploadSize: getEnvInt64("APP_MAX_UPLOAD", 10*1024*1024),
		SignSecret:    getEnv("APP_SIGN_SECRET", "dev-only-secret"),
		UnitRate:      getEnvFloat("APP_UNIT_RATE", 2),
		ExpenseRatio:  getEnvFloat("APP_EXPENSE_RATIO", 0.5),
		AuthTokens:    getEnv("APP_AUTH_TOKENS", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}
