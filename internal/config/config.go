package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	MigrateOnStart        bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RateCacheTTLSeconds   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	LogEncoding           string
	KafkaBrokers          []string
	KafkaTopic            string
	PublishTimeoutSeconds int
	StockPolicy           string
	MissingRatePolicy     string
	SequenceResetYearly   bool
	StoreTimezone         string
	BootstrapAdminUser    string
	BootstrapAdminPass    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		MigrateOnStart:        getEnvBool("MIGRATE_ON_START", true),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		RateCacheTTLSeconds:   getEnvPositiveInt("RATE_CACHE_TTL_SECONDS", 60),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getEnvPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogEncoding:           getEnv("LOG_ENCODING", "json"),
		KafkaBrokers:          getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "pos.orders"),
		PublishTimeoutSeconds: getEnvPositiveInt("PUBLISH_TIMEOUT_SECONDS", 5),
		StockPolicy:           getEnv("STOCK_POLICY", "allow_negative"),
		MissingRatePolicy:     getEnv("MISSING_RATE_POLICY", "error"),
		SequenceResetYearly:   getEnvBool("SEQUENCE_RESET_YEARLY", false),
		StoreTimezone:         getEnv("STORE_TIMEZONE", "Asia/Kolkata"),
		BootstrapAdminUser:    getEnv("BOOTSTRAP_ADMIN_USER", "admin"),
		BootstrapAdminPass:    os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}

func getEnvPositiveInt(key string, fallback int) int {
	val := getEnvInt(key, fallback)
	if val < 1 {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}

func getEnvSlice(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
