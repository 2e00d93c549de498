package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string

	APIURL         string
	RequestTimeout time.Duration
	PollInterval   time.Duration
	MockStepDelay  time.Duration
	ForceMock      bool
	MaxUploadSize  int64

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
	PendingQueue    string
	ProcessingQueue string
	FailedQueue     string
	StatusKeyPrefix string
	HistoryKey      string
	HistoryLimit    int64

	WorkerCount       int
	ConversionTimeout int
	MaxRetries        int
	WorkDir           string

	S3Bucket       string
	S3Region       string
	AWSS3AccessKey string
	AWSS3SecretKey string
	S3Endpoint     string
	S3UsePathStyle bool

	DatabaseURL string

	KafkaBrokers []string
	KafkaTopic   string

	StatusAddr string
}

func Load() *Config {
	// Missing .env files are fine; the environment wins either way.
	_ = godotenv.Load(".env", ".env.local")

	redisPrefix := getEnv("REDIS_PREFIX", "")

	return &Config{
		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", ""),

		APIURL:         getEnvWithFallback("FILEALCHEMY_API_URL", "API_BASE_URL", "http://localhost:5000/api"),
		RequestTimeout: time.Duration(getEnvInt("API_REQUEST_TIMEOUT", 30)) * time.Second,
		PollInterval:   time.Duration(getEnvInt("POLL_INTERVAL_MS", 1000)) * time.Millisecond,
		MockStepDelay:  time.Duration(getEnvInt("MOCK_STEP_DELAY_MS", 200)) * time.Millisecond,
		ForceMock:      getEnvBool("FORCE_MOCK", false),
		MaxUploadSize:  int64(getEnvInt("MAX_UPLOAD_SIZE", 100*1024*1024)),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_CONVERSION_DB", 3),
		RedisPrefix:   redisPrefix,
		PendingQueue:  applyPrefix(getEnv("CONVERSION_PENDING_QUEUE", "conversion:pending"), redisPrefix),
		ProcessingQueue: applyPrefix(
			getEnv("CONVERSION_PROCESSING_QUEUE", "conversion:processing"),
			redisPrefix,
		),
		FailedQueue: applyPrefix(
			getEnv("CONVERSION_FAILED_QUEUE", "conversion:failed"),
			redisPrefix,
		),
		StatusKeyPrefix: applyPrefix("conversion:status:", redisPrefix),
		HistoryKey:      applyPrefix(getEnv("CONVERSION_HISTORY_KEY", "conversion:history"), redisPrefix),
		HistoryLimit:    int64(getEnvInt("CONVERSION_HISTORY_LIMIT", 1000)),

		WorkerCount:       getEnvInt("CONVERSION_WORKER_COUNT", 3),
		ConversionTimeout: getEnvInt("CONVERSION_TIMEOUT", 120),
		MaxRetries:        getEnvInt("CONVERSION_MAX_RETRIES", 3),
		WorkDir:           getEnv("WORK_DIR", "/tmp/conversions"),

		S3Bucket: getEnv("AWS_BUCKET", "filealchemy"),
		// Prefer unified S3_* vars, fall back to legacy AWS_* vars for compatibility
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey: getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey: getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),

		DatabaseURL: databaseURL(),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "conversion.records"),

		StatusAddr: getEnv("STATUS_ADDR", ":8080"),
	}
}

// databaseURL builds a lib/pq key=value DSN, which avoids URI escaping
// issues for special characters in passwords. Empty DB_HOST disables the
// history database.
func databaseURL() string {
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		return ""
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "filealchemy")
	dbUser := getEnv("DB_USERNAME", "filealchemy")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	dbURL := fmt.Sprintf("host=%s port=%s dbname=%s user=%s sslmode=%s", dbHost, dbPort, dbName, dbUser, dbSSLMode)
	if dbPassword != "" {
		dbURL += fmt.Sprintf(" password=%s", dbPassword)
	}
	if cert := getEnv("DB_SSLCERT", ""); cert != "" {
		dbURL += fmt.Sprintf(" sslcert=%s", cert)
	}
	if key := getEnv("DB_SSLKEY", ""); key != "" {
		dbURL += fmt.Sprintf(" sslkey=%s", key)
	}
	if root := getEnv("DB_SSLROOTCERT", ""); root != "" {
		dbURL += fmt.Sprintf(" sslrootcert=%s", root)
	}
	return dbURL
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func applyPrefix(key string, prefix string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
