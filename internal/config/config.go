package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Chat     ChatConfig
	Tracing  TracingConfig
	Keys     APIKeys
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	HubLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type ChatConfig struct {
	Store             string // "redis", "postgres" or "memory"
	SchemaVersion     string
	PageSize          int
	EnableSaveHistory bool
	ShareCacheTTL     time.Duration
	EventsTopic       string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

type APIKeys struct {
	JwtSecret string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			HubLogFilePath:     getEnv("HUB_LOG_FILE_PATH", "logs/chat_history_hub.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3001"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Chat: ChatConfig{
			Store:             getEnv("CHAT_STORE", "redis"),
			SchemaVersion:     getEnv("CHAT_SCHEMA_VERSION", "v2"),
			PageSize:          getEnvAsInt("CHAT_PAGE_SIZE", 20),
			EnableSaveHistory: getEnvAsBool("ENABLE_SAVE_CHAT_HISTORY", true),
			ShareCacheTTL:     time.Duration(getEnvAsInt("SHARE_CACHE_TTL_SECONDS", 30)) * time.Second,
			EventsTopic:       getEnv("CHAT_EVENTS_TOPIC", "CHAT_HISTORY_EVENTS"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "monetai-chat-history"),
		},
		Keys: APIKeys{
			JwtSecret: getEnv("JWT_SECRET", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
