package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort     string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	FirebaseProject            string
	FirebaseServiceAccountJSON string
	FirebaseServiceAccountPath string
	StorageBucket              string

	RedisURL string
	RedisDB  int

	PresenceTTL       time.Duration
	PresenceHeartbeat time.Duration

	TypingIdle  time.Duration
	TypingStale time.Duration

	MessagePageSize int
	GroupRoomID     string

	SendRatePerSecond float64
	SendBurst         int

	HTTPRatePerSecond float64
	HTTPBurst         int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),

		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StorageBucket:              getEnv("STORAGE_BUCKET", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisDB:  int(getEnvAsInt64("REDIS_DB", 0)),

		PresenceTTL:       time.Duration(getEnvAsInt64("PRESENCE_TTL_SECONDS", 60)) * time.Second,
		PresenceHeartbeat: time.Duration(getEnvAsInt64("PRESENCE_HEARTBEAT_SECONDS", 20)) * time.Second,

		TypingIdle:  time.Duration(getEnvAsInt64("TYPING_IDLE_MS", 3000)) * time.Millisecond,
		TypingStale: time.Duration(getEnvAsInt64("TYPING_STALE_MS", 10000)) * time.Millisecond,

		MessagePageSize: int(getEnvAsInt64("MESSAGE_PAGE_SIZE", 50)),
		GroupRoomID:     getEnv("GROUP_ROOM_ID", "chat_group_nearby"),

		SendRatePerSecond: getEnvAsFloat("SEND_RATE_PER_SECOND", 5),
		SendBurst:         int(getEnvAsInt64("SEND_BURST", 10)),

		HTTPRatePerSecond: getEnvAsFloat("HTTP_RATE_PER_SECOND", 10),
		HTTPBurst:         int(getEnvAsInt64("HTTP_BURST", 30)),
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
