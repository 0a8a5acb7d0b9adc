package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	HTTPPort    string
	LogLevel    string
	ReuseWindow time.Duration
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		DatabaseURL: getEnv("DATABASE_URL", "exerbud.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		ReuseWindow: time.Duration(getEnvAsInt("CONVERSATION_REUSE_WINDOW_MIN", 45)) * time.Minute,
	}

	// An empty DATABASE_URL is allowed: the ledger runs in degraded mode
	// (reads come back empty, writes are no-ops) so the chat flow keeps
	// working even without history persistence.
	if AppConfig.DatabaseURL == "" {
		log.Println("DATABASE_URL is empty, history persistence is disabled")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Ignoring malformed %s value %q, using default %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
