package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Telegram
	BotToken    string
	BotUsername string

	// Database
	DBPath string

	// Marketplace web app
	WebAppURL string
	APIPort   int

	// Support
	SupportUsername string

	// Worker monitor
	MonitorInterval time.Duration
	MonitorBackoff  time.Duration
}

func Load() *Config {
	return &Config{
		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", "giftmarket_bot"),

		// Database
		DBPath: getEnv("DB_PATH", "./giftmarket.db"),

		// Marketplace web app
		WebAppURL: getEnv("WEBAPP_URL", ""),
		APIPort:   getEnvInt("API_PORT", 8080),

		// Support
		SupportUsername: getEnv("SUPPORT_USERNAME", "giftmarket_support"),

		// Worker monitor
		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 10*time.Second),
		MonitorBackoff:  getEnvDuration("MONITOR_BACKOFF", 5*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
