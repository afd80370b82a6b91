package api

import (
	"os"
	"strconv"

	"github.com/rs/zerolog"

	watermark "github.com/gcslaoli/pdf-watermark-remover-go"
)

const (
	// DefaultMaxFileSize is the default maximum upload size (10MB)
	DefaultMaxFileSize = 10 * 1024 * 1024

	// DefaultPort is the default server port
	DefaultPort = "8080"
)

// Config holds application configuration
type Config struct {
	Port        string
	MaxFileSize int64
	TempDir     string

	// Settings are the watermark removal defaults. The skip count can be
	// overridden per request.
	Settings watermark.Config

	Logger zerolog.Logger
}

// ConfigFromEnv reads PORT, MAX_FILE_SIZE, TEMP_DIR and CONFIG (a YAML
// settings file) from the environment.
func ConfigFromEnv() (*Config, error) {
	config := &Config{
		Port:        getEnv("PORT", DefaultPort),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", DefaultMaxFileSize),
		TempDir:     getEnv("TEMP_DIR", os.TempDir()),
		Settings:    watermark.DefaultConfig(),
		Logger:      zerolog.Nop(),
	}
	if path := os.Getenv("CONFIG"); path != "" {
		settings, err := watermark.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config.Settings = settings
	}
	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}
