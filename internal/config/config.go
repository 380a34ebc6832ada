package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service-level configuration for the forecaster
type Config struct {
	// Core settings
	ServiceName string
	HTTPPort    int
	OPCUAPort   int

	// Historian settings
	HistorianEndpoint string

	// Table files
	LinesFile    string
	BaselineFile string

	// Forecast settings
	HorizonDays         int
	RefreshInterval     time.Duration
	AlignMinRatio       float64
	ShutdownCutoffHours float64
	Workers             int

	// Kafka settings (publishing disabled when no brokers are set)
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		// Core settings
		ServiceName: getEnvOrDefault("SERVICE_NAME", "mill-forecaster"),
		HTTPPort:    getEnvAsIntOrDefault("HTTP_PORT", 8080),
		OPCUAPort:   getEnvAsIntOrDefault("OPCUA_PORT", 4840),

		// Historian settings
		HistorianEndpoint: getEnvOrDefault("HISTORIAN_ENDPOINT", "http://localhost:8090"),

		// Table files
		LinesFile:    getEnvOrDefault("LINES_FILE", "config/lines.yaml"),
		BaselineFile: getEnvOrDefault("BASELINE_FILE", "config/baselines.yaml"),

		// Forecast settings
		HorizonDays:         getEnvAsIntOrDefault("HORIZON_DAYS", 31),
		RefreshInterval:     getDurationOrDefault("REFRESH_INTERVAL", 15*time.Minute),
		AlignMinRatio:       getEnvAsFloatOrDefault("ALIGN_MIN_RATIO", 0.5),
		ShutdownCutoffHours: getEnvAsFloatOrDefault("SHUTDOWN_CUTOFF_HOURS", 23.9),
		Workers:             getEnvAsIntOrDefault("REFRESH_WORKERS", 4),

		// Kafka settings
		KafkaBrokers: getEnvAsListOrDefault("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "mill.forecast.snapshots"),
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
