// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port             string
	PlatformWSURL    string
	PlatformToken    string
	DeviceID         string
	Components       []string
	KeyBits          int
	AckTimeout       time.Duration
	DatabasePath     string
	LogLevel         string
	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		PlatformWSURL:    os.Getenv("PLATFORM_WS_URL"),
		PlatformToken:    os.Getenv("PLATFORM_TOKEN"),
		DeviceID:         getEnv("DEVICE_ID", "kiosk-001"),
		Components:       getEnvList("COMPONENTS"),
		KeyBits:          getEnvInt("KEY_BITS", 2048),
		AckTimeout:       getEnvDuration("ACK_TIMEOUT", 10*time.Second),
		DatabasePath:     getEnv("DATABASE_PATH", "session-key-agent.db"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "session-key-agent"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvList はカンマ区切りの環境変数をリストとして読み込む。
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
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
