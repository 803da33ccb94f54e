package config

import (
	"os"
	"strconv"
	"time"
)

type ShardConfig struct {
	ScanPrice       int64
	WelcomeGrant    int64
	MaxImageBytes   int64
	ScanRateLimit   int
	RateLimitWindow time.Duration
}

func LoadShardConfig() *ShardConfig {
	return &ShardConfig{
		ScanPrice:       getEnvAsInt64("SHARD_SCAN_PRICE", 25),
		WelcomeGrant:    getEnvAsInt64("SHARD_WELCOME_GRANT", 125),
		MaxImageBytes:   getEnvAsInt64("SCAN_MAX_IMAGE_BYTES", 50*1024*1024),
		ScanRateLimit:   getEnvAsInt("SCAN_RATE_LIMIT", 30),
		RateLimitWindow: getEnvAsDuration("SCAN_RATE_LIMIT_WINDOW", 1*time.Hour),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultVal
}
