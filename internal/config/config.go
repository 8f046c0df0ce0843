package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port string

	// Gateway bridge configuration
	BridgeBaseURL string

	// ElevenLabs configuration
	ElevenLabsBaseURL string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	ElevenLabsModelID string

	// Audio cache configuration
	AudioCacheEnabled bool
	AudioCacheType    string // "local" or "gcs"
	AudioCachePath    string // Local directory path or GCS bucket name (based on AudioCacheType)

	// Credential storage
	CredentialRoot string

	// Redis database index for the cross-pod session monitor
	RedisDB int

	// Admin surface protection
	SecretKey string

	// Instance identifier for multi-pod monitoring and routing
	InstanceID string
}

// LoadConfigFromEnv loads configuration from environment variables
func LoadConfigFromEnv() *Config {
	return &Config{
		Port: getEnvOrDefault("PORT", "8080"),

		BridgeBaseURL: getEnvOrDefault("BRIDGE_BASE_URL", "ws://localhost:3001"),

		ElevenLabsBaseURL: getEnvOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsAPIKey:  getEnvOrDefault("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnvOrDefault("ELEVENLABS_VOICE_ID", "pNInz6obpgDQGcFmaJgB"),
		ElevenLabsModelID: getEnvOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),

		AudioCacheEnabled: getEnvAsBoolOrDefault("AUDIO_CACHE_ENABLED", true),
		AudioCacheType:    getEnvOrDefault("AUDIO_CACHE_TYPE", "local"),
		AudioCachePath:    getEnvOrDefault("AUDIO_CACHE_PATH", "./audio-cache"),

		CredentialRoot: getEnvOrDefault("CREDENTIAL_ROOT", "./sessions"),

		RedisDB: getEnvAsIntOrDefault("REDIS_DB", 0),

		SecretKey: getEnvOrDefault("SECRET_KEY", ""),

		InstanceID: getDynamicInstanceID(),
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDynamicInstanceID generates a unique identifier for this service instance.
// It first tries the system hostname (pod name in K8s), then falls back to a
// timestamp-based ID.
func getDynamicInstanceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("voice-service-%d", time.Now().UnixNano())
}
