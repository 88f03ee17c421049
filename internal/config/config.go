// Package config provides configuration management for the LacyLights motion server.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration values for the server.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Art-Net input configuration
	ArtNetEnabled    bool
	ArtNetListenAddr string
	ArtNetPort       int
	DMXUniverseCount int

	// Simulation configuration
	TickRateHz    int     // Hz, motion profile integration rate
	StreamRateHz  int     // Hz, fixture state broadcast rate
	SkipThreshold float64 // smallest target change that retargets a parameter

	// Fixture description directory imported on startup
	ProfilePath string

	// CORS configuration
	CORSOrigin string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "4100"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./motion.db"),

		// Art-Net
		ArtNetEnabled:    getEnvBool("ARTNET_ENABLED", true),
		ArtNetListenAddr: getEnv("ARTNET_LISTEN_ADDR", "0.0.0.0"),
		ArtNetPort:       getEnvInt("ARTNET_PORT", 6454),
		DMXUniverseCount: getEnvInt("DMX_UNIVERSE_COUNT", 4),

		// Simulation
		TickRateHz:    getEnvInt("TICK_RATE_HZ", 60),
		StreamRateHz:  getEnvInt("STREAM_RATE_HZ", 20),
		SkipThreshold: getEnvFloat("SKIP_THRESHOLD", 0.003),

		// Fixture descriptions
		ProfilePath: getEnv("PROFILE_PATH", "./profiles"),

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the float value of an environment variable or a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
