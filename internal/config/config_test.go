package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"PORT", "ENV", "DATABASE_URL",
		"ARTNET_ENABLED", "ARTNET_LISTEN_ADDR", "ARTNET_PORT", "DMX_UNIVERSE_COUNT",
		"TICK_RATE_HZ", "STREAM_RATE_HZ", "SKIP_THRESHOLD",
		"PROFILE_PATH", "CORS_ORIGIN",
	}
	for _, v := range envVars {
		// t.Setenv registers the restore; Unsetenv makes the variable absent.
		t.Setenv(v, "")
		if err := os.Unsetenv(v); err != nil {
			t.Fatalf("Unsetenv(%s) error: %v", v, err)
		}
	}

	cfg := Load()

	if cfg.Port != "4100" {
		t.Errorf("Expected default Port '4100', got '%s'", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Expected default Env 'development', got '%s'", cfg.Env)
	}
	if !cfg.ArtNetEnabled {
		t.Error("Expected Art-Net input to be enabled by default")
	}
	if cfg.ArtNetPort != 6454 {
		t.Errorf("Expected default ArtNetPort 6454, got %d", cfg.ArtNetPort)
	}
	if cfg.TickRateHz != 60 {
		t.Errorf("Expected default TickRateHz 60, got %d", cfg.TickRateHz)
	}
	if cfg.StreamRateHz != 20 {
		t.Errorf("Expected default StreamRateHz 20, got %d", cfg.StreamRateHz)
	}
	if cfg.SkipThreshold != 0.003 {
		t.Errorf("Expected default SkipThreshold 0.003, got %v", cfg.SkipThreshold)
	}
	if cfg.ProfilePath != "./profiles" {
		t.Errorf("Expected default ProfilePath './profiles', got '%s'", cfg.ProfilePath)
	}
}

func TestLoad_CustomEnvironment(t *testing.T) {
	// Set custom environment variables using t.Setenv (auto cleanup)
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "file:./prod.db")
	t.Setenv("ARTNET_ENABLED", "false")
	t.Setenv("ARTNET_LISTEN_ADDR", "127.0.0.1")
	t.Setenv("ARTNET_PORT", "6455")
	t.Setenv("DMX_UNIVERSE_COUNT", "2")
	t.Setenv("TICK_RATE_HZ", "120")
	t.Setenv("STREAM_RATE_HZ", "10")
	t.Setenv("SKIP_THRESHOLD", "0.01")
	t.Setenv("PROFILE_PATH", "/etc/lacylights/profiles")
	t.Setenv("CORS_ORIGIN", "http://example.com")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Expected Port to be '8080', got '%s'", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("Expected Env to be 'production', got '%s'", cfg.Env)
	}
	if cfg.DatabaseURL != "file:./prod.db" {
		t.Errorf("Expected DatabaseURL to be 'file:./prod.db', got '%s'", cfg.DatabaseURL)
	}
	if cfg.ArtNetEnabled != false {
		t.Errorf("Expected ArtNetEnabled to be false, got %v", cfg.ArtNetEnabled)
	}
	if cfg.ArtNetListenAddr != "127.0.0.1" {
		t.Errorf("Expected ArtNetListenAddr to be '127.0.0.1', got '%s'", cfg.ArtNetListenAddr)
	}
	if cfg.ArtNetPort != 6455 {
		t.Errorf("Expected ArtNetPort to be 6455, got %d", cfg.ArtNetPort)
	}
	if cfg.DMXUniverseCount != 2 {
		t.Errorf("Expected DMXUniverseCount to be 2, got %d", cfg.DMXUniverseCount)
	}
	if cfg.TickRateHz != 120 {
		t.Errorf("Expected TickRateHz to be 120, got %d", cfg.TickRateHz)
	}
	if cfg.StreamRateHz != 10 {
		t.Errorf("Expected StreamRateHz to be 10, got %d", cfg.StreamRateHz)
	}
	if cfg.SkipThreshold != 0.01 {
		t.Errorf("Expected SkipThreshold to be 0.01, got %v", cfg.SkipThreshold)
	}
	if cfg.ProfilePath != "/etc/lacylights/profiles" {
		t.Errorf("Expected ProfilePath to be '/etc/lacylights/profiles', got '%s'", cfg.ProfilePath)
	}
	if cfg.CORSOrigin != "http://example.com" {
		t.Errorf("Expected CORSOrigin to be 'http://example.com', got '%s'", cfg.CORSOrigin)
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"development", true},
		{"production", false},
		{"staging", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Env: tt.env}
			if got := cfg.IsDevelopment(); got != tt.expected {
				t.Errorf("IsDevelopment() = %v, want %v for env '%s'", got, tt.expected, tt.env)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	// Test with existing env var
	t.Setenv("TEST_GET_ENV", "custom_value")

	result := getEnv("TEST_GET_ENV", "default")
	if result != "custom_value" {
		t.Errorf("Expected 'custom_value', got '%s'", result)
	}

	// Test with non-existing env var (use a unique key that won't be set)
	result = getEnv("NON_EXISTING_VAR_12345_UNIQUE", "default_value")
	if result != "default_value" {
		t.Errorf("Expected 'default_value', got '%s'", result)
	}
}

func TestGetEnvInt(t *testing.T) {
	// Test with valid int
	t.Setenv("TEST_INT_VAR", "42")

	result := getEnvInt("TEST_INT_VAR", 10)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	// Test with invalid int (should return default)
	t.Setenv("TEST_INVALID_INT", "not_a_number")

	result = getEnvInt("TEST_INVALID_INT", 10)
	if result != 10 {
		t.Errorf("Expected default 10 for invalid int, got %d", result)
	}

	// Test with non-existing env var
	result = getEnvInt("NON_EXISTING_INT_VAR_12345_UNIQUE", 100)
	if result != 100 {
		t.Errorf("Expected default 100, got %d", result)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
		setEnv       bool
	}{
		{"true_string", "true", false, true, true},
		{"false_string", "false", true, false, true},
		{"1_string", "1", false, true, true},
		{"0_string", "0", true, false, true},
		{"invalid_string_returns_default", "invalid", true, true, true},
		{"non_existing_returns_default_true", "", true, true, false},
		{"non_existing_returns_default_false", "", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Use a unique env key for each test
			envKey := "TEST_BOOL_VAR_" + tt.name + "_UNIQUE"
			if tt.setEnv {
				t.Setenv(envKey, tt.envValue)
			}

			result := getEnvBool(envKey, tt.defaultValue)
			if result != tt.expected {
				t.Errorf("getEnvBool(%s, %v) = %v, want %v", envKey, tt.defaultValue, result, tt.expected)
			}
		})
	}
}

func TestGetEnvInt_ZeroValue(t *testing.T) {
	t.Setenv("TEST_ZERO_INT", "0")

	result := getEnvInt("TEST_ZERO_INT", 10)
	if result != 0 {
		t.Errorf("Expected 0, got %d", result)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT_VAR", "0.25")
	if result := getEnvFloat("TEST_FLOAT_VAR", 1); result != 0.25 {
		t.Errorf("Expected 0.25, got %v", result)
	}

	t.Setenv("TEST_INVALID_FLOAT", "fast")
	if result := getEnvFloat("TEST_INVALID_FLOAT", 1.5); result != 1.5 {
		t.Errorf("Expected default 1.5 for invalid float, got %v", result)
	}

	if result := getEnvFloat("NON_EXISTING_FLOAT_VAR_12345_UNIQUE", 2); result != 2 {
		t.Errorf("Expected default 2, got %v", result)
	}
}

func TestGetEnvBool_VariousTrue(t *testing.T) {
	trueValues := []string{"true", "TRUE", "True", "1", "t", "T"}
	for _, val := range trueValues {
		t.Run(val, func(t *testing.T) {
			envKey := "TEST_BOOL_TRUE_" + val
			t.Setenv(envKey, val)
			result := getEnvBool(envKey, false)
			if !result {
				t.Errorf("getEnvBool with value '%s' should be true", val)
			}
		})
	}
}

func TestGetEnvBool_VariousFalse(t *testing.T) {
	falseValues := []string{"false", "FALSE", "False", "0", "f", "F"}
	for _, val := range falseValues {
		t.Run(val, func(t *testing.T) {
			envKey := "TEST_BOOL_FALSE_" + val
			t.Setenv(envKey, val)
			result := getEnvBool(envKey, true)
			if result {
				t.Errorf("getEnvBool with value '%s' should be false", val)
			}
		})
	}
}
