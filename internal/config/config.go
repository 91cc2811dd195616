package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"lambdaguard/internal/protect"
)

// Config holds all configuration for the application
type Config struct {
	Environment string
	Port        string
	LogLevel    string
	ConfigFile  string
	WatchConfig bool
	Protection  ProtectionConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
}

// ProtectionConfig holds injection scanner configuration
type ProtectionConfig struct {
	Mode       string
	StatusCode int
}

// RateLimitConfig holds emulator rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// CORSConfig holds the allowed origin added to every response
type CORSConfig struct {
	AllowOrigin string
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Set up Viper
	viper.AutomaticEnv()
	viper.SetDefault("PORT", "8081")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CONFIG_WATCH", true)
	viper.SetDefault("PROTECTION_MODE", string(protect.ModeReport))
	viper.SetDefault("PROTECTION_STATUS_CODE", 400)
	viper.SetDefault("RATE_LIMIT_RPS", 100.0)
	viper.SetDefault("RATE_LIMIT_BURST", 200)

	config := &Config{
		Environment: viper.GetString("ENVIRONMENT"),
		Port:        viper.GetString("PORT"),
		LogLevel:    viper.GetString("LOG_LEVEL"),
		ConfigFile:  viper.GetString("CONFIG_FILE"),
		WatchConfig: viper.GetBool("CONFIG_WATCH"),
		Protection: ProtectionConfig{
			Mode:       viper.GetString("PROTECTION_MODE"),
			StatusCode: viper.GetInt("PROTECTION_STATUS_CODE"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             viper.GetInt("RATE_LIMIT_BURST"),
		},
		CORS: CORSConfig{
			AllowOrigin: viper.GetString("CORS_ALLOW_ORIGIN"),
		},
	}

	return config, nil
}

// ScannerOptions returns the injection scanner options for this configuration
func (c *Config) ScannerOptions() protect.Options {
	return protect.Options{
		Mode:       protect.Mode(c.Protection.Mode),
		StatusCode: c.Protection.StatusCode,
	}
}

// IsProduction reports whether the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetEnv gets an environment variable with a fallback value
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvAsInt gets an environment variable as integer with a fallback value
func GetEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// GetEnvAsBool gets an environment variable as boolean with a fallback value
func GetEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}
