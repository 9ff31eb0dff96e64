package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`

	// Auth
	JWTSecret string `mapstructure:"jwt_secret"`

	// Webhook reconciliation
	DedupWindowMinutes int `mapstructure:"dedup_window_minutes"`

	// SLA deadlines per severity, in hours from case creation
	SLA SLAConfig `mapstructure:"sla"`
}

type SLAConfig struct {
	CriticalHours int `mapstructure:"critical_hours"`
	HighHours     int `mapstructure:"high_hours"`
	MediumHours   int `mapstructure:"medium_hours"`
	LowHours      int `mapstructure:"low_hours"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present, for local development convenience.
	// A missing .env is not an error (production/Docker sets real env vars).
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()

	// Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("dedup_window_minutes", 5)
	v.SetDefault("sla.critical_hours", 2)
	v.SetDefault("sla.high_hours", 4)
	v.SetDefault("sla.medium_hours", 8)
	v.SetDefault("sla.low_hours", 24)

	// Config file settings; path is the directory to search
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetConfigName("casedesk")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("casedesk")

	// Bind standard environment variables (Docker/deploy compatibility)
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("dedup_window_minutes", "DEDUP_WINDOW_MINUTES")
	_ = v.BindEnv("sla.critical_hours", "SLA_CRITICAL_HOURS")
	_ = v.BindEnv("sla.high_hours", "SLA_HIGH_HOURS")
	_ = v.BindEnv("sla.medium_hours", "SLA_MEDIUM_HOURS")
	_ = v.BindEnv("sla.low_hours", "SLA_LOW_HOURS")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	// Backfill environment variables for code that still uses os.Getenv()
	setEnvIfEmpty("DATABASE_URL", App.DatabaseURL)
	setEnvIfEmpty("REDIS_URL", App.RedisURL)
	setEnvIfEmpty("PORT", App.Port)
	setEnvIfEmpty("JWT_SECRET", App.JWTSecret)

	return nil
}

func setEnvIfEmpty(key, value string) {
	if value != "" && os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
