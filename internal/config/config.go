package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Worker  WorkerConfig
	Sweep   SweepConfig
	Urgency UrgencyConfig
	DB      DatabaseConfig
	Redis   RedisConfig
	MQTT    MQTTConfig
	Auth    AuthConfig
	TTS     TTSConfig
	Sentry  SentryConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RateLimitRPS   int
	RateLimitBurst int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

// SweepConfig drives the expiration sweeper. ExpireHandled extends the
// inactivity rule to taken/en_route alerts, matching the behavior of the
// first deployment of this system; by default only available alerts expire.
type SweepConfig struct {
	Interval            time.Duration
	InactivityThreshold time.Duration
	ExpireHandled       bool
}

type UrgencyConfig struct {
	MediumActivations   int
	CriticalActivations int
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MQTTConfig struct {
	Enabled   bool
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type TTSConfig struct {
	Enabled       bool
	BaseURL       string
	APIKey        string
	ApplicationID string
}

type SentryConfig struct {
	DSN         string
	Environment string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 50),
		},
		Sweep: SweepConfig{
			Interval:            getEnvDuration("SWEEP_INTERVAL", 2*time.Minute),
			InactivityThreshold: getEnvDuration("SWEEP_INACTIVITY_THRESHOLD", 10*time.Minute),
			ExpireHandled:       getEnvBool("SWEEP_EXPIRE_HANDLED", false),
		},
		Urgency: UrgencyConfig{
			MediumActivations:   getEnvInt("URGENCY_MEDIUM_ACTIVATIONS", 2),
			CriticalActivations: getEnvInt("URGENCY_CRITICAL_ACTIVATIONS", 3),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/panic-alerts.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQTT: MQTTConfig{
			Enabled:   getEnvBool("MQTT_ENABLED", false),
			BrokerURL: getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			ClientID:  getEnv("MQTT_CLIENT_ID", "panic-alert-backend"),
			Username:  getEnv("MQTT_USERNAME", ""),
			Password:  getEnv("MQTT_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "panic-alert-backend"),
		},
		TTS: TTSConfig{
			Enabled:       getEnvBool("TTS_ENABLED", false),
			BaseURL:       getEnv("TTS_BASE_URL", "https://eu1.cloud.thethings.network"),
			APIKey:        getEnv("TTS_API_KEY", ""),
			ApplicationID: getEnv("TTS_APPLICATION_ID", ""),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: getEnv("SENTRY_ENVIRONMENT", "development"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.RateLimitRPS < 1 || c.Server.RateLimitBurst < c.Server.RateLimitRPS {
		return fmt.Errorf("invalid rate limit: rps %d, burst %d", c.Server.RateLimitRPS, c.Server.RateLimitBurst)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Sweep.Interval < 10*time.Second {
		return fmt.Errorf("sweep interval must be at least 10 seconds")
	}
	if c.Sweep.InactivityThreshold < time.Minute {
		return fmt.Errorf("sweep inactivity threshold must be at least 1 minute")
	}

	if c.Urgency.MediumActivations < 2 {
		return fmt.Errorf("medium urgency threshold must be at least 2 activations")
	}
	if c.Urgency.CriticalActivations < c.Urgency.MediumActivations {
		return fmt.Errorf("critical urgency threshold must be >= medium threshold")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.TTS.Enabled && c.TTS.APIKey == "" {
		return fmt.Errorf("TTS_API_KEY is required when TTS provisioning is enabled")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
