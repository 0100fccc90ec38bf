package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the visa case service.
type Config struct {
	Environment string          `yaml:"environment"`
	Debug       bool            `yaml:"debug"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Sweep       SweepConfig     `yaml:"sweep"`
}

// ServerConfig contains HTTP and gRPC server settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	ConnectionString   string        `yaml:"connection_string"`
	MaxOpenConnections int           `yaml:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout"`
	QueryTimeout       time.Duration `yaml:"query_timeout"`
	MigrationPath      string        `yaml:"migration_path"`
	EnableQueryLogging bool          `yaml:"enable_query_logging"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
}

// RedisConfig contains settings for the read-side cache.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	Database     int           `yaml:"database"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// SchedulerConfig contains cron schedules for the background sweeps.
type SchedulerConfig struct {
	ReminderSweepSchedule  string `yaml:"reminder_sweep_schedule"`
	ReminderSweepEnabled   bool   `yaml:"reminder_sweep_enabled"`
	DocumentAuditSchedule  string `yaml:"document_audit_schedule"`
	DocumentAuditEnabled   bool   `yaml:"document_audit_enabled"`
	InvoiceOverdueSchedule string `yaml:"invoice_overdue_schedule"`
	InvoiceOverdueEnabled  bool   `yaml:"invoice_overdue_enabled"`
}

// SweepConfig contains tunables for the sweep and audit passes.
type SweepConfig struct {
	ExpiryWarningWindow time.Duration `yaml:"expiry_warning_window"`
	BatchSize           int           `yaml:"batch_size"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Debug:       getBoolEnv("DEBUG", false),

		Server: ServerConfig{
			HTTPPort:        getIntEnv("HTTP_PORT", 8080),
			GRPCPort:        getIntEnv("GRPC_PORT", 9090),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getDurationEnv("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxHeaderBytes:  getIntEnv("MAX_HEADER_BYTES", 1048576),
		},

		Database: DatabaseConfig{
			ConnectionString:   getEnv("DATABASE_URL", "postgres://localhost:5432/visadesk?sslmode=disable"),
			MaxOpenConnections: getIntEnv("DB_MAX_OPEN_CONNECTIONS", 25),
			MaxIdleConnections: getIntEnv("DB_MAX_IDLE_CONNECTIONS", 5),
			ConnectionLifetime: getDurationEnv("DB_CONNECTION_LIFETIME", 1*time.Hour),
			ConnectionTimeout:  getDurationEnv("DB_CONNECTION_TIMEOUT", 30*time.Second),
			QueryTimeout:       getDurationEnv("DB_QUERY_TIMEOUT", 30*time.Second),
			MigrationPath:      getEnv("DB_MIGRATION_PATH", "file://migrations"),
			EnableQueryLogging: getBoolEnv("DB_ENABLE_QUERY_LOGGING", false),
			SlowQueryThreshold: getDurationEnv("DB_SLOW_QUERY_THRESHOLD", 1*time.Second),
		},

		Redis: RedisConfig{
			Enabled:      getBoolEnv("REDIS_ENABLED", true),
			Address:      getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			Database:     getIntEnv("REDIS_DATABASE", 0),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     getDurationEnv("REDIS_CACHE_TTL", 30*time.Second),
		},

		Scheduler: SchedulerConfig{
			ReminderSweepSchedule:  getEnv("REMINDER_SWEEP_SCHEDULE", "0 */15 * * * *"),
			ReminderSweepEnabled:   getBoolEnv("REMINDER_SWEEP_ENABLED", true),
			DocumentAuditSchedule:  getEnv("DOCUMENT_AUDIT_SCHEDULE", "0 0 6 * * *"),
			DocumentAuditEnabled:   getBoolEnv("DOCUMENT_AUDIT_ENABLED", true),
			InvoiceOverdueSchedule: getEnv("INVOICE_OVERDUE_SCHEDULE", "0 30 6 * * *"),
			InvoiceOverdueEnabled:  getBoolEnv("INVOICE_OVERDUE_ENABLED", true),
		},

		Sweep: SweepConfig{
			ExpiryWarningWindow: getDurationEnv("EXPIRY_WARNING_WINDOW", 7*24*time.Hour),
			BatchSize:           getIntEnv("SWEEP_BATCH_SIZE", 500),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database connection string is required")
	}
	if c.Sweep.ExpiryWarningWindow <= 0 {
		return fmt.Errorf("expiry warning window must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
