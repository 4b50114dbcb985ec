package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL         MySQLConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Migrate       bool
	HTTPAddr      string
	OutboxWorker  OutboxWorkerConfig
	EntityLock    EntityLockConfig
	ChangeRequest ChangeRequestConfig
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// OutboxWorkerConfig holds outbox delivery worker configuration
type OutboxWorkerConfig struct {
	Enabled        bool
	IntervalSec    int
	BatchSize      int
	RetentionDays  int
	CleanupHourUTC int
}

// EntityLockConfig holds entity lock manager configuration
type EntityLockConfig struct {
	TTLSec           int
	SweepIntervalSec int
}

// ChangeRequestConfig holds change request engine configuration
type ChangeRequestConfig struct {
	RejectedRetentionDays int
	CleanupIntervalSec    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "gatrix"),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		OutboxWorker: OutboxWorkerConfig{
			Enabled:        getEnv("OUTBOX_WORKER_ENABLED", "1") == "1",
			IntervalSec:    getEnvInt("OUTBOX_WORKER_INTERVAL_SEC", 5),
			BatchSize:      getEnvInt("OUTBOX_WORKER_BATCH_SIZE", 50),
			RetentionDays:  getEnvInt("OUTBOX_RETENTION_DAYS", 7),
			CleanupHourUTC: getEnvInt("OUTBOX_CLEANUP_HOUR_UTC", 3),
		},
		EntityLock: EntityLockConfig{
			TTLSec:           getEnvInt("ENTITY_LOCK_TTL_SEC", 120),
			SweepIntervalSec: getEnvInt("ENTITY_LOCK_SWEEP_INTERVAL_SEC", 60),
		},
		ChangeRequest: ChangeRequestConfig{
			RejectedRetentionDays: getEnvInt("CR_REJECTED_RETENTION_DAYS", 30),
			CleanupIntervalSec:    getEnvInt("CR_CLEANUP_INTERVAL_SEC", 3600),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	// Load INI file
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Helper function: get value with priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_seconds", 86400) / 60,
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "gatrix"),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
		OutboxWorker: OutboxWorkerConfig{
			Enabled:        getValueBool("OUTBOX_WORKER_ENABLED", "outbox", "worker_enabled", true),
			IntervalSec:    getValueInt("OUTBOX_WORKER_INTERVAL_SEC", "outbox", "interval_sec", 5),
			BatchSize:      getValueInt("OUTBOX_WORKER_BATCH_SIZE", "outbox", "batch_size", 50),
			RetentionDays:  getValueInt("OUTBOX_RETENTION_DAYS", "outbox", "retention_days", 7),
			CleanupHourUTC: getValueInt("OUTBOX_CLEANUP_HOUR_UTC", "outbox", "cleanup_hour_utc", 3),
		},
		EntityLock: EntityLockConfig{
			TTLSec:           getValueInt("ENTITY_LOCK_TTL_SEC", "entity_lock", "ttl_sec", 120),
			SweepIntervalSec: getValueInt("ENTITY_LOCK_SWEEP_INTERVAL_SEC", "entity_lock", "sweep_interval_sec", 60),
		},
		ChangeRequest: ChangeRequestConfig{
			RejectedRetentionDays: getValueInt("CR_REJECTED_RETENTION_DAYS", "change_request", "rejected_retention_days", 30),
			CleanupIntervalSec:    getValueInt("CR_CLEANUP_INTERVAL_SEC", "change_request", "cleanup_interval_sec", 3600),
		},
	}

	// Validate required fields
	if cfg.MySQL.DSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}
