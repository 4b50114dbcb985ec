package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Setenv("JWT_SECRET", "test-secret")
	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN == "" {
		t.Error("MySQL DSN should not be empty")
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}

	if cfg.OutboxWorker.BatchSize != 50 {
		t.Errorf("Expected default outbox batch size 50, got %d", cfg.OutboxWorker.BatchSize)
	}

	if cfg.EntityLock.TTLSec != 120 {
		t.Errorf("Expected default entity lock TTL 120, got %d", cfg.EntityLock.TTLSec)
	}
}

func TestLoad_MissingMySQLDSN(t *testing.T) {
	// Ensure MYSQL_DSN is not set
	os.Unsetenv("MYSQL_DSN")
	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when MYSQL_DSN is missing")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	os.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	os.Unsetenv("JWT_SECRET")
	defer os.Unsetenv("MYSQL_DSN")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when JWT_SECRET is missing")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("MYSQL_DSN", "custom:dsn@tcp(localhost:3306)/custom")
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("REDIS_ADDR", "redis.example.com:6379")
	os.Setenv("REDIS_PASS", "secret")
	os.Setenv("REDIS_DB", "5")
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("OUTBOX_WORKER_BATCH_SIZE", "10")
	os.Setenv("CR_REJECTED_RETENTION_DAYS", "14")

	defer func() {
		os.Unsetenv("MYSQL_DSN")
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("REDIS_PASS")
		os.Unsetenv("REDIS_DB")
		os.Unsetenv("HTTP_ADDR")
		os.Unsetenv("OUTBOX_WORKER_BATCH_SIZE")
		os.Unsetenv("CR_REJECTED_RETENTION_DAYS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MySQL.DSN != "custom:dsn@tcp(localhost:3306)/custom" {
		t.Errorf("Expected custom MySQL DSN, got %s", cfg.MySQL.DSN)
	}

	if cfg.Redis.Addr != "redis.example.com:6379" {
		t.Errorf("Expected custom Redis addr, got %s", cfg.Redis.Addr)
	}

	if cfg.Redis.Password != "secret" {
		t.Errorf("Expected Redis password 'secret', got %s", cfg.Redis.Password)
	}

	if cfg.Redis.DB != 5 {
		t.Errorf("Expected Redis DB 5, got %d", cfg.Redis.DB)
	}

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Expected HTTPAddr :9090, got %s", cfg.HTTPAddr)
	}

	if cfg.OutboxWorker.BatchSize != 10 {
		t.Errorf("Expected outbox batch size 10, got %d", cfg.OutboxWorker.BatchSize)
	}

	if cfg.ChangeRequest.RejectedRetentionDays != 14 {
		t.Errorf("Expected rejected retention 14 days, got %d", cfg.ChangeRequest.RejectedRetentionDays)
	}
}
