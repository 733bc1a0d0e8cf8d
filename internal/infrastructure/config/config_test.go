package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
cache:
  backend: "redis"
  default_ttl: 600
  redis:
    address: "cache.local:6379"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
fleet:
  serial_prefix: "GT"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want %q", cfg.Cache.Backend, "redis")
	}
	if cfg.CacheTTL() != 10*time.Minute {
		t.Errorf("CacheTTL() = %v, want 10m", cfg.CacheTTL())
	}
	if cfg.Fleet.SerialPrefix != "GT" {
		t.Errorf("Fleet.SerialPrefix = %q, want %q", cfg.Fleet.SerialPrefix, "GT")
	}
	// Untouched sections keep their defaults.
	if cfg.Fleet.RetryAttempts != 3 {
		t.Errorf("Fleet.RetryAttempts = %d, want 3", cfg.Fleet.RetryAttempts)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
cache:
  backend: "memcached"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for unknown cache backend, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.Redis.Address = ""
		}, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.DefaultTTL = 0 }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "empty serial prefix", mutate: func(c *Config) { c.Fleet.SerialPrefix = "" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Fleet.RetryAttempts = -1 }, wantErr: true},
		{name: "zero notification buffer", mutate: func(c *Config) { c.Fleet.NotificationBuffer = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("TRACKER_DATABASE_PATH", "/custom/path.db")
	t.Setenv("TRACKER_CACHE_BACKEND", "redis")
	t.Setenv("TRACKER_REDIS_ADDRESS", "redis.example.com:6379")
	t.Setenv("TRACKER_CACHE_DEFAULT_TTL", "120")
	t.Setenv("TRACKER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("TRACKER_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("TRACKER_SERIAL_PREFIX", "ZX")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want %q", cfg.Cache.Backend, "redis")
	}
	if cfg.Cache.Redis.Address != "redis.example.com:6379" {
		t.Errorf("Cache.Redis.Address = %q", cfg.Cache.Redis.Address)
	}
	if cfg.Cache.DefaultTTL != 120 {
		t.Errorf("Cache.DefaultTTL = %d, want 120", cfg.Cache.DefaultTTL)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Fleet.SerialPrefix != "ZX" {
		t.Errorf("Fleet.SerialPrefix = %q, want %q", cfg.Fleet.SerialPrefix, "ZX")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.CacheTTL() != time.Hour {
		t.Errorf("defaultConfig CacheTTL() = %v, want 1h", cfg.CacheTTL())
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
