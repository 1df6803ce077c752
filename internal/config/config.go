package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL    string `yaml:"database_url"`
	HTTPListenAddr string `yaml:"http_listen_addr"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`

	// BackupDir is the root directory archives are written under, one
	// sub-directory per tenant.
	BackupDir      string        `yaml:"backup_dir"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	Retention      time.Duration `yaml:"retention"`
	ExportTimezone string        `yaml:"export_timezone"`

	// Optional S3-compatible mirror for finished archives. Mirroring is
	// disabled when S3Bucket is empty.
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
}

func defaults() *Config {
	return &Config{
		HTTPListenAddr: ":8090",
		LogLevel:       "info",
		LogFormat:      "json",
		ServiceName:    "tenant-backup",
		BackupDir:      "/var/lib/tenant-backup",
		Workers:        2,
		QueueSize:      64,
		JobTimeout:     2 * time.Hour,
		Retention:      7 * 24 * time.Hour,
		ExportTimezone: "UTC",
		S3Region:       "us-east-1",
	}
}

// Load builds the config from defaults, an optional YAML file named by
// BACKUP_CONFIG_FILE, and finally the environment.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("BACKUP_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", cfg.HTTPListenAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.BackupDir = getEnv("BACKUP_DIR", cfg.BackupDir)
	cfg.ExportTimezone = getEnv("EXPORT_TIMEZONE", cfg.ExportTimezone)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)

	var err error
	if cfg.Workers, err = getEnvInt("BACKUP_WORKERS", cfg.Workers); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getEnvInt("BACKUP_QUEUE_SIZE", cfg.QueueSize); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getEnvDuration("BACKUP_JOB_TIMEOUT", cfg.JobTimeout); err != nil {
		return nil, err
	}
	if cfg.Retention, err = getEnvDuration("BACKUP_RETENTION", cfg.Retention); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings required by the named component are present.
func (c *Config) Validate(component string) error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	switch component {
	case "backup-api":
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		if c.BackupDir == "" {
			missing = append(missing, "BACKUP_DIR")
		}
	case "backupctl":
		if c.BackupDir == "" {
			missing = append(missing, "BACKUP_DIR")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	if c.Workers < 1 {
		return fmt.Errorf("BACKUP_WORKERS must be at least 1")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("BACKUP_QUEUE_SIZE must be at least 1")
	}
	if c.S3Bucket != "" && (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must both be set")
	}
	if _, err := time.LoadLocation(c.ExportTimezone); err != nil {
		return fmt.Errorf("invalid EXPORT_TIMEZONE %q: %w", c.ExportTimezone, err)
	}
	return nil
}

// Location returns the time zone used for human-readable dates in exports.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ExportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
