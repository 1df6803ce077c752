package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BACKUP_CONFIG_FILE", "DATABASE_URL", "HTTP_LISTEN_ADDR", "LOG_LEVEL", "LOG_FORMAT", "SERVICE_NAME",
		"BACKUP_DIR", "BACKUP_WORKERS", "BACKUP_QUEUE_SIZE", "BACKUP_JOB_TIMEOUT",
		"BACKUP_RETENTION", "EXPORT_TIMEZONE", "S3_ENDPOINT", "S3_REGION", "S3_BUCKET",
		"S3_ACCESS_KEY", "S3_SECRET_KEY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/var/lib/tenant-backup", cfg.BackupDir)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, 2*time.Hour, cfg.JobTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention)
	assert.Equal(t, "UTC", cfg.ExportTimezone)
}

func TestLoad_AllEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://app:5432/biz")
	t.Setenv("HTTP_LISTEN_ADDR", ":7071")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BACKUP_DIR", "/tmp/backups")
	t.Setenv("BACKUP_WORKERS", "4")
	t.Setenv("BACKUP_QUEUE_SIZE", "10")
	t.Setenv("BACKUP_JOB_TIMEOUT", "30m")
	t.Setenv("BACKUP_RETENTION", "48h")
	t.Setenv("EXPORT_TIMEZONE", "Europe/Oslo")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://app:5432/biz", cfg.DatabaseURL)
	assert.Equal(t, ":7071", cfg.HTTPListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/backups", cfg.BackupDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10, cfg.QueueSize)
	assert.Equal(t, 30*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 48*time.Hour, cfg.Retention)
	assert.Equal(t, "Europe/Oslo", cfg.ExportTimezone)
}

func TestLoad_InvalidInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKUP_WORKERS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKUP_WORKERS")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKUP_JOB_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKUP_JOB_TIMEOUT")
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: postgres://file/db
backup_dir: /srv/backups
workers: 3
job_timeout: 45m
s3_bucket: archives
`), 0o600))
	t.Setenv("BACKUP_CONFIG_FILE", path)
	t.Setenv("BACKUP_DIR", "/env/backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL)
	assert.Equal(t, "/env/backups", cfg.BackupDir)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 45*time.Minute, cfg.JobTimeout)
	assert.Equal(t, "archives", cfg.S3Bucket)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKUP_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := &Config{Workers: 1, QueueSize: 1, ExportTimezone: "UTC"}
	err := cfg.Validate("backup-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "BACKUP_DIR")
}

func TestValidate_Workers(t *testing.T) {
	cfg := defaults()
	cfg.DatabaseURL = "postgres://localhost/db"
	cfg.Workers = 0
	err := cfg.Validate("backup-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKUP_WORKERS")
}

func TestValidate_S3KeyPair(t *testing.T) {
	cfg := defaults()
	cfg.DatabaseURL = "postgres://localhost/db"
	cfg.S3Bucket = "archives"
	cfg.S3AccessKey = "key"
	err := cfg.Validate("backup-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_ACCESS_KEY and S3_SECRET_KEY must both be set")
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := defaults()
	cfg.DatabaseURL = "postgres://localhost/db"
	cfg.ExportTimezone = "Mars/Olympus"
	err := cfg.Validate("backup-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXPORT_TIMEZONE")
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := defaults()
	cfg.DatabaseURL = "postgres://localhost/db"

	assert.NoError(t, cfg.Validate("backup-api"))
	assert.NoError(t, cfg.Validate("backupctl"))
}

func TestValidate_LogFormat(t *testing.T) {
	cfg := defaults()
	cfg.DatabaseURL = "postgres://localhost/db"
	cfg.LogFormat = "xml"
	err := cfg.Validate("backupctl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}
