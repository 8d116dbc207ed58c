package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTemplate_LoadsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigName)

	require.NoError(t, WriteTemplate(path, false))
	err := WriteTemplate(path, false)
	require.Error(t, err, "existing file is not overwritten")
	require.NoError(t, WriteTemplate(path, true))

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sensores", cfg.Database.Database)
	assert.Equal(t, "", cfg.Database.Password)
	assert.Equal(t, "deflate", cfg.Backup.Compression)
	assert.Empty(t, cfg.Backup.ExtraExclude)
	assert.Equal(t, "X-Remote-User", cfg.Server.ActorHeader)
}

func TestEnvironmentVariables(t *testing.T) {
	vars := EnvironmentVariables()
	assert.Contains(t, vars, "SUITE_BACKUP_DATABASE_PASSWORD")
	assert.Contains(t, vars, "SUITE_BACKUP_REMOTE_S3_BUCKET")
	assert.Contains(t, vars, "SUITE_BACKUP_RETENTION_KEEP_LAST")
	for _, v := range vars {
		assert.True(t, strings.HasPrefix(v, EnvPrefix+"_"), v)
	}
}

func TestConfigYAML_MasksSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Database.Password = "hunter2"
	cfg.Remote.S3.SecretKey = "abc"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "secret_key: abc")
	assert.Contains(t, string(out), "backup_dir:")
}

func TestCheckHealth(t *testing.T) {
	dir := t.TempDir()
	cfg := validConfig(t)
	cfg.Paths.AppDir = dir
	cfg.Paths.BackupDir = filepath.Join(dir, "backups")
	cfg.Paths.TempDir = filepath.Join(dir, "temp_backup")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	t.Run("missing directories without create", func(t *testing.T) {
		result := cfg.CheckHealth(false)
		assert.Equal(t, HealthUnhealthy, result.OverallHealth)
		assert.Equal(t, HealthUnhealthy, result.ComponentStatus["backup_dir"])
	})

	t.Run("create makes directories", func(t *testing.T) {
		result := cfg.CheckHealth(true)
		assert.Equal(t, HealthHealthy, result.ComponentStatus["backup_dir"])
		assert.Equal(t, HealthHealthy, result.ComponentStatus["temp_dir"])
		assert.DirExists(t, cfg.Paths.LogDir)
		assert.Equal(t, HealthDegraded, result.OverallHealth, "database not configured")
		assert.NotEmpty(t, result.Recommendations)
	})

	t.Run("encryption key missing", func(t *testing.T) {
		c := *cfg
		c.Encryption.Enabled = true
		c.Encryption.KeyEnvVar = "SUITE_BACKUP_TEST_KEY_UNSET"
		os.Unsetenv(c.Encryption.KeyEnvVar)

		result := c.CheckHealth(true)
		assert.Equal(t, HealthUnhealthy, result.ComponentStatus["encryption"])
		assert.Equal(t, HealthUnhealthy, result.OverallHealth)
	})

	t.Run("configured database", func(t *testing.T) {
		c := *cfg
		c.Database.Host = "localhost"
		c.Database.User = "suite"
		c.Database.Database = "sensores"

		result := c.CheckHealth(true)
		assert.Equal(t, HealthHealthy, result.ComponentStatus["database"])
		assert.Equal(t, HealthHealthy, result.OverallHealth)
	})
}

func TestRecordDatabase(t *testing.T) {
	result := validConfig(t).CheckHealth(false)

	result.RecordDatabase("8.0.36", 12, nil)
	require.NotNil(t, result.Database)
	assert.Equal(t, "8.0.36", result.Database.Version)
	assert.Equal(t, 12, result.Database.Tables)
	assert.Equal(t, HealthHealthy, result.ComponentStatus["database"])

	failed := validConfig(t).CheckHealth(false)
	failed.RecordDatabase("", 0, errors.New("dial tcp: connection refused"))
	assert.Nil(t, failed.Database)
	assert.Equal(t, HealthUnhealthy, failed.ComponentStatus["database"])
	assert.Equal(t, HealthUnhealthy, failed.OverallHealth)
	assert.Contains(t, strings.Join(failed.Issues, "\n"), "connection refused")
}
