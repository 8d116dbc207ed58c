// Package config loads the engine configuration from config.ini or YAML,
// environment variables and defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"suite-backup/internal/database"
	appErrors "suite-backup/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Config is the complete engine configuration
type Config struct {
	Paths      PathsConfig          `mapstructure:"paths" yaml:"paths"`
	Database   database.Config      `mapstructure:"database" yaml:"database" validate:"-"`
	System     SystemConfig         `mapstructure:"system" yaml:"system"`
	Backup     BackupConfig         `mapstructure:"backup" yaml:"backup"`
	Retention  RetentionConfig      `mapstructure:"retention" yaml:"retention"`
	Remote     RemoteConfig         `mapstructure:"remote" yaml:"remote"`
	Encryption EncryptionConfig     `mapstructure:"encryption" yaml:"encryption"`
	Vault      database.VaultConfig `mapstructure:"vault" yaml:"vault"`
	Log        LogConfig            `mapstructure:"log" yaml:"log"`
	Server     ServerConfig         `mapstructure:"server" yaml:"server"`
}

// PathsConfig locates the application tree and the engine's working directories.
// Relative backup, temp and log directories are resolved against AppDir.
type PathsConfig struct {
	AppDir    string `mapstructure:"app_dir" yaml:"app_dir" validate:"required"`
	BackupDir string `mapstructure:"backup_dir" yaml:"backup_dir" validate:"required"`
	TempDir   string `mapstructure:"temp_dir" yaml:"temp_dir" validate:"required"`
	LogDir    string `mapstructure:"log_dir" yaml:"log_dir"`
}

// SystemConfig names the installation in manifests and dump headers
type SystemConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
}

// BackupConfig controls archive creation
type BackupConfig struct {
	Compression      string   `mapstructure:"compression" yaml:"compression" validate:"oneof=deflate zstd store"`
	Level            int      `mapstructure:"level" yaml:"level" validate:"min=-1,max=22"`
	EntryPoint       string   `mapstructure:"entry_point" yaml:"entry_point" validate:"required"`
	MaxRowsPerInsert int      `mapstructure:"max_rows_per_insert" yaml:"max_rows_per_insert" validate:"min=0"`
	ExtraExclude     []string `mapstructure:"extra_exclude" yaml:"extra_exclude"`
}

// RetentionConfig bounds how many archives are kept
type RetentionConfig struct {
	KeepLast  int           `mapstructure:"keep_last" yaml:"keep_last" validate:"min=0"`
	MaxAge    time.Duration `mapstructure:"max_age" yaml:"max_age" validate:"min=0"`
	AutoPrune bool          `mapstructure:"auto_prune" yaml:"auto_prune"`
}

// RemoteConfig selects where offsite copies go; an empty provider disables them
type RemoteConfig struct {
	Provider string      `mapstructure:"provider" yaml:"provider" validate:"omitempty,oneof=local s3 azure gcs"`
	AutoPush bool        `mapstructure:"auto_push" yaml:"auto_push"`
	Prefix   string      `mapstructure:"prefix" yaml:"prefix"`
	Local    LocalConfig `mapstructure:"local" yaml:"local"`
	S3       S3Config    `mapstructure:"s3" yaml:"s3"`
	Azure    AzureConfig `mapstructure:"azure" yaml:"azure"`
	GCS      GCSConfig   `mapstructure:"gcs" yaml:"gcs"`
}

// LocalConfig for a mounted share or second disk
type LocalConfig struct {
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// S3Config for Amazon S3 or a compatible endpoint
type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName   string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey    string `mapstructure:"account_key" yaml:"account_key"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
}

// EncryptionConfig for offsite copies
type EncryptionConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	KeySource string `mapstructure:"key_source" yaml:"key_source" validate:"oneof=env file"`
	KeyEnvVar string `mapstructure:"key_env_var" yaml:"key_env_var"`
	KeyPath   string `mapstructure:"key_path" yaml:"key_path"`
}

// LogConfig for the operational log and the audit trail
type LogConfig struct {
	Level     string `mapstructure:"level" yaml:"level" validate:"oneof=quiet normal verbose debug"`
	Format    string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	File      string `mapstructure:"file" yaml:"file"`
	AuditFile string `mapstructure:"audit_file" yaml:"audit_file"`
}

// ServerConfig for the HTTP API
type ServerConfig struct {
	Listen       string        `mapstructure:"listen" yaml:"listen" validate:"required"`
	ActorHeader  string        `mapstructure:"actor_header" yaml:"actor_header" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Validate checks struct tags and the cross-field rules, returning one
// ConfigurationError that lists every problem found.
func (c *Config) Validate() error {
	var problems []string

	if err := validator.New().Struct(c); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return appErrors.NewConfigurationError("configuration validation failed", err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: failed '%s'", fieldPath(fe.Namespace()), fe.Tag()))
		}
	}

	if c.Database.Configured() {
		if err := c.Database.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	problems = append(problems, c.Remote.problems()...)

	if c.Encryption.Enabled {
		switch c.Encryption.KeySource {
		case "env":
			if c.Encryption.KeyEnvVar == "" {
				problems = append(problems, "encryption.key_env_var: required when key_source is env")
			}
		case "file":
			if c.Encryption.KeyPath == "" {
				problems = append(problems, "encryption.key_path: required when key_source is file")
			}
		}
	}

	if c.Vault.Enabled && c.Vault.Path == "" {
		problems = append(problems, "vault.path: required when vault is enabled")
	}

	if len(problems) > 0 {
		return appErrors.NewConfigurationError(
			fmt.Sprintf("configuration validation failed: %s", strings.Join(problems, "; ")), nil).
			WithContext("problems", problems)
	}
	return nil
}

func (r RemoteConfig) problems() []string {
	var out []string
	require := func(value, name string) {
		if value == "" {
			out = append(out, fmt.Sprintf("remote.%s.%s: required when provider is %s", r.Provider, name, r.Provider))
		}
	}

	switch r.Provider {
	case "local":
		require(r.Local.BasePath, "base_path")
	case "s3":
		require(r.S3.Bucket, "bucket")
		require(r.S3.Region, "region")
	case "azure":
		require(r.Azure.AccountName, "account_name")
		require(r.Azure.AccountKey, "account_key")
		require(r.Azure.ContainerName, "container_name")
	case "gcs":
		require(r.GCS.Bucket, "bucket")
	}
	return out
}

// fieldPath turns "Config.Paths.AppDir" into "paths.appdir"
func fieldPath(namespace string) string {
	namespace = strings.TrimPrefix(namespace, "Config.")
	return strings.ToLower(namespace)
}

// ResolvePaths makes every directory absolute, anchoring relative ones at AppDir
func (c *Config) ResolvePaths() error {
	appDir, err := filepath.Abs(c.Paths.AppDir)
	if err != nil {
		return appErrors.NewConfigurationError("cannot resolve app_dir", err)
	}
	c.Paths.AppDir = appDir

	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(appDir, p)
	}
	c.Paths.BackupDir = anchor(c.Paths.BackupDir)
	c.Paths.TempDir = anchor(c.Paths.TempDir)
	c.Paths.LogDir = anchor(c.Paths.LogDir)
	if c.Log.File != "" {
		c.Log.File = anchor(c.Log.File)
	}
	if c.Log.AuditFile != "" {
		c.Log.AuditFile = anchor(c.Log.AuditFile)
	}
	return nil
}

const masked = "********"

// Masked returns a copy with every secret replaced, for display
func (c Config) Masked() Config {
	c.Database = c.Database.Redacted()
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}
	mask(&c.Remote.S3.AccessKey)
	mask(&c.Remote.S3.SecretKey)
	mask(&c.Remote.Azure.AccountKey)
	mask(&c.Vault.Token)
	return c
}
