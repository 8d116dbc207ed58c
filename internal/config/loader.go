package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"suite-backup/internal/database"
	appErrors "suite-backup/internal/errors"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// EnvPrefix prefixes every environment override, e.g. SUITE_BACKUP_DATABASE_HOST
const EnvPrefix = "SUITE_BACKUP"

// DefaultConfigName is looked up in the working directory when no file is given
const DefaultConfigName = "config.ini"

// Loader reads configuration into a Config
type Loader struct {
	viper *viper.Viper
	file  string
}

// NewLoader creates a loader with defaults and environment overrides registered
func NewLoader() *Loader {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{viper: v}
}

// Viper exposes the underlying instance so command flags can be bound to it
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

// SetDefaults registers every key so environment variables can override keys
// that the file does not mention.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.app_dir", ".")
	v.SetDefault("paths.backup_dir", "backups")
	v.SetDefault("paths.temp_dir", "temp_backup")
	v.SetDefault("paths.log_dir", "logs")

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.timeout", 30*time.Second)

	v.SetDefault("system.name", "Suite Ambiental")
	v.SetDefault("system.version", "")

	v.SetDefault("backup.compression", "deflate")
	v.SetDefault("backup.level", -1)
	v.SetDefault("backup.entry_point", "index.php")
	v.SetDefault("backup.max_rows_per_insert", 0)
	v.SetDefault("backup.extra_exclude", []string{})

	v.SetDefault("retention.keep_last", 0)
	v.SetDefault("retention.max_age", time.Duration(0))
	v.SetDefault("retention.auto_prune", false)

	v.SetDefault("remote.provider", "")
	v.SetDefault("remote.auto_push", false)
	v.SetDefault("remote.prefix", "suite-backups")
	v.SetDefault("remote.local.base_path", "")
	v.SetDefault("remote.s3.bucket", "")
	v.SetDefault("remote.s3.region", "us-east-1")
	v.SetDefault("remote.s3.endpoint", "")
	v.SetDefault("remote.s3.access_key", "")
	v.SetDefault("remote.s3.secret_key", "")
	v.SetDefault("remote.azure.account_name", "")
	v.SetDefault("remote.azure.account_key", "")
	v.SetDefault("remote.azure.container_name", "")
	v.SetDefault("remote.gcs.bucket", "")
	v.SetDefault("remote.gcs.credentials_path", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	v.SetDefault("remote.gcs.project_id", "")

	v.SetDefault("encryption.enabled", false)
	v.SetDefault("encryption.key_source", "env")
	v.SetDefault("encryption.key_env_var", EnvPrefix+"_ENCRYPTION_KEY")
	v.SetDefault("encryption.key_path", "")

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.path", "")

	v.SetDefault("log.level", "normal")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.audit_file", filepath.Join("logs", "backup_operations.log"))

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.actor_header", "X-Remote-User")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
}

// Load reads path (or config.ini in the working directory when path is
// empty and the file exists), applies environment overrides, resolves
// paths and validates. A missing explicit file is a ConfigurationError.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultConfigName); err == nil {
			path = DefaultConfigName
		}
	}

	if path != "" {
		if err := l.readFile(path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, appErrors.NewConfigurationError("failed to decode configuration", err)
	}

	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the file that was read, if any
func (l *Loader) ConfigFile() string {
	return l.file
}

func (l *Loader) readFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return appErrors.NewConfigurationError(fmt.Sprintf("configuration file %s not readable", path), err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ini":
		settings, err := readINI(path)
		if err != nil {
			return appErrors.NewConfigurationError(fmt.Sprintf("failed to parse %s", path), err)
		}
		if err := l.viper.MergeConfigMap(settings); err != nil {
			return appErrors.NewConfigurationError(fmt.Sprintf("failed to load %s", path), err)
		}
	default:
		l.viper.SetConfigFile(path)
		if err := l.viper.ReadInConfig(); err != nil {
			return appErrors.NewConfigurationError(fmt.Sprintf("failed to read %s", path), err)
		}
	}

	l.file = path
	return nil
}

// readINI turns INI sections into nested maps; "[remote.s3]" becomes remote -> s3.
// Keys are lower-cased to match viper's case-insensitive lookup.
func readINI(path string) (map[string]interface{}, error) {
	file, err := ini.LoadSources(ini.LoadOptions{UnescapeValueDoubleQuotes: true}, path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{})
	for _, section := range file.Sections() {
		if len(section.Keys()) == 0 {
			continue
		}

		target := out
		if section.Name() != ini.DefaultSection {
			for _, part := range strings.Split(strings.ToLower(section.Name()), ".") {
				next, ok := target[part].(map[string]interface{})
				if !ok {
					next = make(map[string]interface{})
					target[part] = next
				}
				target = next
			}
		}

		for _, key := range section.Keys() {
			target[strings.ToLower(key.Name())] = key.Value()
		}
	}
	return out, nil
}

// ApplyVault replaces the database credentials with the ones stored in Vault, when enabled
func (c *Config) ApplyVault(ctx context.Context) error {
	if !c.Vault.Enabled {
		return nil
	}
	creds, err := database.NewVaultCredentials(c.Vault)
	if err != nil {
		return err
	}
	return creds.Apply(ctx, &c.Database)
}
