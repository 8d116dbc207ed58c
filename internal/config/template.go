package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	appErrors "suite-backup/internal/errors"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Template is a commented config.ini covering every section
const Template = `; Suite Ambiental backup engine configuration
; Every key can be overridden with SUITE_BACKUP_<SECTION>_<KEY>,
; e.g. SUITE_BACKUP_DATABASE_PASSWORD.

[paths]
app_dir = .                 ; application root that gets archived
backup_dir = backups        ; relative paths are resolved against app_dir
temp_dir = temp_backup
log_dir = logs

[database]
host = localhost
port = 3306
user = suite
password =                  ; prefer SUITE_BACKUP_DATABASE_PASSWORD or [vault]
name = sensores
charset = utf8mb4
timeout = 30s

[system]
name = Suite Ambiental
version =

[backup]
compression = deflate       ; deflate, zstd or store
level = -1                  ; -1 uses the codec default
entry_point = index.php     ; file restore.sh/restore.bat reference
max_rows_per_insert = 0     ; 0 emits one INSERT per table
extra_exclude =             ; comma separated glob patterns

[retention]
keep_last = 0               ; 0 keeps every archive
max_age = 0s                ; e.g. 720h
auto_prune = false

[remote]
provider =                  ; local, s3, azure or gcs; empty disables offsite copies
auto_push = false
prefix = suite-backups

[remote.local]
base_path =

[remote.s3]
bucket =
region = us-east-1
endpoint =
access_key =
secret_key =

[remote.azure]
account_name =
account_key =
container_name =

[remote.gcs]
bucket =
credentials_path =
project_id =

[encryption]
enabled = false             ; encrypts offsite copies only
key_source = env            ; env or file
key_env_var = SUITE_BACKUP_ENCRYPTION_KEY
key_path =

[vault]
enabled = false
address =
token =
path =                      ; e.g. secret/data/suite/db or database/creds/backup

[log]
level = normal              ; quiet, normal, verbose or debug
format = text               ; text or json
file =
audit_file = logs/backup_operations.log

[server]
listen = :8080
actor_header = X-Remote-User
read_timeout = 30s
write_timeout = 0s
`

// WriteTemplate writes Template to path, refusing to overwrite unless force is set
func WriteTemplate(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return appErrors.NewConfigurationError(fmt.Sprintf("%s already exists", path), nil).
			WithUserMessage("Use --force to overwrite the existing configuration file")
	}
	if err := os.WriteFile(path, []byte(Template), 0600); err != nil {
		return appErrors.NewConfigurationError(fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

// EnvironmentVariables lists every override the loader honors
func EnvironmentVariables() []string {
	v := viper.New()
	SetDefaults(v)

	keys := v.AllKeys()
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
	sort.Strings(out)
	return out
}

// YAML renders the configuration with secrets masked
func (c Config) YAML() ([]byte, error) {
	masked := c.Masked()
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, appErrors.NewConfigurationError("failed to render configuration", err)
	}
	return out, nil
}
