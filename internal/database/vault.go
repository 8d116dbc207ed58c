package database

import (
	"context"
	"fmt"
	"os"

	appErrors "suite-backup/internal/errors"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig locates database credentials in HashiCorp Vault
type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
	Token   string `mapstructure:"token" yaml:"token"`
	// Path is read with the logical API, e.g. "secret/data/suite/db" or "database/creds/backup".
	Path string `mapstructure:"path" yaml:"path"`
}

// VaultCredentials reads a username/password pair from Vault
type VaultCredentials struct {
	api  *vault.Client
	path string
}

// NewVaultCredentials creates a Vault client. VAULT_ADDR and VAULT_TOKEN are
// used when address or token are empty.
func NewVaultCredentials(cfg VaultConfig) (*VaultCredentials, error) {
	if cfg.Path == "" {
		return nil, appErrors.NewConfigurationError("vault path is required", nil)
	}

	apiCfg := vault.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}

	api, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, appErrors.NewConfigurationError("failed to create Vault API client", err)
	}

	token := cfg.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token != "" {
		api.SetToken(token)
	}

	return &VaultCredentials{api: api, path: cfg.Path}, nil
}

// Apply overwrites the user and password of dbCfg with the secret at the configured path.
// KV v2 secrets nest their payload under "data"; both layouts are accepted.
func (v *VaultCredentials) Apply(ctx context.Context, dbCfg *Config) error {
	secret, err := v.api.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return appErrors.NewConfigurationError(fmt.Sprintf("failed to read vault secret %s", v.path), err)
	}
	if secret == nil || secret.Data == nil {
		return appErrors.NewConfigurationError(fmt.Sprintf("no data found at vault path %s", v.path), nil)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	user, userOK := data["username"].(string)
	pass, passOK := data["password"].(string)
	if !userOK || !passOK || user == "" {
		return appErrors.NewConfigurationError(fmt.Sprintf("invalid credential format at vault path %s", v.path), nil)
	}

	dbCfg.User = user
	dbCfg.Password = pass
	return nil
}
