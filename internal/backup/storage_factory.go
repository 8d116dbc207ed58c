package backup

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"suite-backup/internal/config"
	appErrors "suite-backup/internal/errors"
)

// RemoteObject describes one offsite copy
type RemoteObject struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// RemoteStore keeps offsite copies of archives. Names are bare archive names,
// optionally with the encrypted extension; providers map them under their prefix.
type RemoteStore interface {
	Provider() string
	Upload(ctx context.Context, name string, r io.Reader, size int64) error
	Download(ctx context.Context, name string, w io.Writer) error
	List(ctx context.Context) ([]RemoteObject, error)
	Delete(ctx context.Context, name string) error
}

// NewRemoteStore creates the provider selected in cfg. An empty provider
// disables offsite copies and returns nil.
func NewRemoteStore(ctx context.Context, cfg config.RemoteConfig) (RemoteStore, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "local":
		return NewLocalStore(cfg.Local, cfg.Prefix)
	case "s3":
		return NewS3Store(cfg.S3, cfg.Prefix)
	case "azure":
		return NewAzureStore(cfg.Azure, cfg.Prefix)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCS, cfg.Prefix)
	default:
		return nil, appErrors.NewConfigurationError(fmt.Sprintf("unsupported remote provider: %s", cfg.Provider), nil)
	}
}

// remoteName checks that name is an archive name a store may hold
func remoteName(name string) error {
	return ValidateFilename(strings.TrimSuffix(name, EncryptedExtension))
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// objectName strips the prefix from key, reporting whether key is a direct child
func objectName(prefix, key string) (string, bool) {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		if !strings.HasPrefix(key, prefix+"/") {
			return "", false
		}
		key = strings.TrimPrefix(key, prefix+"/")
	}
	if key == "" || strings.Contains(key, "/") {
		return "", false
	}
	if remoteName(key) != nil {
		return "", false
	}
	return key, true
}
