package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"suite-backup/internal/config"
	appErrors "suite-backup/internal/errors"
)

// LocalStore keeps offsite copies on a mounted share or a second disk
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the store, making sure the base directory exists
func NewLocalStore(cfg config.LocalConfig, prefix string) (*LocalStore, error) {
	if cfg.BasePath == "" {
		return nil, appErrors.NewConfigurationError("local remote store requires base_path", nil)
	}
	base := filepath.Join(cfg.BasePath, filepath.FromSlash(objectKey(prefix, "")))
	if err := os.MkdirAll(base, 0750); err != nil {
		return nil, appErrors.NewIOError(fmt.Sprintf("failed to create remote directory %s", base), err)
	}
	return &LocalStore{basePath: base}, nil
}

// Provider returns "local"
func (s *LocalStore) Provider() string { return "local" }

// Upload writes r to a temporary file and renames it into place
func (s *LocalStore) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := remoteName(name); err != nil {
		return err
	}
	target := filepath.Join(s.basePath, name)
	tmp := target + ".partial"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return appErrors.NewIOError(fmt.Sprintf("failed to create %s", tmp), err)
	}
	_, err = io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return appErrors.NewIOError(fmt.Sprintf("failed to upload %s", name), err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return appErrors.NewIOError(fmt.Sprintf("failed to finalize %s", name), err)
	}
	return nil
}

// Download copies a stored object into w
func (s *LocalStore) Download(ctx context.Context, name string, w io.Writer) error {
	if err := remoteName(name); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(s.basePath, name))
	if os.IsNotExist(err) {
		return appErrors.NewNotFoundError(fmt.Sprintf("remote object %s", name))
	}
	if err != nil {
		return appErrors.NewIOError(fmt.Sprintf("failed to open remote object %s", name), err)
	}
	defer f.Close()

	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: f}); err != nil {
		return appErrors.NewIOError(fmt.Sprintf("failed to download %s", name), err)
	}
	return nil
}

// List returns stored objects sorted by name
func (s *LocalStore) List(ctx context.Context) ([]RemoteObject, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, appErrors.NewIOError(fmt.Sprintf("failed to read remote directory %s", s.basePath), err)
	}

	objects := []RemoteObject{}
	for _, entry := range entries {
		if entry.IsDir() || remoteName(entry.Name()) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, RemoteObject{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

// Delete removes a stored object
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := remoteName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.basePath, name))
	if os.IsNotExist(err) {
		return appErrors.NewNotFoundError(fmt.Sprintf("remote object %s", name))
	}
	if err != nil {
		return appErrors.NewIOError(fmt.Sprintf("failed to delete remote object %s", name), err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
