package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"suite-backup/internal/archive"
	appErrors "suite-backup/internal/errors"

	"github.com/google/uuid"
)

func (m *Manager) remoteStore() (RemoteStore, error) {
	if m.remote == nil {
		return nil, appErrors.NewConfigurationError("no remote provider is configured", nil).
			WithUserMessage("Set remote.provider to push or fetch offsite copies")
	}
	return m.remote, nil
}

// PushBackup uploads an archive to the remote store, encrypting it when an
// encryptor is configured.
func (m *Manager) PushBackup(ctx context.Context, filename string) (obj *RemoteObject, err error) {
	start := time.Now()
	defer func() {
		m.metrics.ObserveRemote("push", err)
		details := map[string]interface{}{"encrypted": m.encryptor != nil}
		if m.remote != nil {
			details["provider"] = m.remote.Provider()
		}
		m.record(ctx, "push_backup", filename, err, details)
	}()

	store, err := m.remoteStore()
	if err != nil {
		return nil, err
	}
	f, info, err := m.catalog.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := info.Name()
	var body io.Reader = f
	size := info.Size()
	if m.encryptor != nil {
		name += EncryptedExtension
		size = -1
		pr, pw := io.Pipe()
		go func() {
			_, eerr := m.encryptor.Encrypt(pw, f)
			pw.CloseWithError(eerr)
		}()
		defer pr.Close()
		body = pr
	}

	if err := store.Upload(ctx, name, body, size); err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"archive":  filename,
		"object":   name,
		"provider": store.Provider(),
		"duration": time.Since(start).String(),
	}).Info("Offsite copy uploaded")
	return &RemoteObject{Name: name, Size: info.Size(), ModTime: m.now()}, nil
}

// RemoteList returns the offsite copies
func (m *Manager) RemoteList(ctx context.Context) ([]RemoteObject, error) {
	store, err := m.remoteStore()
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// FetchBackup downloads an offsite copy into the catalog, decrypting it when
// needed. An archive already present locally is never overwritten.
func (m *Manager) FetchBackup(ctx context.Context, name string) (fetched *BackupArchive, err error) {
	defer func() {
		m.metrics.ObserveRemote("fetch", err)
		m.record(ctx, "fetch_backup", name, err, nil)
	}()

	store, err := m.remoteStore()
	if err != nil {
		return nil, err
	}
	if err := remoteName(name); err != nil {
		return nil, err
	}
	encrypted := strings.HasSuffix(name, EncryptedExtension)
	if encrypted && m.encryptor == nil {
		return nil, appErrors.NewConfigurationError(fmt.Sprintf("%s is encrypted and no encryption key is configured", name), nil)
	}

	local := strings.TrimSuffix(name, EncryptedExtension)
	if err := m.ensureDirs(); err != nil {
		return nil, err
	}
	if _, err := m.catalog.Resolve(local); err == nil {
		return nil, appErrors.NewValidationError(fmt.Sprintf("backup %s already exists locally", local), nil).
			WithUserMessage("Delete the local archive first to fetch the remote copy")
	}

	dest := filepath.Join(m.settings.BackupDir, local)
	partial := dest + ".partial"
	if err := m.fetchInto(ctx, store, name, partial, encrypted); err != nil {
		os.Remove(partial)
		return nil, err
	}

	if _, err := archive.Names(partial); err != nil {
		os.Remove(partial)
		return nil, appErrors.NewValidationError(fmt.Sprintf("fetched %s is not a valid archive", name), err)
	}
	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return nil, appErrors.NewIOError(fmt.Sprintf("failed to finalize %s", local), err)
	}

	m.logger.WithFields(map[string]interface{}{"object": name, "archive": local}).Info("Offsite copy fetched")
	return m.catalog.Get(local)
}

func (m *Manager) fetchInto(ctx context.Context, store RemoteStore, name, partial string, encrypted bool) error {
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	if err != nil {
		return appErrors.NewIOError(fmt.Sprintf("cannot create %s", partial), err)
	}

	if !encrypted {
		err = store.Download(ctx, name, out)
	} else {
		// keep the ciphertext out of the catalog until it is verified
		tmp := filepath.Join(m.settings.TempDir, "fetch_"+uuid.New().String()+EncryptedExtension)
		err = m.downloadAndDecrypt(ctx, store, name, tmp, out)
		os.Remove(tmp)
	}
	if err == nil {
		if serr := out.Sync(); serr != nil {
			err = appErrors.NewIOError("failed to flush fetched archive", serr)
		}
	}
	if cerr := out.Close(); cerr != nil && err == nil {
		err = appErrors.NewIOError("failed to close fetched archive", cerr)
	}
	return err
}

func (m *Manager) downloadAndDecrypt(ctx context.Context, store RemoteStore, name, tmp string, out io.Writer) error {
	cipherFile, err := os.OpenFile(tmp, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0600)
	if err != nil {
		return appErrors.NewIOError("cannot create download buffer", err)
	}
	defer cipherFile.Close()

	if err := store.Download(ctx, name, cipherFile); err != nil {
		return err
	}
	if _, err := cipherFile.Seek(0, io.SeekStart); err != nil {
		return appErrors.NewIOError("cannot rewind download buffer", err)
	}
	_, err = m.encryptor.Decrypt(out, cipherFile)
	return err
}
