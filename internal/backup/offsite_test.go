package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsite_NotConfigured(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	_, err := env.mgr.PushBackup(ctx, "proyecto_backup_2024-01-01_00-00-00.zip")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConfiguration))
	_, err = env.mgr.RemoteList(ctx)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConfiguration))
	_, err = env.mgr.FetchBackup(ctx, "proyecto_backup_2024-01-01_00-00-00.zip")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConfiguration))
	assert.False(t, env.mgr.HasRemote())
}

func TestOffsite_PlainRoundTrip(t *testing.T) {
	remoteDir := t.TempDir()
	store, err := NewLocalStore(configLocal(remoteDir), "site-a")
	require.NoError(t, err)
	env := newTestEnv(t, false, WithRemote(store))
	ctx := context.Background()

	created, err := env.mgr.CreateProjectBackup(ctx, false, false)
	require.NoError(t, err)

	obj, err := env.mgr.PushBackup(ctx, created.Filename)
	require.NoError(t, err)
	assert.Equal(t, created.Filename, obj.Name)
	assert.Equal(t, logging.AuditSuccess, env.audit.last("push_backup").Result)

	objects, err := env.mgr.RemoteList(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, created.Size, objects[0].Size)

	// the local copy must go before the remote one can come back
	_, err = env.mgr.FetchBackup(ctx, created.Filename)
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))

	original, err := os.ReadFile(created.Path)
	require.NoError(t, err)
	require.NoError(t, env.mgr.DeleteBackup(ctx, created.Filename))

	fetched, err := env.mgr.FetchBackup(ctx, created.Filename)
	require.NoError(t, err)
	assert.Equal(t, created.Filename, fetched.Filename)
	assert.Equal(t, TypeProject, fetched.Type)
	restored, err := os.ReadFile(fetched.Path)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
	assert.NoFileExists(t, fetched.Path+".partial")
}

func TestOffsite_EncryptedRoundTrip(t *testing.T) {
	remoteDir := t.TempDir()
	store, err := NewLocalStore(configLocal(remoteDir), "")
	require.NoError(t, err)
	enc, err := NewEncryptor([]byte("offsite passphrase"))
	require.NoError(t, err)
	env := newTestEnv(t, false, WithRemote(store), WithEncryptor(enc))
	ctx := context.Background()

	created, err := env.mgr.CreateProjectBackup(ctx, false, false)
	require.NoError(t, err)
	original, err := os.ReadFile(created.Path)
	require.NoError(t, err)

	obj, err := env.mgr.PushBackup(ctx, created.Filename)
	require.NoError(t, err)
	assert.Equal(t, created.Filename+EncryptedExtension, obj.Name)

	sealed, err := os.ReadFile(filepath.Join(remoteDir, obj.Name))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(sealed, []byte(encryptionMagic)))
	assert.False(t, bytes.Contains(sealed, []byte("index.php")))

	require.NoError(t, env.mgr.DeleteBackup(ctx, created.Filename))
	fetched, err := env.mgr.FetchBackup(ctx, obj.Name)
	require.NoError(t, err)
	assert.Equal(t, created.Filename, fetched.Filename)
	restored, err := os.ReadFile(fetched.Path)
	require.NoError(t, err)
	assert.Equal(t, original, restored)

	for _, name := range leftovers(t, env.tempDir) {
		assert.False(t, strings.HasPrefix(name, "fetch_"), name)
	}
}

func TestOffsite_FetchRejectsBadObjects(t *testing.T) {
	remoteDir := t.TempDir()
	store, err := NewLocalStore(configLocal(remoteDir), "")
	require.NoError(t, err)
	ctx := context.Background()

	// not a zip once downloaded
	require.NoError(t, store.Upload(ctx, "proyecto_backup_2024-01-01_00-00-00.zip", strings.NewReader("garbage"), 7))
	// encrypted, but this manager has no key
	require.NoError(t, store.Upload(ctx, "proyecto_backup_2024-01-02_00-00-00.zip.enc", strings.NewReader("SBE1..."), 7))

	env := newTestEnv(t, false, WithRemote(store))

	_, err = env.mgr.FetchBackup(ctx, "proyecto_backup_2024-01-01_00-00-00.zip")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
	_, err = env.mgr.FetchBackup(ctx, "proyecto_backup_2024-01-02_00-00-00.zip.enc")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeConfiguration))
	_, err = env.mgr.FetchBackup(ctx, "missing_backup.zip")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeNotFound))
	_, err = env.mgr.FetchBackup(ctx, "../outside.zip")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))

	assert.Empty(t, catalogNames(t, env.mgr))
	entries, err := os.ReadDir(env.backupDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, logging.AuditFailure, env.audit.last("fetch_backup").Result)
}

func TestOffsite_FetchWrongKey(t *testing.T) {
	remoteDir := t.TempDir()
	store, err := NewLocalStore(configLocal(remoteDir), "")
	require.NoError(t, err)
	ctx := context.Background()

	writer, err := NewEncryptor([]byte("key one"))
	require.NoError(t, err)
	var sealed bytes.Buffer
	_, err = writer.Encrypt(&sealed, strings.NewReader("PK payload"))
	require.NoError(t, err)
	require.NoError(t, store.Upload(ctx, "database_backup_2024-01-01_00-00-00.zip.enc", &sealed, int64(sealed.Len())))

	reader, err := NewEncryptor([]byte("key two"))
	require.NoError(t, err)
	env := newTestEnv(t, false, WithRemote(store), WithEncryptor(reader))

	_, err = env.mgr.FetchBackup(ctx, "database_backup_2024-01-01_00-00-00.zip.enc")
	assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
	assert.Empty(t, catalogNames(t, env.mgr))
	assert.Empty(t, leftovers(t, env.tempDir))
}
