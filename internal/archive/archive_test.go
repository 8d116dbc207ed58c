package archive

import (
	"bytes"
	"context"
	"crypto/rand"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	appErrors "suite-backup/internal/errors"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree(t *testing.T) (string, map[string][]byte) {
	t.Helper()
	root := t.TempDir()

	blob := make([]byte, 64*1024)
	_, err := rand.Read(blob)
	require.NoError(t, err)

	files := map[string][]byte{
		"index.php":                   []byte("<?php require 'includes/db.php';"),
		"includes/db.php":             []byte("<?php // db"),
		"media/sensors/photo.bin":     blob,
		"api/v1/readings.php":         []byte("<?php echo json_encode([]);"),
		"proyecto/deep/nested/x.html": []byte("<html></html>"),
		"empty.txt":                   {},
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, content, 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "uploads", "empty"), 0755))
	return root, files
}

func relFiles(t *testing.T, root string) ([]string, []string) {
	t.Helper()
	var files, dirs []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		rel, _ := filepath.Rel(root, p)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, filepath.ToSlash(rel))
		} else {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	}))
	sort.Strings(files)
	sort.Strings(dirs)
	return files, dirs
}

func TestPackExtractRoundTrip(t *testing.T) {
	for _, method := range []Method{MethodDeflate, MethodZstd, MethodStore} {
		t.Run(string(method), func(t *testing.T) {
			src, contents := sampleTree(t)
			dest := filepath.Join(t.TempDir(), "backups", "proyecto_backup_2024-01-01_10-00-00.zip")

			stats, err := PackDirectory(context.Background(), src, dest, Options{Method: method})
			require.NoError(t, err)
			assert.Equal(t, len(contents), stats.Files)
			assert.Positive(t, stats.Size)
			assert.NoFileExists(t, dest+".partial")

			out := filepath.Join(t.TempDir(), "restore_x")
			extracted, err := Extract(context.Background(), dest, out)
			require.NoError(t, err)
			assert.Equal(t, stats.Files, extracted.Files)
			assert.Equal(t, stats.Dirs, extracted.Dirs)

			srcFiles, srcDirs := relFiles(t, src)
			outFiles, outDirs := relFiles(t, out)
			assert.Equal(t, srcFiles, outFiles)
			assert.Equal(t, srcDirs, outDirs, "empty directories must survive")

			for name, want := range contents {
				got, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(name)))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(want, got), "content of %s differs", name)
			}
		})
	}
}

func TestPackDirectoryEntryNames(t *testing.T) {
	src, _ := sampleTree(t)
	dest := filepath.Join(t.TempDir(), "a.zip")

	_, err := PackDirectory(context.Background(), src, dest, Options{})
	require.NoError(t, err)

	names, err := Names(dest)
	require.NoError(t, err)
	assert.Contains(t, names, "uploads/empty/")
	assert.Contains(t, names, "api/")
	assert.Contains(t, names, "api/v1/readings.php")
	for _, n := range names {
		assert.NotContains(t, n, "\\")
	}
}

func TestPackDirectoryWithLevel(t *testing.T) {
	src, _ := sampleTree(t)
	dest := filepath.Join(t.TempDir(), "fast.zip")

	_, err := PackDirectory(context.Background(), src, dest, Options{Method: MethodDeflate, Level: 1})
	require.NoError(t, err)
	data, err := ReadFile(dest, "index.php")
	require.NoError(t, err)
	assert.Equal(t, "<?php require 'includes/db.php';", string(data))
}

func TestPackDirectoryMissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "x.zip")
	_, err := PackDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), dest, Options{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrorTypeIO, appErrors.GetErrorType(err))
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".partial")
}

func TestPackDirectoryCanceledLeavesNothing(t *testing.T) {
	src, _ := sampleTree(t)
	dest := filepath.Join(t.TempDir(), "x.zip")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := PackDirectory(ctx, src, dest, Options{})
	require.Error(t, err)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".partial")
}

func writeRawZip(t *testing.T, names ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "crafted.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte("payload"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestExtractRejectsUnsafeEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"parent traversal", "../evil.txt"},
		{"nested traversal", "www/../../evil.txt"},
		{"absolute", "/etc/cron.d/evil"},
		{"windows traversal", "..\\..\\evil.txt"},
		{"drive letter", "C:/evil.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := writeRawZip(t, "index.php", tt.entry)
			parent := t.TempDir()
			dest := filepath.Join(parent, "out")

			_, err := Extract(context.Background(), archive, dest)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrorTypeValidation, appErrors.GetErrorType(err))
			assert.NoDirExists(t, dest, "nothing is written when any entry is unsafe")
			assert.NoFileExists(t, filepath.Join(parent, "evil.txt"))
		})
	}
}

func TestExtractAcceptsDotSegments(t *testing.T) {
	archive := writeRawZip(t, "www/./index.php", "www/a/../b.php")
	dest := t.TempDir()

	stats, err := Extract(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.FileExists(t, filepath.Join(dest, "www", "index.php"))
	assert.FileExists(t, filepath.Join(dest, "www", "b.php"))
}

func TestExtractNotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fake.zip")
	require.NoError(t, os.WriteFile(p, []byte("not a zip"), 0644))

	_, err := Extract(context.Background(), p, t.TempDir())
	assert.Equal(t, appErrors.ErrorTypeValidation, appErrors.GetErrorType(err))

	_, err = Extract(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), t.TempDir())
	assert.Equal(t, appErrors.ErrorTypeNotFound, appErrors.GetErrorType(err))
}

func TestReadFile(t *testing.T) {
	archive := writeRawZip(t, "backup_info.json", "database/database_dump.sql")

	data, err := ReadFile(archive, "backup_info.json")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = ReadFile(archive, "missing.json")
	assert.Equal(t, appErrors.ErrorTypeNotFound, appErrors.GetErrorType(err))
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"", MethodDeflate, false},
		{"Deflate", MethodDeflate, false},
		{" zstd ", MethodZstd, false},
		{"store", MethodStore, false},
		{"lz4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
