package backup

import (
	"context"
	"mime"
	"strings"
	"time"
)

// Content types served for archives
const (
	ContentTypeZip    = "application/zip"
	ContentTypeBinary = "application/octet-stream"
)

func contentTypeFor(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ArchiveExtension) {
		return ContentTypeZip
	}
	return ContentTypeBinary
}

// ListBackups returns every archive, newest first
func (m *Manager) ListBackups(ctx context.Context) ([]BackupArchive, error) {
	archives, err := m.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	m.metrics.ObserveCatalog(archives)
	return archives, nil
}

// DeleteBackup removes one archive. Only bare archive names are accepted.
func (m *Manager) DeleteBackup(ctx context.Context, filename string) error {
	start := time.Now()
	size, err := m.catalog.Delete(filename)
	m.metrics.ObserveOperation("delete", InferType(filename), err, time.Since(start))
	m.record(ctx, "delete_backup", filename, err, map[string]interface{}{"size": size})
	return err
}

// DownloadBackup opens an archive for streaming. The caller must Close the result.
func (m *Manager) DownloadBackup(ctx context.Context, filename string) (*Download, error) {
	f, info, err := m.catalog.Open(filename)
	if err != nil {
		m.record(ctx, "download_backup", filename, err, nil)
		return nil, err
	}

	d := &Download{
		Filename:           info.Name(),
		Size:               info.Size(),
		ModTime:            info.ModTime(),
		ContentType:        contentTypeFor(info.Name()),
		ContentDisposition: mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}),
		Content:            f,
	}
	m.record(ctx, "download_backup", filename, nil, map[string]interface{}{"size": d.Size})
	return d, nil
}
