package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"suite-backup/internal/archive"
	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/fsutil"
	"suite-backup/internal/sqldump"

	"github.com/google/uuid"
)

// createRequest describes one archive to build
type createRequest struct {
	Type         ArchiveType
	IncludeMedia bool
	IncludeLogs  bool
	Suffix       string
	Reason       string
	Source       string
}

func prefixFor(t ArchiveType) string {
	switch t {
	case TypeProject:
		return PrefixProject
	case TypeDatabase:
		return PrefixDatabase
	default:
		return PrefixComplete
	}
}

// CreateProjectBackup archives the application tree
func (m *Manager) CreateProjectBackup(ctx context.Context, includeMedia, includeLogs bool) (*BackupArchive, error) {
	return m.runCreate(ctx, createRequest{Type: TypeProject, IncludeMedia: includeMedia, IncludeLogs: includeLogs})
}

// CreateDatabaseBackup archives a full dump of the database
func (m *Manager) CreateDatabaseBackup(ctx context.Context) (*BackupArchive, error) {
	return m.runCreate(ctx, createRequest{Type: TypeDatabase})
}

// CreateCompleteBackup archives the application tree and the database together
func (m *Manager) CreateCompleteBackup(ctx context.Context, includeMedia, includeLogs bool) (*BackupArchive, error) {
	return m.runCreate(ctx, createRequest{Type: TypeComplete, IncludeMedia: includeMedia, IncludeLogs: includeLogs})
}

// runCreate wraps a user-requested archive with audit, metrics, retention and
// the offsite copy. A PartialFailure still returns the archive.
func (m *Manager) runCreate(ctx context.Context, req createRequest) (*BackupArchive, error) {
	start := time.Now()
	operation := "create_" + string(req.Type) + "_backup"
	done := m.logger.LogOperationStart(operation, map[string]interface{}{
		"actor":         ActorFromContext(ctx),
		"include_media": req.IncludeMedia,
		"include_logs":  req.IncludeLogs,
	})

	created, err := m.createArchive(ctx, req)
	done(err)
	m.metrics.ObserveOperation("create", req.Type, err, time.Since(start))

	resource := ""
	details := map[string]interface{}{"type": req.Type}
	if created != nil {
		resource = created.Filename
		details["size"] = created.Size
		m.metrics.ObserveArchive(req.Type, created.Size)
	}
	if req.Type != TypeDatabase {
		details["include_media"] = req.IncludeMedia
		details["include_logs"] = req.IncludeLogs
	}
	m.record(ctx, operation, resource, err, details)

	if created == nil {
		return nil, err
	}

	if m.settings.AutoPush && m.remote != nil {
		if _, perr := m.PushBackup(ctx, created.Filename); perr != nil {
			m.logger.WithError(perr).WithField("archive", created.Filename).Warn("Offsite copy failed, the local archive is kept")
		}
	}
	if m.settings.AutoPrune {
		if _, perr := m.PruneBackups(ctx, false); perr != nil {
			m.logger.WithError(perr).Warn("Automatic retention failed")
		}
	}
	return created, err
}

// createArchive stages the archive contents in a unique temp directory, packs
// them and removes the staging directory whatever happens.
func (m *Manager) createArchive(ctx context.Context, req createRequest) (*BackupArchive, error) {
	if req.Type != TypeProject {
		if err := m.databaseReady(); err != nil {
			return nil, err
		}
	}
	if err := m.ensureDirs(); err != nil {
		return nil, err
	}

	now := m.now()
	name := m.catalog.NewName(prefixFor(req.Type), req.Suffix, now)
	staging := filepath.Join(m.settings.TempDir, strings.TrimSuffix(name, ArchiveExtension)+"_"+uuid.New().String())
	if err := os.MkdirAll(staging, 0750); err != nil {
		return nil, appErrors.NewIOError("cannot create staging directory", err)
	}
	defer m.eraser.Cleanup(ctx, staging)

	manifest := &Manifest{
		FormatVersion: ManifestFormat,
		Type:          req.Type,
		CreatedAt:     now,
		CreatedBy:     ActorFromContext(ctx),
		System:        SystemInfo{Name: m.settings.SystemName, Version: m.settings.SystemVersion},
		Host:          collectHostInfo(ctx),
		Compression:   string(m.settings.Compression),
		Reason:        req.Reason,
		SourceArchive: req.Source,
	}

	var partial error
	switch req.Type {
	case TypeProject:
		partial = m.stageFiles(ctx, staging, req, manifest)
	case TypeDatabase:
		partial = m.stageDatabase(ctx, staging, manifest)
	case TypeComplete:
		partial = m.stageFiles(ctx, filepath.Join(staging, ProjectDir), req, manifest)
		if partial == nil || appErrors.IsPartialFailure(partial) {
			if err := m.stageDatabase(ctx, filepath.Join(staging, DatabaseDir), manifest); err != nil {
				return nil, err
			}
		}
	}
	if partial != nil && !appErrors.IsPartialFailure(partial) {
		return nil, partial
	}

	if req.Type == TypeComplete {
		if err := writeReadme(staging, manifest); err != nil {
			return nil, err
		}
	}
	if err := writeManifest(staging, manifest); err != nil {
		return nil, err
	}

	dest := filepath.Join(m.settings.BackupDir, name)
	start := time.Now()
	stats, err := archive.PackDirectory(ctx, staging, dest, archive.Options{Method: m.settings.Compression, Level: m.settings.Level})
	if err != nil {
		return nil, err
	}
	m.logger.LogArchiveWritten(dest, stats.Entries(), stats.Size, time.Since(start))

	created := &BackupArchive{
		Filename:  name,
		Path:      dest,
		Size:      stats.Size,
		CreatedAt: now,
		Type:      req.Type,
		CreatedBy: manifest.CreatedBy,
		Reason:    req.Reason,
	}
	return created, partial
}

// stageFiles copies the filtered application tree into dir
func (m *Manager) stageFiles(ctx context.Context, dir string, req createRequest, manifest *Manifest) error {
	filter, err := projectFilter(req.IncludeMedia, req.IncludeLogs, m.settings.ExtraExclude)
	if err != nil {
		return appErrors.NewConfigurationError("invalid backup patterns", err)
	}

	stats, err := fsutil.CopyTree(ctx, m.settings.AppDir, dir, fsutil.CopyOptions{
		Filter:      filter,
		ExcludeDirs: innerDirs(m.settings.AppDir, m.settings.BackupDir, m.settings.TempDir),
		Logger:      m.logger,
	})
	manifest.Files = &FileSummary{Files: stats.Copied, Skipped: stats.Skipped, Bytes: stats.Bytes}
	if err != nil && !appErrors.IsPartialFailure(err) {
		return err
	}
	if stats.Copied == 0 && err == nil {
		m.logger.WithField("app_dir", m.settings.AppDir).Warn("No files matched the backup patterns")
	}
	return err
}

// stageDatabase writes the dump and the helper restore scripts into dir
func (m *Manager) stageDatabase(ctx context.Context, dir string, manifest *Manifest) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return appErrors.NewIOError("cannot create staging directory", err)
	}

	cfg := m.db.Config()
	manifest.Database = &DatabaseInfo{Host: cfg.Host, Port: cfg.Port, Database: cfg.Database, Charset: charsetOrDefault(cfg.Charset)}

	path := filepath.Join(dir, DumpFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return appErrors.NewIOError("cannot create dump file", err)
	}

	dumper := sqldump.NewDumper(m.logger)
	dumper.MaxRowsPerInsert = m.settings.MaxRowsPerInsert
	stats, err := dumper.Dump(ctx, m.db, f, sqldump.DumpInfo{
		SystemName:  m.settings.SystemName,
		Database:    cfg.Database,
		User:        manifest.CreatedBy,
		GeneratedAt: manifest.CreatedAt,
	})
	if err == nil {
		if serr := f.Sync(); serr != nil {
			err = appErrors.NewIOError("failed to flush dump file", serr)
		}
	}
	if cerr := f.Close(); cerr != nil && err == nil {
		err = appErrors.NewIOError("failed to close dump file", cerr)
	}
	if err != nil {
		return err
	}

	manifest.Dump = &DumpSummary{Tables: stats.Tables, Views: stats.Views, Rows: stats.Rows, Bytes: stats.Bytes}
	return writeRestoreScripts(dir, manifest)
}

// safetyBackup snapshots a resource right before a restore overwrites it
func (m *Manager) safetyBackup(ctx context.Context, t ArchiveType, source string) (string, error) {
	created, err := m.createArchive(ctx, createRequest{
		Type:         t,
		IncludeMedia: true,
		Suffix:       SafetyBackupSuffix,
		Reason:       fmt.Sprintf("automatic backup before restoring %s", source),
		Source:       source,
	})
	if created == nil {
		return "", err
	}
	if err != nil {
		m.logger.WithError(err).WithField("archive", created.Filename).Warn("Safety backup is incomplete")
	}
	m.logger.WithFields(map[string]interface{}{"archive": created.Filename, "type": t}).Info("Safety backup created")
	m.record(ctx, "safety_backup", created.Filename, err, map[string]interface{}{"type": t, "source": source})
	return created.Filename, nil
}
