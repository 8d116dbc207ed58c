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

// restorePlan is everything preflight established before anything is touched
type restorePlan struct {
	archiveType ArchiveType
	manifest    *Manifest
	filesRoot   string
	dumpPath    string
	sqlText     string
}

// RestoreBackup extracts an archive and puts its contents back in place.
// Every check runs before the first write; each resource being overwritten
// gets a safety backup first. Files go before the database. A PartialFailure
// means some files were skipped; the result is still filled in.
func (m *Manager) RestoreBackup(ctx context.Context, filename string) (result *RestoreResult, err error) {
	start := time.Now()
	result = &RestoreResult{Filename: filename}
	done := m.logger.LogOperationStart("restore_backup", map[string]interface{}{
		"archive": filename,
		"actor":   ActorFromContext(ctx),
	})
	defer func() {
		elapsed := time.Since(start)
		result.Duration = elapsed.Round(time.Millisecond).String()
		done(err)
		m.metrics.ObserveOperation("restore", result.Type, err, elapsed)
		m.record(ctx, "restore_backup", filename, err, map[string]interface{}{
			"type":                   result.Type,
			"files_restored":         result.FilesRestored,
			"files_skipped":          result.FilesSkipped,
			"queries_executed":       result.QueriesExecuted,
			"files_safety_backup":    result.FilesSafetyBackup,
			"database_safety_backup": result.DatabaseSafetyBackup,
		})
	}()

	path, err := m.catalog.Resolve(filename)
	if err != nil {
		return result, err
	}
	if err := os.MkdirAll(m.settings.TempDir, 0750); err != nil {
		return result, appErrors.NewIOError("cannot create temp directory", err)
	}

	workDir := filepath.Join(m.settings.TempDir, "restore_"+uuid.New().String())
	defer m.eraser.Cleanup(ctx, workDir)

	if _, err := archive.Extract(ctx, path, workDir); err != nil {
		return result, err
	}

	plan, err := m.preflight(filename, workDir)
	if err != nil {
		return result, err
	}
	result.Type = plan.archiveType

	// complete restores snapshot the database before the files change
	safetyDatabase := func(ctx context.Context) (string, error) {
		return m.safetyBackup(ctx, TypeDatabase, filename)
	}
	if plan.archiveType == TypeComplete {
		name, err := safetyDatabase(ctx)
		if err != nil {
			return result, appErrors.NewFatalRestoreError("database safety backup failed, nothing was restored", err)
		}
		result.DatabaseSafetyBackup = name
		safetyDatabase = func(context.Context) (string, error) { return name, nil }
	}

	var partial error
	if plan.filesRoot != "" {
		partial = m.restoreFiles(ctx, filename, plan, result)
		if partial != nil && !appErrors.IsPartialFailure(partial) {
			return result, partial
		}
	}

	if plan.dumpPath != "" {
		if err := m.restoreDatabase(ctx, plan, safetyDatabase, result); err != nil {
			return result, err
		}
	}
	return result, partial
}

// preflight classifies the extracted archive and checks that it can be restored
func (m *Manager) preflight(filename, workDir string) (*restorePlan, error) {
	t, manifest, err := m.catalog.Classify(filename, workDir)
	if err != nil {
		return nil, err
	}
	plan := &restorePlan{archiveType: t, manifest: manifest}

	if t == TypeProject || t == TypeComplete {
		root, err := findProjectRoot(workDir, m.settings.EntryPoint, t, manifest)
		if err != nil {
			return nil, err
		}
		plan.filesRoot = root
	}

	if t == TypeDatabase || t == TypeComplete {
		dump, err := findDump(workDir)
		if err != nil {
			return nil, err
		}
		if err := m.databaseReady(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(dump)
		if err != nil {
			return nil, appErrors.NewIOError("cannot read database dump", err)
		}
		plan.dumpPath = dump
		plan.sqlText = string(data)
	}
	return plan, nil
}

// findProjectRoot locates the application tree inside an extracted archive.
// Archives with a manifest use the layout this engine writes: the root for
// project archives and proyecto/ for complete ones. Older archives without a
// manifest are probed for the entry point in www/, proyecto/ and the root.
func findProjectRoot(workDir, entryPoint string, t ArchiveType, manifest *Manifest) (string, error) {
	candidates := []string{"www", ProjectDir, ""}
	if manifest != nil {
		candidates = []string{""}
		if t == TypeComplete {
			candidates = []string{ProjectDir}
		}
	}

	for _, candidate := range candidates {
		root := filepath.Join(workDir, candidate)
		if info, err := os.Stat(filepath.Join(root, entryPoint)); err == nil && info.Mode().IsRegular() {
			return root, nil
		}
	}

	where := fmt.Sprintf("www/, %s/ or its root", ProjectDir)
	if manifest != nil {
		where = "its root"
		if t == TypeComplete {
			where = ProjectDir + "/"
		}
	}
	return "", appErrors.NewFatalRestoreError(
		fmt.Sprintf("archive does not contain %s in %s", entryPoint, where), nil).
		WithUserMessage("The archive does not contain a valid application tree")
}

// findDump requires exactly one .sql file in the archive root or database/
func findDump(workDir string) (string, error) {
	var found []string
	for _, dir := range []string{workDir, filepath.Join(workDir, DatabaseDir)} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
				found = append(found, filepath.Join(dir, e.Name()))
			}
		}
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", appErrors.NewFatalRestoreError("archive does not contain a database dump", nil).
			WithUserMessage("No .sql file was found in the archive")
	default:
		return "", appErrors.NewFatalRestoreError(fmt.Sprintf("archive contains %d database dumps, expected one", len(found)), nil).
			WithContext("dumps", found)
	}
}

func (m *Manager) restoreFiles(ctx context.Context, filename string, plan *restorePlan, result *RestoreResult) error {
	name, err := m.safetyBackup(ctx, TypeProject, filename)
	if err != nil {
		return appErrors.NewFatalRestoreError("file safety backup failed, no files were restored", err)
	}
	result.FilesSafetyBackup = name

	stats, err := fsutil.CopyTree(ctx, plan.filesRoot, m.settings.AppDir, fsutil.CopyOptions{
		ExcludeDirs: innerDirs(m.settings.AppDir, m.settings.BackupDir, m.settings.TempDir, m.settings.LogDir),
		RestoreMode: true,
		Logger:      m.logger,
	})
	result.FilesRestored = stats.Copied
	result.FilesSkipped = stats.Skipped
	if appErrors.IsPartialFailure(err) {
		result.warn(fmt.Sprintf("%d files could not be restored", stats.Skipped))
	}
	return err
}

func (m *Manager) restoreDatabase(ctx context.Context, plan *restorePlan, safety sqldump.SafetyBackupFunc, result *RestoreResult) error {
	restorer := sqldump.NewRestorer(m.logger, safety)
	stats, err := restorer.Restore(ctx, m.db, plan.sqlText)
	if stats != nil {
		result.QueriesExecuted = stats.Executed
		if stats.SafetyBackup != "" {
			result.DatabaseSafetyBackup = stats.SafetyBackup
		}
		m.metrics.ObserveStatements(stats.Executed)
	}
	// cached reads may predate the restore, even a failed one
	m.db.PurgeCache()
	if err != nil && result.DatabaseSafetyBackup != "" {
		result.warn(fmt.Sprintf("the database can be recovered from %s", result.DatabaseSafetyBackup))
	}
	return err
}
