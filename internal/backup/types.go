package backup

import (
	"context"
	"io"
	"time"
)

// ArchiveType says what an archive holds
type ArchiveType string

const (
	TypeProject  ArchiveType = "project"
	TypeDatabase ArchiveType = "database"
	TypeComplete ArchiveType = "complete"
)

// Valid reports whether t is one of the known archive types
func (t ArchiveType) Valid() bool {
	switch t {
	case TypeProject, TypeDatabase, TypeComplete:
		return true
	}
	return false
}

// Filename prefixes; the timestamp and optional suffix follow
const (
	PrefixProject  = "proyecto_backup"
	PrefixDatabase = "database_backup"
	PrefixComplete = "complete_backup"

	// legacyDatabasePrefix is still recognized when classifying
	legacyDatabasePrefix = "db_backup"

	TimestampLayout    = "2006-01-02_15-04-05"
	SafetyBackupSuffix = "pre_restore"
	ArchiveExtension   = ".zip"
)

// Entry names inside archives
const (
	ManifestJSON = "backup_info.json"
	ManifestText = "backup_info.txt"
	DumpFile     = "database_dump.sql"
	RestoreShell = "restore.sh"
	RestoreBatch = "restore.bat"
	ReadmeFile   = "README.md"
	ProjectDir   = "proyecto"
	DatabaseDir  = "database"
)

// ManifestFormat is bumped when the manifest layout changes incompatibly
const ManifestFormat = 1

// BackupArchive is one archive in the backup directory
type BackupArchive struct {
	Filename  string      `json:"filename" yaml:"filename"`
	Path      string      `json:"-" yaml:"-"`
	Size      int64       `json:"size" yaml:"size"`
	CreatedAt time.Time   `json:"created_at" yaml:"created_at"`
	Type      ArchiveType `json:"type" yaml:"type"`
	CreatedBy string      `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	Reason    string      `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// RestoreResult describes what a restore changed
type RestoreResult struct {
	Filename             string      `json:"filename" yaml:"filename"`
	Type                 ArchiveType `json:"type" yaml:"type"`
	FilesRestored        int         `json:"files_restored" yaml:"files_restored"`
	FilesSkipped         int         `json:"files_skipped" yaml:"files_skipped"`
	FilesSafetyBackup    string      `json:"files_safety_backup,omitempty" yaml:"files_safety_backup,omitempty"`
	QueriesExecuted      int         `json:"queries_executed" yaml:"queries_executed"`
	DatabaseSafetyBackup string      `json:"database_safety_backup,omitempty" yaml:"database_safety_backup,omitempty"`
	Warnings             []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration             string      `json:"duration" yaml:"duration"`
}

func (r *RestoreResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Download is an open archive ready to be streamed to a client. The caller closes Content.
type Download struct {
	Filename           string
	Size               int64
	ModTime            time.Time
	ContentType        string
	ContentDisposition string
	Content            io.ReadSeekCloser
}

// Close releases the archive file
func (d *Download) Close() error {
	if d == nil || d.Content == nil {
		return nil
	}
	return d.Content.Close()
}

// PruneResult lists the archives retention removed
type PruneResult struct {
	Deleted []string `json:"deleted" yaml:"deleted"`
	Kept    int      `json:"kept" yaml:"kept"`
	Freed   int64    `json:"freed_bytes" yaml:"freed_bytes"`
	DryRun  bool     `json:"dry_run" yaml:"dry_run"`
}

type actorKey struct{}

// DefaultActor is used when no user identity travels with the request
const DefaultActor = "system"

// WithActor stores the acting user's identity on ctx
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user, or DefaultActor
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}
