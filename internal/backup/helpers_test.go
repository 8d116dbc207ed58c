package backup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"suite-backup/internal/archive"
	"suite-backup/internal/config"
	"suite-backup/internal/database"
	"suite-backup/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var testDBConfig = database.Config{Host: "localhost", Port: 3306, User: "suite", Database: "sensores", Charset: "utf8mb4"}

// recordingSink keeps audit entries in memory
type recordingSink struct {
	mu      sync.Mutex
	entries []logging.AuditEntry
}

func (s *recordingSink) Record(_ context.Context, e logging.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, len(s.entries))
	for i, e := range s.entries {
		ops[i] = e.Operation
	}
	return ops
}

func (s *recordingSink) last(operation string) *logging.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Operation == operation {
			e := s.entries[i]
			return &e
		}
	}
	return nil
}

type testEnv struct {
	appDir    string
	backupDir string
	tempDir   string
	mgr       *Manager
	mock      sqlmock.Sqlmock
	cache     *database.QueryCache
	audit     *recordingSink
}

// sampleApp lays out a small dashboard installation
var sampleApp = map[string]string{
	"index.php":          "<?php echo 'v1';",
	"api/data.php":       "<?php // readings api",
	"includes/db.php":    "<?php // connection",
	"css/site.css":       "body{}",
	"media/logo.png":     "PNG",
	"logs/app.log":       "log line",
	"config.ini":         "[database]\nhost=localhost\n",
	"notes.tmp":          "scratch",
	".git/HEAD":          "ref: refs/heads/main",
	"configbackup/a.ini": "old=1",
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// newTestEnv builds a manager over a sample app. withDB attaches a sqlmock
// database whose expectations must match exactly and in order.
func newTestEnv(t *testing.T, withDB bool, opts ...Option) *testEnv {
	t.Helper()
	appDir := t.TempDir()
	writeFiles(t, appDir, sampleApp)

	env := &testEnv{
		appDir:    appDir,
		backupDir: filepath.Join(appDir, "backups"),
		tempDir:   filepath.Join(appDir, "temp_backup"),
		audit:     &recordingSink{},
	}

	var db Database
	if withDB {
		sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		t.Cleanup(func() { sqlDB.Close() })
		env.mock = mock
		env.cache = database.NewQueryCache(10, time.Minute)
		db = database.NewHandle(sqlDB, testDBConfig, env.cache, nil)
	}

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	settings := Settings{
		AppDir:      appDir,
		BackupDir:   env.backupDir,
		TempDir:     env.tempDir,
		LogDir:      filepath.Join(appDir, "logs"),
		EntryPoint:  "index.php",
		SystemName:  "Suite Ambiental",
		Compression: archive.MethodDeflate,
	}
	allOpts := append([]Option{WithAudit(env.audit), WithClock(clock)}, opts...)
	mgr, err := NewManager(settings, db, nil, allOpts...)
	require.NoError(t, err)
	env.mgr = mgr
	return env
}

// expectDump registers the queries a dump of one small table issues
func expectDump(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SHOW FULL TABLES").WillReturnRows(
		sqlmock.NewRows([]string{"Tables_in_sensores", "Table_type"}).AddRow("lecturas", "BASE TABLE"))
	mock.ExpectQuery("SHOW CREATE TABLE `lecturas`").WillReturnRows(
		sqlmock.NewRows([]string{"Table", "Create Table"}).AddRow("lecturas", "CREATE TABLE `lecturas` (`id` int)"))
	mock.ExpectQuery("SELECT * FROM `lecturas`").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))
}

func expectSessionReset(mock sqlmock.Sqlmock, failed bool) {
	if failed {
		mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("SET AUTOCOMMIT = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET FOREIGN_KEY_CHECKS = 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET SQL_MODE = @@GLOBAL.sql_mode").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET time_zone = @@GLOBAL.time_zone").WillReturnResult(sqlmock.NewResult(0, 0))
}

// buildArchive packs files (and a manifest when m is set) into dir/name
func buildArchive(t *testing.T, dir, name string, m *Manifest, files map[string]string) string {
	t.Helper()
	staging := t.TempDir()
	writeFiles(t, staging, files)
	if m != nil {
		require.NoError(t, writeManifest(staging, m))
	}
	require.NoError(t, os.MkdirAll(dir, 0755))
	dest := filepath.Join(dir, name)
	_, err := archive.PackDirectory(context.Background(), staging, dest, archive.Options{Method: archive.MethodDeflate})
	require.NoError(t, err)
	return dest
}

func testManifest(t ArchiveType, created time.Time) *Manifest {
	return &Manifest{
		FormatVersion: ManifestFormat,
		Type:          t,
		CreatedAt:     created,
		CreatedBy:     "tester",
		System:        SystemInfo{Name: "Suite Ambiental"},
	}
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	names, err := archive.Names(path)
	require.NoError(t, err)
	return names
}

// leftovers lists what remains in the temp directory
func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func catalogNames(t *testing.T, mgr *Manager) []string {
	t.Helper()
	archives, err := mgr.ListBackups(context.Background())
	require.NoError(t, err)
	names := make([]string, len(archives))
	for i, a := range archives {
		names[i] = a.Filename
	}
	return names
}

func configLocal(dir string) config.LocalConfig {
	return config.LocalConfig{BasePath: dir}
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustReadEntry(t *testing.T, path, name string) []byte {
	t.Helper()
	data, err := archive.ReadFile(path, name)
	require.NoError(t, err)
	return data
}
