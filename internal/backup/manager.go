package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"suite-backup/internal/archive"
	"suite-backup/internal/config"
	"suite-backup/internal/database"
	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/fsutil"
	"suite-backup/internal/logging"
	"suite-backup/internal/sqldump"
)

// Settings is the part of the configuration the engine works from
type Settings struct {
	AppDir    string
	BackupDir string
	TempDir   string
	LogDir    string

	EntryPoint    string
	SystemName    string
	SystemVersion string

	Compression      archive.Method
	Level            int
	MaxRowsPerInsert int
	ExtraExclude     []string

	KeepLast  int
	MaxAge    time.Duration
	AutoPrune bool
	AutoPush  bool
	Encrypt   bool
}

// NewSettings extracts the engine settings from a loaded configuration
func NewSettings(cfg *config.Config) (Settings, error) {
	method, err := archive.ParseMethod(cfg.Backup.Compression)
	if err != nil {
		return Settings{}, appErrors.NewConfigurationError("invalid backup.compression", err)
	}
	return Settings{
		AppDir:           cfg.Paths.AppDir,
		BackupDir:        cfg.Paths.BackupDir,
		TempDir:          cfg.Paths.TempDir,
		LogDir:           cfg.Paths.LogDir,
		EntryPoint:       cfg.Backup.EntryPoint,
		SystemName:       cfg.System.Name,
		SystemVersion:    cfg.System.Version,
		Compression:      method,
		Level:            cfg.Backup.Level,
		MaxRowsPerInsert: cfg.Backup.MaxRowsPerInsert,
		ExtraExclude:     cfg.Backup.ExtraExclude,
		KeepLast:         cfg.Retention.KeepLast,
		MaxAge:           cfg.Retention.MaxAge,
		AutoPrune:        cfg.Retention.AutoPrune,
		AutoPush:         cfg.Remote.AutoPush,
		Encrypt:          cfg.Encryption.Enabled,
	}, nil
}

func (s Settings) validate() error {
	switch {
	case s.AppDir == "":
		return appErrors.NewConfigurationError("application directory is not configured", nil)
	case s.BackupDir == "":
		return appErrors.NewConfigurationError("backup directory is not configured", nil)
	case s.TempDir == "":
		return appErrors.NewConfigurationError("temp directory is not configured", nil)
	}
	return nil
}

// Database is what the engine needs from a connection; *database.Handle satisfies it
type Database interface {
	sqldump.Queryer
	sqldump.Conner
	Config() database.Config
	PurgeCache()
}

// Manager runs every backup and restore operation
type Manager struct {
	settings  Settings
	db        Database
	catalog   *Catalog
	logger    *logging.Logger
	audit     logging.AuditSink
	metrics   *Metrics
	remote    RemoteStore
	encryptor *Encryptor
	eraser    *fsutil.Eraser
	now       func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithAudit records every operation in sink
func WithAudit(sink logging.AuditSink) Option {
	return func(m *Manager) { m.audit = sink }
}

// WithMetrics reports operations to metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithRemote enables offsite copies
func WithRemote(store RemoteStore) Option {
	return func(m *Manager) { m.remote = store }
}

// WithEncryptor encrypts offsite copies
func WithEncryptor(e *Encryptor) Option {
	return func(m *Manager) { m.encryptor = e }
}

// WithClock replaces time.Now, used for archive names and manifests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEraser replaces the temp directory eraser
func WithEraser(e *fsutil.Eraser) Option {
	return func(m *Manager) { m.eraser = e }
}

// NewManager creates a manager. db may be nil when no database is configured;
// database operations then fail with a ConfigurationError.
func NewManager(settings Settings, db Database, logger *logging.Logger, opts ...Option) (*Manager, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if settings.EntryPoint == "" {
		settings.EntryPoint = "index.php"
	}
	if settings.Compression == "" {
		settings.Compression = archive.MethodDeflate
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	m := &Manager{
		settings: settings,
		db:       db,
		catalog:  NewCatalog(settings.BackupDir, logger),
		logger:   logger,
		audit:    logging.NopAuditSink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.eraser == nil {
		m.eraser = fsutil.NewEraser(fsutil.DefaultEraserConfig(), logger)
	}
	if m.settings.Encrypt && m.remote != nil && m.encryptor == nil {
		return nil, appErrors.NewConfigurationError("encryption is enabled but no key was provided", nil)
	}
	return m, nil
}

// Catalog exposes the archive catalog
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Settings returns the settings the manager runs with
func (m *Manager) Settings() Settings {
	return m.settings
}

// HasRemote reports whether offsite copies are configured
func (m *Manager) HasRemote() bool {
	return m.remote != nil
}

func (m *Manager) databaseReady() error {
	if m.db == nil || !m.db.Config().Configured() {
		return appErrors.NewConfigurationError("database connection is not configured", nil).
			WithUserMessage("Configure the [database] section before backing up or restoring the database")
	}
	return nil
}

func (m *Manager) ensureDirs() error {
	for _, dir := range []string{m.settings.BackupDir, m.settings.TempDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return appErrors.NewIOError(fmt.Sprintf("cannot create directory %s", dir), err)
		}
	}
	return nil
}

// record writes the audit entry for a finished operation. Audit failures are
// logged; they never change the operation's outcome.
func (m *Manager) record(ctx context.Context, operation, resource string, err error, details map[string]interface{}) {
	result := logging.AuditSuccess
	switch {
	case err == nil:
	case appErrors.IsPartialFailure(err):
		result = logging.AuditPartial
	default:
		result = logging.AuditFailure
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	if err != nil {
		details["error"] = err.Error()
	}

	entry := logging.AuditEntry{
		Timestamp: m.now(),
		Actor:     ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    result,
		Details:   details,
	}
	if aerr := m.audit.Record(context.WithoutCancel(ctx), entry); aerr != nil {
		m.logger.WithError(aerr).WithField("operation", operation).Warn("Failed to write audit entry")
	}
}
