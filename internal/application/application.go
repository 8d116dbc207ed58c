// Package application assembles the backup engine from a loaded configuration.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"suite-backup/internal/backup"
	"suite-backup/internal/config"
	"suite-backup/internal/database"
	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
)

// Options adjust how the application is built
type Options struct {
	// LogOutput receives the operational log; nil means stderr
	LogOutput io.Writer
	// Registerer receives the engine metrics; nil disables them
	Registerer prometheus.Registerer
	// SkipDatabase builds the engine without connecting, for file-only operations
	SkipDatabase bool
	// Connector opens the database; nil uses database.Service
	Connector func(ctx context.Context, cfg database.Config, logger *logging.Logger) (backup.Database, io.Closer, error)
}

// Application owns the engine and the resources it holds open
type Application struct {
	config  *config.Config
	logger  *logging.Logger
	manager *backup.Manager
	db      backup.Database
	closers []io.Closer
}

// New builds the logger, audit trail, database handle, offsite store and
// backup manager described by cfg. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Application, err error) {
	logger, err := logging.NewLogger(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Format:  cfg.Log.Format,
		Output:  opts.LogOutput,
		LogFile: cfg.Log.File,
	})
	if err != nil {
		return nil, appErrors.NewConfigurationError("failed to create logger", err)
	}

	created := &Application{config: cfg, logger: logger, closers: []io.Closer{logger}}
	defer func() {
		if err != nil {
			created.Close()
		}
	}()

	settings, err := backup.NewSettings(cfg)
	if err != nil {
		return nil, err
	}

	managerOpts := []backup.Option{}
	if cfg.Log.AuditFile != "" {
		sink, err := logging.NewFileAuditSink(cfg.Log.AuditFile)
		if err != nil {
			return nil, appErrors.NewConfigurationError("failed to open audit log", err)
		}
		created.closers = append(created.closers, sink)
		managerOpts = append(managerOpts, backup.WithAudit(sink))
	}
	if opts.Registerer != nil {
		managerOpts = append(managerOpts, backup.WithMetrics(backup.NewMetrics(opts.Registerer)))
	}

	remote, err := backup.NewRemoteStore(ctx, cfg.Remote)
	if err != nil {
		return nil, err
	}
	if remote != nil {
		managerOpts = append(managerOpts, backup.WithRemote(remote))
		logger.WithField("provider", remote.Provider()).Debug("Offsite copies enabled")
	}

	if cfg.Encryption.Enabled {
		key, err := backup.LoadEncryptionKey(cfg.Encryption.KeySource, cfg.Encryption.KeyEnvVar, cfg.Encryption.KeyPath)
		if err != nil {
			return nil, err
		}
		enc, err := backup.NewEncryptor(key)
		if err != nil {
			return nil, err
		}
		managerOpts = append(managerOpts, backup.WithEncryptor(enc))
	}

	if !opts.SkipDatabase && cfg.Database.Configured() {
		if err := cfg.ApplyVault(ctx); err != nil {
			return nil, err
		}
		connect := opts.Connector
		if connect == nil {
			connect = connectMySQL
		}
		db, closer, err := connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		created.db = db
		created.closers = append(created.closers, closer)
	}

	created.manager, err = backup.NewManager(settings, created.db, logger, managerOpts...)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func connectMySQL(ctx context.Context, cfg database.Config, logger *logging.Logger) (backup.Database, io.Closer, error) {
	handle, err := database.NewService(logger).Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return handle, handle, nil
}

// Manager returns the backup engine
func (a *Application) Manager() *backup.Manager {
	return a.manager
}

// Logger returns the operational logger
func (a *Application) Logger() *logging.Logger {
	return a.logger
}

// Config returns the configuration the application was built from
func (a *Application) Config() *config.Config {
	return a.config
}

// PingDatabase reports whether the configured database answers
func (a *Application) PingDatabase(ctx context.Context) error {
	if a.db == nil {
		return appErrors.NewConfigurationError("database connection is not configured", nil)
	}
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return appErrors.NewConnectionError("database is unreachable", err)
	}
	defer conn.Close()
	return conn.PingContext(ctx)
}

// serverInfo is implemented by *database.Handle; results come from its query cache
type serverInfo interface {
	Version(ctx context.Context) (string, error)
	TableCount(ctx context.Context) (int, error)
}

// DatabaseInfo describes the connected server
type DatabaseInfo struct {
	Version string `json:"version"`
	Tables  int    `json:"tables"`
}

// DatabaseInfo reports the server version and schema size. Repeated calls are
// answered from the query cache until a restore purges it.
func (a *Application) DatabaseInfo(ctx context.Context) (*DatabaseInfo, error) {
	if a.db == nil {
		return nil, appErrors.NewConfigurationError("database connection is not configured", nil)
	}
	server, ok := a.db.(serverInfo)
	if !ok {
		return nil, appErrors.NewConfigurationError("database handle does not report server details", nil)
	}
	version, err := server.Version(ctx)
	if err != nil {
		return nil, appErrors.NewConnectionError("failed to read server version", err)
	}
	tables, err := server.TableCount(ctx)
	if err != nil {
		return nil, appErrors.NewConnectionError("failed to count tables", err)
	}
	return &DatabaseInfo{Version: version, Tables: tables}, nil
}

// CheckDatabase pings the server and confirms the schema is readable
func (a *Application) CheckDatabase(ctx context.Context) error {
	if err := a.PingDatabase(ctx); err != nil {
		return err
	}
	info, err := a.DatabaseInfo(ctx)
	if err != nil {
		return err
	}
	a.logger.WithFields(map[string]interface{}{
		"version": info.Version,
		"tables":  info.Tables,
	}).Debug("Database check passed")
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *Application) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// SignalContext is canceled on SIGINT or SIGTERM so running operations stop cleanly
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ReportError logs err with its classification and prints the operator
// message and troubleshooting hints to w.
func ReportError(w io.Writer, logger *logging.Logger, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "Error: %s\n", appErrors.FormatUserError(err))
	LogError(logger, err)
	WriteHints(w, err)
}

// classify maps driver, network and filesystem errors onto an error type
func classify(err error) *appErrors.AppError {
	return appErrors.NewErrorClassifier().ClassifyError(err)
}

// LogError records err with its classification
func LogError(logger *logging.Logger, err error) {
	appErr := classify(err)
	logger.WithError(err).WithFields(map[string]interface{}{
		"error_type":  string(appErr.Type),
		"recoverable": appErr.IsRecoverable(),
		"context":     appErr.Context,
	}).Error("Operation failed")
}

// WriteHints prints troubleshooting hints for the error's type, if any
func WriteHints(w io.Writer, err error) {
	hints := troubleshootingHints(classify(err).Type)
	if len(hints) == 0 {
		return
	}
	fmt.Fprintf(w, "\nTroubleshooting hints:\n")
	for _, h := range hints {
		fmt.Fprintf(w, "- %s\n", h)
	}
}

func troubleshootingHints(t appErrors.ErrorType) []string {
	switch t {
	case appErrors.ErrorTypeConnection:
		return []string{
			"Check that the database server is running",
			"Verify host and port in the [database] section",
			"Ensure network connectivity to the database server",
		}
	case appErrors.ErrorTypePermission:
		return []string{
			"Verify the database user and password",
			"Check that the engine can write to the backup and temp directories",
		}
	case appErrors.ErrorTypeConfiguration:
		return []string{
			"Run 'suite-backup config validate' to list configuration problems",
			"Run 'suite-backup config show' to see the effective settings",
		}
	case appErrors.ErrorTypeFatalRestore:
		return []string{
			"The safety backup listed in the restore result holds the previous state",
			"Restore it with 'suite-backup backup restore <name>'",
		}
	case appErrors.ErrorTypeTimeout:
		return []string{
			"Increase database.timeout for large databases",
			"Check database server load",
		}
	}
	return nil
}
