package sqldump

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"
)

const (
	maxStatementInError = 300
	cleanupTimeout      = 30 * time.Second
)

// Conner hands out a dedicated connection; *sql.DB satisfies it
type Conner interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// SafetyBackupFunc snapshots the current database and returns the archive name
type SafetyBackupFunc func(ctx context.Context) (string, error)

// RestoreStats summarizes a restore
type RestoreStats struct {
	Statements   int
	Executed     int
	SafetyBackup string
	Duration     time.Duration
}

// Restorer plays a dump back against a live database
type Restorer struct {
	logger       *logging.Logger
	safetyBackup SafetyBackupFunc
}

// NewRestorer creates a restorer. safetyBackup, when set, runs before the first statement.
func NewRestorer(logger *logging.Logger, safetyBackup SafetyBackupFunc) *Restorer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Restorer{logger: logger, safetyBackup: safetyBackup}
}

// Restore splits sqlText, takes the safety backup, then executes every
// statement in order on one connection with foreign key checks disabled.
// The first failing statement stops the restore; statements already applied
// stay applied and the returned FatalRestoreError carries their count.
// Session settings touched by the dump are reset on every exit path.
func (r *Restorer) Restore(ctx context.Context, db Conner, sqlText string) (stats *RestoreStats, err error) {
	start := time.Now()
	statements := Split(sqlText)
	stats = &RestoreStats{Statements: len(statements)}
	if len(statements) == 0 {
		return stats, appErrors.NewFatalRestoreError("dump contains no executable statements", nil)
	}

	if r.safetyBackup != nil {
		name, err := r.safetyBackup(ctx)
		if err != nil {
			return stats, appErrors.NewFatalRestoreError("safety backup failed, database left untouched", err)
		}
		stats.SafetyBackup = name
		r.logger.WithField("safety_backup", name).Info("Safety backup created before database restore")
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return stats, appErrors.NewConnectionError("cannot obtain a database connection for restore", err)
	}
	defer func() {
		r.resetSession(ctx, conn, err != nil)
		if closeErr := conn.Close(); closeErr != nil {
			r.logger.WithError(closeErr).Warn("Failed to release restore connection")
		}
		stats.Duration = time.Since(start)
	}()

	if _, err = conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return stats, appErrors.NewFatalRestoreError("cannot disable foreign key checks", err).
			WithContext("applied", 0)
	}

	for i, stmt := range statements {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = appErrors.NewFatalRestoreError(
				fmt.Sprintf("restore canceled after %d of %d statements", stats.Executed, len(statements)), ctxErr).
				WithContext("applied", stats.Executed)
			return stats, err
		}

		body := stmt.Body()
		execStart := time.Now()
		_, execErr := conn.ExecContext(ctx, body)
		r.logger.LogSQLExecution(body, time.Since(execStart), execErr)
		if execErr != nil {
			err = appErrors.NewFatalRestoreError(
				fmt.Sprintf("statement %d of %d failed after %d applied", i+1, len(statements), stats.Executed), execErr).
				WithContext("applied", stats.Executed).
				WithContext("statement_index", i+1).
				WithContext("statement", truncate(body, maxStatementInError))
			return stats, err
		}
		stats.Executed++
	}

	r.logger.WithFields(map[string]interface{}{
		"statements": stats.Executed,
		"duration":   time.Since(start).String(),
	}).Info("Database restore completed")
	return stats, nil
}

// resetSession restores the connection's session state. Failures are logged only.
func (r *Restorer) resetSession(ctx context.Context, conn *sql.Conn, failed bool) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	statements := []string{
		"SET AUTOCOMMIT = 1",
		"SET FOREIGN_KEY_CHECKS = 1",
		"SET SQL_MODE = @@GLOBAL.sql_mode",
		"SET time_zone = @@GLOBAL.time_zone",
	}
	if failed {
		statements = append([]string{"ROLLBACK"}, statements...)
	}

	for _, stmt := range statements {
		if _, err := conn.ExecContext(cleanupCtx, stmt); err != nil {
			r.logger.WithError(err).WithField("sql", stmt).Warn("Session cleanup after restore failed")
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
