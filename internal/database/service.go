package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// DefaultSlowQueryThreshold is the duration above which a query is logged as slow
const DefaultSlowQueryThreshold = 2 * time.Second

// Service opens database handles
type Service struct {
	connectionTimeout time.Duration
	logger            *logging.Logger
	retryHandler      *appErrors.RetryHandler
	cacheSize         int
	cacheTTL          time.Duration
	slowQuery         time.Duration
	open              func(dsn string) (*sql.DB, error)
}

// NewService creates a new database service with default settings
func NewService(logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		connectionTimeout: 30 * time.Second,
		logger:            logger,
		retryHandler:      appErrors.NewDefaultRetryHandler(),
		cacheSize:         DefaultCacheSize,
		cacheTTL:          DefaultCacheTTL,
		slowQuery:         DefaultSlowQueryThreshold,
		open:              func(dsn string) (*sql.DB, error) { return sql.Open("mysql", dsn) },
	}
}

// NewServiceWithOptions creates a new database service with custom retry behaviour
func NewServiceWithOptions(logger *logging.Logger, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Service {
	s := NewService(logger)
	s.connectionTimeout = timeout
	s.retryHandler = appErrors.NewRetryHandler(appErrors.RetryConfig{
		MaxAttempts: maxRetries,
		BaseDelay:   retryDelay,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	})
	return s
}

// WithCache overrides the query cache bounds used for new handles
func (s *Service) WithCache(size int, ttl time.Duration) *Service {
	s.cacheSize = size
	s.cacheTTL = ttl
	return s
}

// WithSlowQueryThreshold overrides the slow query warning threshold
func (s *Service) WithSlowQueryThreshold(d time.Duration) *Service {
	s.slowQuery = d
	return s
}

// Connect validates config and opens a pinged handle, retrying recoverable failures
func (s *Service) Connect(ctx context.Context, config Config) (*Handle, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	s.logger.WithFields(map[string]interface{}{
		"host":     config.Host,
		"database": config.Database,
		"port":     config.Port,
	}).Info("Attempting database connection")

	s.logger.WithField("dsn", logging.SanitizeDSN(config.DSN())).Debug("Opening database")

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	var db *sql.DB
	err := s.retryHandler.Retry(ctx, func() error {
		var openErr error
		db, openErr = s.open(config.DSN())
		if openErr != nil {
			return appErrors.NewConfigurationError("failed to open database connection", openErr)
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if pingErr := s.TestConnection(ctx, db); pingErr != nil {
			db.Close()
			return pingErr
		}
		return nil
	})

	s.logger.LogDatabaseConnection(config.Host, config.Database, err == nil, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}

	return NewHandle(db, config, NewQueryCache(s.cacheSize, s.cacheTTL), s.logger).
		WithSlowQueryThreshold(s.slowQuery), nil
}

// TestConnection verifies that the database connection is working
func (s *Service) TestConnection(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return appErrors.NewValidationError("database connection is nil", nil)
	}

	if err := db.PingContext(ctx); err != nil {
		return appErrors.WrapError(err, "failed to ping database")
	}

	s.logger.Debug("Database connection test successful")
	return nil
}

// Handle is an explicit, caller-owned database connection with its own query cache
type Handle struct {
	db        *sql.DB
	config    Config
	cache     *QueryCache
	slowQuery time.Duration
	logger    *logging.Logger
}

// NewHandle wraps an open *sql.DB. cache may be nil to disable caching.
func NewHandle(db *sql.DB, config Config, cache *QueryCache, logger *logging.Logger) *Handle {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handle{
		db:        db,
		config:    config,
		cache:     cache,
		slowQuery: DefaultSlowQueryThreshold,
		logger:    logger,
	}
}

// WithSlowQueryThreshold sets the slow query warning threshold; zero disables it
func (h *Handle) WithSlowQueryThreshold(d time.Duration) *Handle {
	h.slowQuery = d
	return h
}

// DB returns the underlying pool
func (h *Handle) DB() *sql.DB {
	return h.db
}

// Config returns the connection settings the handle was opened with
func (h *Handle) Config() Config {
	return h.config
}

// Conn returns a dedicated connection for session-scoped work
func (h *Handle) Conn(ctx context.Context) (*sql.Conn, error) {
	return h.db.Conn(ctx)
}

// QueryContext runs an uncached query, warning when it is slow
func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := h.db.QueryContext(ctx, query, args...)
	h.observe(query, time.Since(start), err)
	return rows, err
}

// Query runs a read query and returns all rows, served from the cache when possible
func (h *Handle) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	key := cacheKey(query, args)
	if h.cache != nil {
		if rows, ok := h.cache.Get(key); ok {
			return rows, nil
		}
	}

	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, appErrors.WrapError(err, "query failed")
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, appErrors.WrapError(err, "failed to read query result")
	}

	if h.cache != nil {
		h.cache.Put(key, result)
	}
	return result, nil
}

// Version returns the server version string
func (h *Handle) Version(ctx context.Context) (string, error) {
	rows, err := h.Query(ctx, "SELECT VERSION() AS version")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", appErrors.NewConnectionError("server returned no version", nil)
	}
	return fmt.Sprint(rows[0]["version"]), nil
}

// TableCount returns the number of tables and views in the current schema
func (h *Handle) TableCount(ctx context.Context) (int, error) {
	rows, err := h.Query(ctx,
		"SELECT COUNT(*) AS tables FROM information_schema.tables WHERE table_schema = DATABASE()")
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	var n int
	if _, err := fmt.Sscan(fmt.Sprint(rows[0]["tables"]), &n); err != nil {
		return 0, appErrors.WrapError(err, "unexpected table count")
	}
	return n, nil
}

// PurgeCache drops every cached result
func (h *Handle) PurgeCache() {
	if h.cache == nil {
		return
	}
	n := h.cache.Purge()
	h.logger.WithField("entries", n).Debug("Query cache purged")
}

// Close closes the pool
func (h *Handle) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	h.logger.Debug("Closing database connection")
	if err := h.db.Close(); err != nil {
		h.logger.WithError(err).Error("Failed to close database connection")
		return appErrors.WrapError(err, "failed to close database connection")
	}
	return nil
}

func (h *Handle) observe(query string, duration time.Duration, err error) {
	h.logger.LogSQLExecution(query, duration, err)
	if h.slowQuery > 0 && duration > h.slowQuery {
		h.logger.WithFields(map[string]interface{}{
			"duration": duration.String(),
			"sql":      truncate(query, 200),
		}).Warn("Slow query")
	}
}

func cacheKey(query string, args []any) string {
	if len(args) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString(query)
	for _, a := range args {
		b.WriteByte(0)
		fmt.Fprintf(&b, "%T:%v", a, a)
	}
	return b.String()
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
