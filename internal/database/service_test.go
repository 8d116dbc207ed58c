package database

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	appErrors "suite-backup/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validConfig = Config{Host: "localhost", Port: 3306, User: "suite", Password: "secret", Database: "sensores"}

func newMockHandle(t *testing.T) (*Handle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHandle(db, validConfig, NewQueryCache(10, time.Minute), nil), mock
}

func TestNewService(t *testing.T) {
	service := NewService(nil)
	require.NotNil(t, service)
	assert.Equal(t, 30*time.Second, service.connectionTimeout)
	assert.Equal(t, DefaultCacheSize, service.cacheSize)
	assert.Equal(t, DefaultSlowQueryThreshold, service.slowQuery)
}

func TestConnect_InvalidConfig(t *testing.T) {
	service := NewService(nil)
	opened := false
	service.open = func(string) (*sql.DB, error) {
		opened = true
		return nil, errors.New("unreachable")
	}

	_, err := service.Connect(context.Background(), Config{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrorTypeConfiguration, appErrors.GetErrorType(err))
	assert.False(t, opened, "no connection attempt with an invalid config")
}

func TestConnect_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	service := NewService(nil)
	var gotDSN string
	service.open = func(dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return db, nil
	}

	handle, err := service.Connect(context.Background(), Config{Host: "localhost", User: "suite", Database: "sensores"})
	require.NoError(t, err)
	defer handle.Close()

	assert.Same(t, db, handle.DB())
	assert.Equal(t, 3306, handle.Config().Port, "defaults are applied")
	assert.Contains(t, gotDSN, "tcp(localhost:3306)/sensores")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_RetriesTransientFailures(t *testing.T) {
	service := NewServiceWithOptions(nil, 5*time.Second, 3, time.Millisecond)

	attempts := 0
	service.open = func(string) (*sql.DB, error) {
		attempts++
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			return nil, err
		}
		if attempts < 3 {
			mock.ExpectPing().WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})
		} else {
			mock.ExpectPing()
		}
		return db, nil
	}

	handle, err := service.Connect(context.Background(), validConfig)
	require.NoError(t, err)
	defer handle.Close()
	assert.Equal(t, 3, attempts)
}

func TestConnect_AccessDeniedIsNotRetried(t *testing.T) {
	service := NewServiceWithOptions(nil, 5*time.Second, 3, time.Millisecond)

	attempts := 0
	service.open = func(string) (*sql.DB, error) {
		attempts++
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		if err != nil {
			return nil, err
		}
		mock.ExpectPing().WillReturnError(&mysql.MySQLError{Number: 1045, Message: "Access denied for user 'suite'"})
		return db, nil
	}

	_, err := service.Connect(context.Background(), validConfig)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, appErrors.ErrorTypeConfiguration, appErrors.GetErrorType(err))
}

func TestTestConnection_NilDB(t *testing.T) {
	err := NewService(nil).TestConnection(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrorTypeValidation, appErrors.GetErrorType(err))
}

func TestHandle_VersionIsCached(t *testing.T) {
	handle, mock := newMockHandle(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION() AS version")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("8.0.36"))

	for i := 0; i < 3; i++ {
		version, err := handle.Version(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "8.0.36", version)
	}
	require.NoError(t, mock.ExpectationsWereMet())

	hits, misses, size := handle.cache.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1, size)
}

func TestHandle_PurgeCacheForcesRequery(t *testing.T) {
	handle, mock := newMockHandle(t)

	query := regexp.QuoteMeta("SELECT COUNT(*) AS tables FROM information_schema.tables")
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"tables"}).AddRow(int64(7)))
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"tables"}).AddRow(int64(9)))

	n, err := handle.TableCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = handle.TableCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n, "served from cache")

	handle.PurgeCache()

	n, err = handle.TableCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_QueryArgsAreKeyedSeparately(t *testing.T) {
	handle, mock := newMockHandle(t)

	query := "SELECT nombre FROM estaciones WHERE id = ?"
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"nombre"}).AddRow([]byte("Norte")))
	mock.ExpectQuery(regexp.QuoteMeta(query)).WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"nombre"}).AddRow(nil))

	rows, err := handle.Query(context.Background(), query, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Norte", rows[0]["nombre"], "byte values are returned as strings")

	rows, err = handle.Query(context.Background(), query, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["nombre"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_QueryErrorIsNotCached(t *testing.T) {
	handle, mock := newMockHandle(t)

	mock.ExpectQuery("SELECT 1").WillReturnError(&mysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"})
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	_, err := handle.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, appErrors.IsRecoverableError(err))

	rows, err := handle.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestHandle_WithoutCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	handle := NewHandle(db, validConfig, nil, nil)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	for i := 0; i < 2; i++ {
		_, err := handle.Query(context.Background(), "SELECT 1")
		require.NoError(t, err)
	}
	handle.PurgeCache()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_CloseNil(t *testing.T) {
	var handle *Handle
	assert.NoError(t, handle.Close())
}
