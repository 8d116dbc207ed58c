package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestAppError(t *testing.T) {
	cause := errors.New("underlying error")
	appErr := NewAppError(ErrorTypeConnection, "connection failed", cause)

	if appErr.Type != ErrorTypeConnection {
		t.Errorf("Expected type %v, got %v", ErrorTypeConnection, appErr.Type)
	}
	if appErr.Cause != cause {
		t.Errorf("Expected cause %v, got %v", cause, appErr.Cause)
	}
	if appErr.IsRecoverable() {
		t.Error("Expected non-recoverable error")
	}

	expected := "connection: connection failed (caused by: underlying error)"
	if appErr.Error() != expected {
		t.Errorf("Expected error string %v, got %v", expected, appErr.Error())
	}
	if !errors.Is(appErr, cause) {
		t.Error("errors.Is should see the cause")
	}
}

func TestAppErrorWithContext(t *testing.T) {
	appErr := NewFatalRestoreError("statement failed", nil)
	appErr.WithContext("applied", 12).WithContext("statement_index", 13)

	if appErr.Context["applied"] != 12 {
		t.Errorf("Expected applied=12, got %v", appErr.Context["applied"])
	}
	if appErr.Context["statement_index"] != 13 {
		t.Errorf("Expected statement_index=13, got %v", appErr.Context["statement_index"])
	}
}

func TestTaxonomyConstructors(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantType    ErrorType
		recoverable bool
	}{
		{"configuration", NewConfigurationError("missing database.host", nil), ErrorTypeConfiguration, false},
		{"connection", NewConnectionError("database unreachable", nil), ErrorTypeConnection, true},
		{"validation", NewValidationError("bad filename", nil), ErrorTypeValidation, false},
		{"not found", NewNotFoundError("x.zip"), ErrorTypeNotFound, false},
		{"io", NewIOError("write failed", nil), ErrorTypeIO, false},
		{"partial", NewPartialFailure("2 files skipped", 2, []error{errors.New("a"), errors.New("b")}), ErrorTypePartialFailure, true},
		{"fatal restore", NewFatalRestoreError("statement failed", nil), ErrorTypeFatalRestore, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("type = %v, want %v", tt.err.Type, tt.wantType)
			}
			if tt.err.IsRecoverable() != tt.recoverable {
				t.Errorf("recoverable = %v, want %v", tt.err.IsRecoverable(), tt.recoverable)
			}
		})
	}
}

func TestPartialFailureCarriesCauses(t *testing.T) {
	first := errors.New("permission denied: a.php")
	err := NewPartialFailure("1 file skipped", 1, []error{first})

	if !IsPartialFailure(err) {
		t.Error("expected partial failure")
	}
	if !errors.Is(err, first) {
		t.Error("expected joined cause to be reachable")
	}
	if err.Context["skipped"] != 1 {
		t.Errorf("skipped = %v", err.Context["skipped"])
	}
}

func TestErrorClassifier_ClassifyMySQLError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name         string
		mysqlErr     *mysql.MySQLError
		expectedType ErrorType
		recoverable  bool
	}{
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, ErrorTypeConfiguration, false},
		{"unknown database", &mysql.MySQLError{Number: 1049, Message: "Unknown database"}, ErrorTypeConfiguration, false},
		{"deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, ErrorTypeConnection, true},
		{"gone away", &mysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"}, ErrorTypeConnection, true},
		{"syntax", &mysql.MySQLError{Number: 1064, Message: "You have an error"}, ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.mysqlErr)
			if appErr.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, appErr.Type)
			}
			if appErr.IsRecoverable() != tt.recoverable {
				t.Errorf("Expected recoverable %v, got %v", tt.recoverable, appErr.IsRecoverable())
			}
			if appErr.Context["mysql_error_code"] != tt.mysqlErr.Number {
				t.Errorf("Expected mysql_error_code %d, got %v", tt.mysqlErr.Number, appErr.Context["mysql_error_code"])
			}
		})
	}
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	classifier := NewErrorClassifier()

	if got := classifier.ClassifyError(context.DeadlineExceeded); got.Type != ErrorTypeTimeout || !got.Recoverable {
		t.Errorf("deadline classified as %v (recoverable=%v)", got.Type, got.Recoverable)
	}
	if got := classifier.ClassifyError(context.Canceled); got.Type != ErrorTypeInterruption {
		t.Errorf("cancel classified as %v", got.Type)
	}
}

func TestErrorClassifier_ClassifyFileSystemError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name         string
		err          error
		expectedType ErrorType
	}{
		{"not found", &fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, ErrorTypeNotFound},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}, ErrorTypePermission},
		{"no space", &fs.PathError{Op: "write", Path: "/x", Err: syscall.ENOSPC}, ErrorTypeIO},
		{"busy", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.EBUSY}, ErrorTypeIO},
		{"plain", errors.New("boom"), ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifier.ClassifyError(tt.err); got.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, got.Type)
			}
		})
	}
}

func TestRetryHandler_Retry(t *testing.T) {
	config := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Multiplier:  2.0,
	}

	t.Run("success after retries", func(t *testing.T) {
		attempts := 0
		err := NewRetryHandler(config).Retry(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return NewConnectionError("temporary failure", nil)
			}
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("non-recoverable error", func(t *testing.T) {
		attempts := 0
		err := NewRetryHandler(config).Retry(context.Background(), func() error {
			attempts++
			return NewValidationError("validation failed", nil)
		})

		if GetErrorType(err) != ErrorTypeValidation {
			t.Errorf("Expected validation error, got %v", err)
		}
		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
	})

	t.Run("custom predicate", func(t *testing.T) {
		attempts := 0
		handler := NewRetryHandler(config).RetryWhen(func(error) bool { return true })
		err := handler.Retry(context.Background(), func() error {
			attempts++
			return errors.New("file in use")
		})

		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
		var appErr *AppError
		if !errors.As(err, &appErr) || appErr.Context["attempts"] != 3 {
			t.Errorf("Expected attempts context, got %v", err)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewRetryHandler(config).Retry(ctx, func() error { return nil })
		if GetErrorType(err) != ErrorTypeInterruption {
			t.Errorf("Expected interruption error, got %v", err)
		}
	})
}

func TestRetryConfig_Backoff(t *testing.T) {
	exponential := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	linear := RetryConfig{BaseDelay: 200 * time.Millisecond, Multiplier: 1}

	tests := []struct {
		name    string
		config  RetryConfig
		attempt int
		want    time.Duration
	}{
		{"exponential first", exponential, 1, 100 * time.Millisecond},
		{"exponential third", exponential, 3, 400 * time.Millisecond},
		{"exponential capped", exponential, 5, time.Second},
		{"linear first", linear, 1, 200 * time.Millisecond},
		{"linear fourth", linear, 4, 800 * time.Millisecond},
		{"zero attempt", linear, 0, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	inner := NewValidationError("bad name", nil)
	outer := NewAppError(ErrorTypeIO, "delete failed", inner)

	if !IsType(outer, ErrorTypeValidation) {
		t.Error("expected validation type in chain")
	}
	if IsType(fmt.Errorf("plain: %w", errors.New("x")), ErrorTypeIO) {
		t.Error("plain errors carry no type")
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("nil error formatted as %q", got)
	}

	err := NewValidationError("invalid filename", nil).WithUserMessage("Invalid backup file name")
	if got := FormatUserError(err); got != "Invalid backup file name" {
		t.Errorf("got %q", got)
	}

	if got := FormatUserError(errors.New("x")); got == "" {
		t.Error("expected generic message")
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "msg") != nil {
		t.Error("wrapping nil should return nil")
	}

	wrapped := WrapError(NewConnectionError("unreachable", nil), "dump failed")
	if GetErrorType(wrapped) != ErrorTypeConnection {
		t.Errorf("expected connection type, got %v", GetErrorType(wrapped))
	}
	if !IsRecoverableError(wrapped) {
		t.Error("recoverability should be kept")
	}

	wrapped = WrapError(&fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, "open archive")
	if GetErrorType(wrapped) != ErrorTypeNotFound {
		t.Errorf("expected not_found, got %v", GetErrorType(wrapped))
	}
}
