package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{
			name:   "default config",
			config: Config{Level: LogLevelNormal, Format: "text"},
			want:   LogLevelNormal,
		},
		{
			name:   "verbose json",
			config: Config{Level: LogLevelVerbose, Format: "json"},
			want:   LogLevelVerbose,
		},
		{
			name:   "quiet config",
			config: Config{Level: LogLevelQuiet, Format: "text"},
			want:   LogLevelQuiet,
		},
		{
			name:   "unknown level falls back to normal",
			config: Config{Level: "chatty"},
			want:   LogLevelNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			if logger.GetLevel() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "backup_operations.log")
	var buf bytes.Buffer

	logger, err := NewLogger(Config{Level: LogLevelNormal, Output: &buf, LogFile: logFile})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("archive created")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "archive created") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(buf.String(), "archive created") {
		t.Errorf("output missing message, got: %s", buf.String())
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelVerbose, Output: &buf, Format: "text"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.WithFields(map[string]interface{}{
		"archive": "complete_backup_2024-01-01_10-00-00.zip",
		"files":   42,
	}).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "archive=complete_backup_2024-01-01_10-00-00.zip") {
		t.Errorf("Expected archive field, got: %s", output)
	}
	if !strings.Contains(output, "files=42") {
		t.Errorf("Expected files=42, got: %s", output)
	}
}

func TestLogDatabaseConnection(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelVerbose, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogDatabaseConnection("localhost", "sensors", true, 100*time.Millisecond, nil)
	output := buf.String()
	if !strings.Contains(output, "Database connection established") {
		t.Errorf("Expected success message, got: %s", output)
	}
	if !strings.Contains(output, "host=localhost") {
		t.Errorf("Expected host=localhost, got: %s", output)
	}

	buf.Reset()

	logger.LogDatabaseConnection("localhost", "sensors", false, 5*time.Second, errors.New("connection timeout"))
	output = buf.String()
	if !strings.Contains(output, "Database connection failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "connection timeout") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestLogSQLExecution(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelDebug, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogSQLExecution("DROP TABLE IF EXISTS `lecturas`", 5*time.Millisecond, nil)
	if !strings.Contains(buf.String(), "SQL executed") {
		t.Errorf("Expected trace message, got: %s", buf.String())
	}

	buf.Reset()
	long := "INSERT INTO `t` VALUES " + strings.Repeat("('x'),", 100)
	logger.LogSQLExecution(long, time.Millisecond, errors.New("syntax error"))
	output := buf.String()
	if !strings.Contains(output, "SQL execution failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "sql_length=") {
		t.Errorf("Expected long statement to be truncated, got: %s", output)
	}
}

func TestLogSQLExecutionHiddenAtNormalLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelNormal, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogSQLExecution("SELECT 1", time.Millisecond, nil)
	if buf.Len() != 0 {
		t.Errorf("Expected no output at normal level, got: %s", buf.String())
	}
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: LogLevelVerbose, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	done := logger.LogOperationStart("create_backup", map[string]interface{}{"type": "project"})
	done(nil)
	if !strings.Contains(buf.String(), "Operation completed") {
		t.Errorf("Expected completion message, got: %s", buf.String())
	}

	buf.Reset()
	done = logger.LogOperationStart("restore_backup", nil)
	done(errors.New("boom"))
	output := buf.String()
	if !strings.Contains(output, "Operation failed") || !strings.Contains(output, "boom") {
		t.Errorf("Expected failure message, got: %s", output)
	}
}

func TestSetLevel(t *testing.T) {
	logger := NewNopLogger()

	logger.SetLevel(LogLevelDebug)
	if !logger.IsLevelEnabled(LogLevelDebug) {
		t.Error("debug should be enabled")
	}

	logger.SetLevel(LogLevelQuiet)
	if logger.IsLevelEnabled(LogLevelNormal) {
		t.Error("normal should be disabled at quiet")
	}
	if logger.IsLevelEnabled("bogus") {
		t.Error("unknown level should never be enabled")
	}
}

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "mysql dsn",
			in:   "admin:s3cret@tcp(localhost:3306)/sensors?charset=utf8mb4",
			want: "admin:***@tcp(localhost:3306)/sensors?charset=utf8mb4",
		},
		{
			name: "keyed password",
			in:   "host=db password=hunter2 user=x",
			want: "host=db password=*** user=x",
		},
		{
			name: "quoted keyed password",
			in:   "PASSWORD='a b c' done",
			want: "PASSWORD=*** done",
		},
		{
			name: "nothing to mask",
			in:   "tcp(localhost:3306)/sensors",
			want: "tcp(localhost:3306)/sensors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDSN(tt.in); got != tt.want {
				t.Errorf("SanitizeDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
