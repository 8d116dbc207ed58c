package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Audit results
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
	AuditPartial = "partial"
)

// AuditEntry is one append-only record of an administrative action
type AuditEntry struct {
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Actor         string                 `json:"actor"`
	Operation     string                 `json:"operation"`
	Resource      string                 `json:"resource"`
	Result        string                 `json:"result"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// AuditSink records audit entries
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type correlationKey struct{}

// WithCorrelationID stores a correlation id on ctx
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id stored on ctx, or ""
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// FileAuditSink writes JSON audit lines to an append-only file
type FileAuditSink struct {
	mu     sync.Mutex
	logger *logrus.Logger
	closer io.Closer
}

// NewFileAuditSink opens (or creates) path for appending
func NewFileAuditSink(path string) (*FileAuditSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return newAuditSink(file, file), nil
}

// NewWriterAuditSink writes audit lines to w
func NewWriterAuditSink(w io.Writer) *FileAuditSink {
	return newAuditSink(w, nil)
}

func newAuditSink(w io.Writer, closer io.Closer) *FileAuditSink {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	logger.SetLevel(logrus.InfoLevel)
	return &FileAuditSink{logger: logger, closer: closer}
}

// Record implements AuditSink
func (s *FileAuditSink) Record(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = CorrelationID(ctx)
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = uuid.New().String()
	}

	fields := logrus.Fields{
		"correlation_id": entry.CorrelationID,
		"actor":          entry.Actor,
		"operation":      entry.Operation,
		"resource":       entry.Resource,
		"result":         entry.Result,
	}
	if len(entry.Details) > 0 {
		fields["details"] = entry.Details
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.WithTime(entry.Timestamp).WithFields(fields).Info(entry.Operation)
	return nil
}

// Close closes the underlying file
func (s *FileAuditSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// NopAuditSink drops every entry
type NopAuditSink struct{}

// Record implements AuditSink
func (NopAuditSink) Record(context.Context, AuditEntry) error { return nil }
