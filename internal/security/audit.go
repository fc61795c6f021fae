// Package security holds the audit trail of assistant actions.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Majhi12/atomic-crm/internal/domain"
	"github.com/Majhi12/atomic-crm/internal/infra/tracer"
)

// FileAuditLogger implements domain.AuditLogger by appending JSON lines to
// a file. When maxSize is set the file is rotated to <path>.1 before a
// write would exceed it.
type FileAuditLogger struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
	now     func() time.Time
}

var _ domain.AuditLogger = (*FileAuditLogger)(nil)

// NewFileAuditLogger opens path for appending (0600). maxSize <= 0
// disables rotation.
func NewFileAuditLogger(path string, maxSize int64) (*FileAuditLogger, error) {
	f, size, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &FileAuditLogger{file: f, path: path, size: size, maxSize: maxSize, now: time.Now}, nil
}

func openAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, 0, fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat audit log: %w", err)
	}
	return f, info.Size(), nil
}

// Log writes event as a single JSON line and mirrors it onto the active
// span as an event.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Actor == "" {
		if c, ok := domain.CallerFromContext(ctx); ok {
			event.Actor = c.ID
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxSize > 0 && a.size > 0 && a.size+int64(len(data)) > a.maxSize {
		if err := a.rotate(); err != nil {
			return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
		}
	}
	n, err := a.file.Write(data)
	a.size += int64(n)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, len(event.Detail)+1)
		attrs = append(attrs, tracer.StringAttr("audit.outcome", event.Outcome))
		for k, v := range event.Detail {
			attrs = append(attrs, tracer.StringAttr("audit."+k, v))
		}
		span.AddEvent("audit."+string(event.Type), trace.WithAttributes(attrs...))
	}
	return nil
}

// rotate moves the current file to <path>.1, replacing any previous
// rotation. Caller holds a.mu.
func (a *FileAuditLogger) rotate() error {
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close for rotation: %w", err)
	}
	if err := os.Rename(a.path, a.path+".1"); err != nil {
		// Keep logging to the old file rather than losing events.
		a.file, a.size, _ = openAppend(a.path)
		return fmt.Errorf("rotate audit log: %w", err)
	}
	f, size, err := openAppend(a.path)
	if err != nil {
		return err
	}
	a.file, a.size = f, size
	return nil
}

// Close closes the audit log file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

func (NopAuditLogger) Log(context.Context, domain.AuditEvent) error { return nil }
func (NopAuditLogger) Close() error                                 { return nil }

// ParseSize parses a human-readable size such as "100MB" or "1GB".
// The empty string is 0.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("parse size %q: invalid number", s)
	}
	return n * multiplier, nil
}
