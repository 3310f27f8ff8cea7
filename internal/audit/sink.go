// Package audit records security events asynchronously so that callers never
// wait on, or fail because of, the audit trail.
package audit

import (
	"context"
	"time"

	"github.com/dtroode/vault-protector/internal/logger"
	"github.com/dtroode/vault-protector/internal/model"
)

// Sink receives audit entries taken off the queue.
type Sink interface {
	Emit(ctx context.Context, entry model.AuditEntry)
}

// NoOpSink drops audit entries.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, model.AuditEntry) {}

// StoreSink persists entries through an AuditStore.
type StoreSink struct {
	store   model.AuditStore
	timeout time.Duration
	logger  *logger.Logger
}

func NewStoreSink(store model.AuditStore, timeout time.Duration, logger *logger.Logger) *StoreSink {
	return &StoreSink{store: store, timeout: timeout, logger: logger}
}

// Emit writes the entry with its own timeout. Errors are logged and dropped.
func (s *StoreSink) Emit(ctx context.Context, entry model.AuditEntry) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.store.Create(ctx, entry); err != nil {
		s.logger.Error("Audit sink: failed to persist entry",
			"action", entry.Action,
			"error", err.Error())
	}
}
