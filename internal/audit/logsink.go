package audit

import (
	"context"
	"sync"

	"github.com/HeadyMe/heady-mcp-router/internal/models"
	"go.uber.org/zap"
)

// LogSink writes audit events to a zap logger. It is used when no database
// is configured, for example in stdio mode.
type LogSink struct {
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

// NewLogSink creates a sink that logs at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

// AppendAuditEvent implements Sink.
func (s *LogSink) AppendAuditEvent(_ context.Context, ev *models.AuditEvent) error {
	s.logger.Info("audit event",
		zap.String("id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("method", ev.Method),
		zap.String("path", ev.Path),
		zap.Bool("client_identity_present", ev.ClientIdentityPresent),
		zap.String("service", ev.Service),
		zap.String("tool", ev.Tool),
		zap.String("outcome", ev.Outcome),
		zap.Time("timestamp", ev.Timestamp),
		zap.String("previous_hash", ev.PreviousHash),
		zap.String("hash", ev.Hash),
	)
	s.mu.Lock()
	s.last = ev.Hash
	s.mu.Unlock()
	return nil
}

// LastAuditHash implements Sink.
func (s *LogSink) LastAuditHash(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}
