// Package audit writes the hash-chained audit log.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink persists audit events in append order.
type Sink interface {
	AppendAuditEvent(ctx context.Context, ev *models.AuditEvent) error
	LastAuditHash(ctx context.Context) (string, error)
}

// Writer chains each event to the previous one and appends it to a sink.
type Writer struct {
	sink   Sink
	logger *zap.Logger

	mu     sync.Mutex
	prev   string
	primed bool

	written  atomic.Int64
	failures atomic.Int64
}

// NewWriter creates a writer over sink.
func NewWriter(sink Sink, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{sink: sink, logger: logger}
}

// Record chains and appends ev. Failures are logged and counted; callers on
// the request path may ignore the returned error.
func (w *Writer) Record(ctx context.Context, ev models.AuditEvent) (*models.AuditEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.primed {
		last, err := w.sink.LastAuditHash(ctx)
		if err != nil {
			return nil, w.fail(ev, fmt.Errorf("read chain head: %w", err))
		}
		w.prev = last
		w.primed = true
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.PreviousHash = w.prev
	if ev.PreviousHash == "" {
		ev.PreviousHash = models.GenesisHash
	}
	ev.Hash = HashEvent(ev)

	if err := w.sink.AppendAuditEvent(ctx, &ev); err != nil {
		return nil, w.fail(ev, err)
	}

	w.prev = ev.Hash
	w.written.Add(1)
	return &ev, nil
}

func (w *Writer) fail(ev models.AuditEvent, err error) error {
	w.failures.Add(1)
	w.logger.Warn("audit write failed",
		zap.String("type", string(ev.Type)),
		zap.String("path", ev.Path),
		zap.Error(err),
	)
	return err
}

// Written returns the number of events appended since start.
func (w *Writer) Written() int64 { return w.written.Load() }

// Failures returns the number of events that could not be appended.
func (w *Writer) Failures() int64 { return w.failures.Load() }

// HashEvent returns the hex sha256 of ev with its Hash field cleared.
func HashEvent(ev models.AuditEvent) string {
	ev.Hash = ""
	data, err := json.Marshal(ev)
	if err != nil {
		return "hash_error"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashInputs returns the hex sha256 of the JSON form of v, for recording
// arguments without storing them.
func HashInputs(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "hash_error"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
