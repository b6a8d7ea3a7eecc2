package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/HeadyMe/heady-mcp-router/internal/models"
	"github.com/HeadyMe/heady-mcp-router/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriter_ChainsEvents(t *testing.T) {
	s := newTestStore(t)
	w := NewWriter(s, nil)
	ctx := context.Background()

	first, err := w.Record(ctx, models.AuditEvent{Type: models.AuditRequest, Method: "GET", Path: "/api/mcp/services"})
	require.NoError(t, err)
	assert.Equal(t, models.GenesisHash, first.PreviousHash)
	assert.Len(t, first.Hash, 64)

	second, err := w.Record(ctx, models.AuditEvent{Type: models.AuditToolCall, Method: "POST", Path: "/tools/git", Service: "git", Tool: "status"})
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.PreviousHash)

	events, err := s.ListAuditEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NoError(t, VerifyFull(events))
	assert.Equal(t, int64(2), w.Written())
}

func TestWriter_ResumesChainAfterRestart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := NewWriter(s, nil).Record(ctx, models.AuditEvent{Type: models.AuditRequest, Method: "GET", Path: "/a"})
	require.NoError(t, err)

	next, err := NewWriter(s, nil).Record(ctx, models.AuditEvent{Type: models.AuditRequest, Method: "GET", Path: "/b"})
	require.NoError(t, err)
	assert.Equal(t, last.Hash, next.PreviousHash)

	events, err := s.ListAuditEvents(ctx, 0)
	require.NoError(t, err)
	assert.NoError(t, VerifyFull(events))
}

func TestVerify_DetectsTampering(t *testing.T) {
	s := newTestStore(t)
	w := NewWriter(s, nil)
	ctx := context.Background()

	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := w.Record(ctx, models.AuditEvent{Type: models.AuditRequest, Method: "GET", Path: p})
		require.NoError(t, err)
	}
	events, err := s.ListAuditEvents(ctx, 0)
	require.NoError(t, err)

	edited := append([]models.AuditEvent(nil), events...)
	edited[1].Path = "/api/delete/everything"
	var chainErr *ChainError
	require.ErrorAs(t, Verify(edited), &chainErr)
	assert.Equal(t, 1, chainErr.Index)

	dropped := []models.AuditEvent{events[0], events[2]}
	require.ErrorAs(t, Verify(dropped), &chainErr)
	assert.Equal(t, 1, chainErr.Index)

	assert.NoError(t, Verify(events[1:]), "a tail verifies on its own")
	assert.Error(t, VerifyFull(events[1:]), "a tail is not a full log")
}

type failingSink struct {
	headErr   error
	appendErr error
}

func (f failingSink) AppendAuditEvent(context.Context, *models.AuditEvent) error {
	return f.appendErr
}

func (f failingSink) LastAuditHash(context.Context) (string, error) {
	return "", f.headErr
}

func TestWriter_FailuresAreLoggedAndCounted(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := NewWriter(failingSink{appendErr: errors.New("disk full")}, zap.New(core))

	ev, err := w.Record(context.Background(), models.AuditEvent{Type: models.AuditRequest, Method: "GET", Path: "/x"})
	assert.Nil(t, ev)
	assert.Error(t, err)
	assert.Equal(t, int64(1), w.Failures())
	assert.Equal(t, int64(0), w.Written())
	assert.Equal(t, 1, logs.FilterMessage("audit write failed").Len())

	w2 := NewWriter(failingSink{headErr: errors.New("locked")}, zap.New(core))
	_, err = w2.Record(context.Background(), models.AuditEvent{Type: models.AuditRequest})
	assert.Error(t, err)
	assert.Equal(t, int64(1), w2.Failures())
}

func TestLogSink_KeepsChain(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	w := NewWriter(sink, nil)
	ctx := context.Background()

	a, err := w.Record(ctx, models.AuditEvent{Type: models.AuditRequest, Method: "GET", Path: "/a"})
	require.NoError(t, err)
	b, err := w.Record(ctx, models.AuditEvent{Type: models.AuditRequest, Method: "GET", Path: "/b"})
	require.NoError(t, err)

	assert.Equal(t, a.Hash, b.PreviousHash)
	assert.Equal(t, 2, logs.FilterMessage("audit event").Len())
	assert.NoError(t, VerifyFull([]models.AuditEvent{*a, *b}))
}

func TestHashInputs(t *testing.T) {
	a := HashInputs(map[string]any{"path": "/tmp"})
	b := HashInputs(map[string]any{"path": "/tmp"})
	c := HashInputs(map[string]any{"path": "/etc"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "hash_error", HashInputs(make(chan int)))
}
