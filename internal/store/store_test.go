package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HeadyMe/heady-mcp-router/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestAuditEvents_AppendAndList(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	hash, err := s.LastAuditHash(ctx)
	if err != nil {
		t.Fatalf("LastAuditHash failed: %v", err)
	}
	if hash != "" {
		t.Fatalf("expected empty hash for empty log, got %q", hash)
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	for i := 0; i < 5; i++ {
		ev := &models.AuditEvent{
			Type:                  models.AuditToolCall,
			Method:                "POST",
			Path:                  "/tools/filesystem",
			ClientIdentityPresent: i%2 == 0,
			Service:               "filesystem",
			Tool:                  "read_file",
			Outcome:               "success",
			Timestamp:             ts.Add(time.Duration(i) * time.Second),
			PreviousHash:          fmt.Sprintf("h%d", i),
			Hash:                  fmt.Sprintf("h%d", i+1),
		}
		if err := s.AppendAuditEvent(ctx, ev); err != nil {
			t.Fatalf("AppendAuditEvent failed: %v", err)
		}
		if ev.ID == "" {
			t.Fatal("AppendAuditEvent should assign an ID")
		}
	}

	hash, err = s.LastAuditHash(ctx)
	if err != nil {
		t.Fatalf("LastAuditHash failed: %v", err)
	}
	if hash != "h5" {
		t.Errorf("LastAuditHash = %q, want h5", hash)
	}

	all, err := s.ListAuditEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListAuditEvents failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 events, got %d", len(all))
	}
	if !all[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp did not round-trip: %v", all[0].Timestamp)
	}
	if !all[0].ClientIdentityPresent || all[1].ClientIdentityPresent {
		t.Error("client identity flag did not round-trip")
	}
	if all[0].Type != models.AuditToolCall || all[0].Tool != "read_file" {
		t.Errorf("unexpected event: %+v", all[0])
	}

	recent, err := s.ListAuditEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListAuditEvents failed: %v", err)
	}
	if len(recent) != 2 || recent[0].Hash != "h4" || recent[1].Hash != "h5" {
		t.Errorf("expected the two newest events in order, got %+v", recent)
	}

	n, err := s.CountAuditEvents(ctx)
	if err != nil {
		t.Fatalf("CountAuditEvents failed: %v", err)
	}
	if n != 5 {
		t.Errorf("CountAuditEvents = %d, want 5", n)
	}
}

func TestAuditEvents_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.AppendAuditEvent(context.Background(), &models.AuditEvent{
		Type: models.AuditRequest, Method: "GET", Path: "/api/mcp/services", PreviousHash: models.GenesisHash, Hash: "abc",
	}); err != nil {
		t.Fatalf("AppendAuditEvent failed: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	hash, err := s.LastAuditHash(context.Background())
	if err != nil {
		t.Fatalf("LastAuditHash failed: %v", err)
	}
	if hash != "abc" {
		t.Errorf("LastAuditHash after reopen = %q, want abc", hash)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Ping(ctx)
	if err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
