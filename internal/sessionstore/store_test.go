package sessionstore

import (
	"context"
	"testing"

	"github.com/nexuscore/agentcore/pkg/models"
)

func TestMemoryStoreGetOrCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.GetOrCreate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", got.SessionID)
	}

	again, err := s.GetOrCreate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetOrCreate (second): %v", err)
	}
	if again.CreatedAt != got.CreatedAt {
		t.Errorf("expected idempotent GetOrCreate to return the same session")
	}
}

func TestSaveTrimsMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{SessionID: "sess-2", LastSummaryIndex: 50}
	for i := 0; i < models.MaxSessionMessages+20; i++ {
		session.AppendMessage(models.NewUserText("hi"))
	}
	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stored, err := s.Get(ctx, "sess-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.Messages) != models.MaxSessionMessages {
		t.Errorf("len(Messages) = %d, want %d", len(stored.Messages), models.MaxSessionMessages)
	}
	if stored.LastSummaryIndex != 30 {
		t.Errorf("LastSummaryIndex = %d, want 30", stored.LastSummaryIndex)
	}
}

func TestGetNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("Get() err = %v, want ErrNotFound", err)
	}
}

func TestSaveClonesMetadata(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	session := &models.Session{SessionID: "sess-3", Metadata: map[string]any{"k": "v"}}
	if err := s.Save(ctx, session); err != nil {
		t.Fatalf("Save: %v", err)
	}
	session.Metadata["k"] = "mutated"

	stored, _ := s.Get(ctx, "sess-3")
	if stored.Metadata["k"] != "v" {
		t.Errorf("stored metadata was mutated by caller: got %v", stored.Metadata["k"])
	}
}
