package memory

import "testing"

func TestUpsertIdempotentOnNormalizedFact(t *testing.T) {
	s := NewRelationshipStore()
	s.Upsert("User likes Coffee.", []string{"preference"}, 0.6, "chat")
	rf := s.Upsert("user likes coffee", []string{"drink"}, 0.7, "chat")

	if len(s.All()) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(s.All()))
	}
	if rf.Confirmations < 2 {
		t.Errorf("expected confirmations >= 2, got %d", rf.Confirmations)
	}
	if len(rf.Tags) != 2 {
		t.Errorf("expected tag union of 2, got %v", rf.Tags)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  Likes   Tea!!  ")
	want := "likes tea"
	if got != want {
		t.Errorf("Normalize() = %q, want %q", got, want)
	}
}

func TestConfidenceClamped(t *testing.T) {
	s := NewRelationshipStore()
	s.Upsert("fact", nil, 0.99, "")
	rf := s.Upsert("fact", nil, 0.99, "")
	if rf.Confidence > 1.0 {
		t.Errorf("confidence must clamp at 1.0, got %f", rf.Confidence)
	}
}
