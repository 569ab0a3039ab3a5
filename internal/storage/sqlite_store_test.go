package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite")

	store, err := NewStore("sqlite", path, Options{})
	if err != nil {
		t.Fatalf("NewStore sqlite: %v", err)
	}

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := store.PutTopic(TopicRecord{Key: "old", Topic: "Old", RecordedAt: base}); err != nil {
		t.Fatalf("PutTopic: %v", err)
	}
	if err := store.PutTopic(TopicRecord{Key: "new", Topic: "New", RecordedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("PutTopic: %v", err)
	}
	// Re-recording the same key is an upsert.
	if err := store.PutTopic(TopicRecord{Key: "new", Topic: "New", RecordedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("PutTopic again: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = NewStore("sqlite", path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	seen, err := store.HasTopic("old")
	if err != nil || !seen {
		t.Fatalf("expected persisted topic, seen=%v err=%v", seen, err)
	}

	recs, err := store.RecentTopics(10)
	if err != nil {
		t.Fatalf("RecentTopics: %v", err)
	}
	if len(recs) != 2 || recs[0].Key != "new" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestSQLiteStoreHonoursTTL(t *testing.T) {
	raw, err := openSQLite(filepath.Join(t.TempDir(), "ledger.sqlite"), normalizeOptions(Options{TopicTTL: time.Hour}))
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	store := raw.(*sqliteStore)
	defer store.Close()

	if err := store.PutTopic(TopicRecord{Key: "k", Topic: "K", RecordedAt: time.Now().Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("PutTopic: %v", err)
	}
	seen, err := store.HasTopic("k")
	if err != nil {
		t.Fatalf("HasTopic: %v", err)
	}
	if seen {
		t.Fatalf("expected expired topic to be reported unseen")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if err := store.PutTopic(TopicRecord{}); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if err := store.PutTopic(TopicRecord{Key: "a", Topic: "A"}); err != nil {
		t.Fatalf("PutTopic: %v", err)
	}
	seen, _ := store.HasTopic("a")
	if !seen {
		t.Fatalf("expected topic in memory store")
	}
	recs, _ := store.RecentTopics(0)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}
