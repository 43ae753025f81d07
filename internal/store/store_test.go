package store

import (
	"path/filepath"
	"testing"
	"time"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/models"
)

func openTestStore(t *testing.T, tailLimit int) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{
		Path:      filepath.Join(t.TempDir(), "captions.db"),
		TailLimit: tailLimit,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testBlocks(texts ...string) []models.CommittedBlock {
	committed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	blocks := make([]models.CommittedBlock, len(texts))
	for i, text := range texts {
		blocks[i] = models.CommittedBlock{
			Speaker:     "Alice",
			Text:        text,
			CommittedAt: committed.Add(time.Duration(i) * time.Second),
		}
	}
	return blocks
}

func TestSaveTail_RoundTrip(t *testing.T) {
	s := openTestStore(t, 10)

	saved := testBlocks("first line", "second line")
	if err := s.SaveTail("session-1", saved); err != nil {
		t.Fatalf("save tail: %v", err)
	}

	loaded, err := s.LoadTail("session-1")
	if err != nil {
		t.Fatalf("load tail: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(loaded))
	}
	for i := range saved {
		if loaded[i].Speaker != saved[i].Speaker || loaded[i].Text != saved[i].Text {
			t.Errorf("block %d: expected %+v, got %+v", i, saved[i], loaded[i])
		}
		if !loaded[i].CommittedAt.Equal(saved[i].CommittedAt) {
			t.Errorf("block %d: expected timestamp %v, got %v", i, saved[i].CommittedAt, loaded[i].CommittedAt)
		}
	}
}

func TestSaveTail_ReplacesPrevious(t *testing.T) {
	s := openTestStore(t, 10)

	if err := s.SaveTail("session-1", testBlocks("old line")); err != nil {
		t.Fatalf("save tail: %v", err)
	}
	if err := s.SaveTail("session-1", testBlocks("new line")); err != nil {
		t.Fatalf("save tail: %v", err)
	}

	loaded, err := s.LoadTail("session-1")
	if err != nil {
		t.Fatalf("load tail: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Text != "new line" {
		t.Errorf("expected replacement, got %+v", loaded)
	}
}

func TestSaveTail_BoundedByLimit(t *testing.T) {
	s := openTestStore(t, 2)

	if err := s.SaveTail("session-1", testBlocks("one", "two", "three", "four")); err != nil {
		t.Fatalf("save tail: %v", err)
	}

	loaded, err := s.LoadTail("session-1")
	if err != nil {
		t.Fatalf("load tail: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected tail bounded to 2 blocks, got %d", len(loaded))
	}
	if loaded[0].Text != "three" || loaded[1].Text != "four" {
		t.Errorf("expected the most recent blocks kept, got %+v", loaded)
	}
}

func TestLoadTail_UnknownSessionEmpty(t *testing.T) {
	s := openTestStore(t, 10)
	loaded, err := s.LoadTail("missing")
	if err != nil {
		t.Fatalf("load tail: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty tail, got %+v", loaded)
	}
}

func TestSaveSession_RoundTrip(t *testing.T) {
	s := openTestStore(t, 10)

	meta := models.SessionMeta{
		ID:          "session-1",
		ActivatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		SourceHint:  "ATTACHED",
		UpdatedAt:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := s.SaveSession(meta); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := s.LoadSession()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a session")
	}
	if loaded.ID != meta.ID || loaded.SourceHint != meta.SourceHint {
		t.Errorf("expected %+v, got %+v", meta, *loaded)
	}
	if !loaded.UpdatedAt.Equal(meta.UpdatedAt) {
		t.Errorf("expected updated at %v, got %v", meta.UpdatedAt, loaded.UpdatedAt)
	}
}

func TestSaveSession_PrunesOtherSessions(t *testing.T) {
	s := openTestStore(t, 10)

	if err := s.SaveSession(models.SessionMeta{ID: "session-old", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := s.SaveTail("session-old", testBlocks("stale line")); err != nil {
		t.Fatalf("save tail: %v", err)
	}

	if err := s.SaveSession(models.SessionMeta{ID: "session-new", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := s.LoadSession()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded == nil || loaded.ID != "session-new" {
		t.Fatalf("expected only the new session, got %+v", loaded)
	}
	stale, err := s.LoadTail("session-old")
	if err != nil {
		t.Fatalf("load tail: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected stale tail pruned, got %+v", stale)
	}
}

func TestLoadSession_EmptyDatabase(t *testing.T) {
	s := openTestStore(t, 10)
	loaded, err := s.LoadSession()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil session, got %+v", loaded)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.db")
	cfg := config.StoreConfig{Path: path, TailLimit: 10}

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.SaveTail("session-1", testBlocks("durable line")); err != nil {
		t.Fatalf("save tail: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadTail("session-1")
	if err != nil {
		t.Fatalf("load tail: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Text != "durable line" {
		t.Errorf("expected persisted tail after reopen, got %+v", loaded)
	}
}
