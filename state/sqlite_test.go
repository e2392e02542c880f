package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open sqlite repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositoryFreshLoad(t *testing.T) {
	repo := newTestSQLiteRepository(t)

	st, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("load fresh state: %v", err)
	}
	if len(st.SeenIDs) != 0 || len(st.PendingApprovals) != 0 {
		t.Error("fresh state should be empty")
	}
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	repo := newTestSQLiteRepository(t)
	ctx := context.Background()

	st := New()
	st.MarkPosted("guid-1")
	st.LastUpdateID = 42
	st.PendingApprovals["abc123"] = PendingApproval{
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		PreviewText: "preview",
		Kind:        "warning",
	}
	if err := repo.Save(ctx, st); err != nil {
		t.Fatalf("save state: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if !got.HasPosted("guid-1") {
		t.Error("posted guid lost across save/load")
	}
	if got.LastUpdateID != 42 {
		t.Errorf("update cursor = %d, want 42", got.LastUpdateID)
	}
	if p, ok := got.PendingApprovals["abc123"]; !ok || p.Kind != "warning" {
		t.Errorf("pending approval lost across save/load: %+v", got.PendingApprovals)
	}
}

func TestSQLiteRepositorySaveReplacesDocument(t *testing.T) {
	repo := newTestSQLiteRepository(t)
	ctx := context.Background()

	first := New()
	first.MarkSeen("old")
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := New()
	second.MarkSeen("new")
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.HasSeen("old") {
		t.Error("old document should have been replaced")
	}
	if !got.HasSeen("new") {
		t.Error("new document was not stored")
	}
}
